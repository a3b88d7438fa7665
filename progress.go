package wormhole

import (
	"math"

	"github.com/sirupsen/logrus"
)

// ProgressEvent is one progress sample delivered to the caller.
type ProgressEvent struct {
	// Transferred is the number of bytes moved so far.
	Transferred uint64
	// Total is the number of bytes in the whole transfer.
	Total uint64
	// Percent is the completed percentage, 0-100.
	Percent int
}

// NewProgressEvent builds a sample with the percentage rounded and clamped
// to [0, 100]. A zero total yields zero percent.
func NewProgressEvent(transferred, total uint64) ProgressEvent {
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(transferred) / float64(total) * 100))
		if percent > 100 {
			percent = 100
		}
	}
	return ProgressEvent{Transferred: transferred, Total: total, Percent: percent}
}

// ProgressFunc receives progress samples during a transfer. Handlers run on
// a delivery goroutine: a slow or panicking handler never stalls the
// transfer loop.
type ProgressFunc func(ProgressEvent)

// ReceiveOffer describes an incoming file awaiting accept or reject.
type ReceiveOffer struct {
	// Filename is the name the sender offered.
	Filename string
	// Filesize is the offered size in bytes.
	Filesize uint64
}

// progressBuffer is the number of samples that may be queued before
// intermediate ones are dropped.
const progressBuffer = 64

// progressReporter bridges the transfer loop to the caller's handler.
// Samples are handed off to a dedicated delivery goroutine; if the handler
// cannot keep up, intermediate samples are dropped. The terminal sample is
// never dropped and is delivered exactly once by finish.
type progressReporter struct {
	events    chan ProgressEvent
	done      chan struct{}
	highWater uint64
}

// newProgressReporter starts the delivery goroutine for fn. A nil fn still
// returns a usable reporter that discards samples.
func newProgressReporter(fn ProgressFunc) *progressReporter {
	r := &progressReporter{
		events: make(chan ProgressEvent, progressBuffer),
		done:   make(chan struct{}),
	}
	go r.run(fn)
	return r
}

func (r *progressReporter) run(fn ProgressFunc) {
	defer close(r.done)
	for ev := range r.events {
		if fn != nil {
			deliver(fn, ev)
		}
	}
}

// deliver invokes the handler, containing any panic so a failing consumer
// cannot abort the transfer.
func deliver(fn ProgressFunc, ev ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithFields(logrus.Fields{
				"function": "deliver",
				"panic":    rec,
			}).Warn("Progress handler panicked")
		}
	}()
	fn(ev)
}

// sample queues one progress sample without blocking. Samples that would
// move the transferred count backwards are discarded, keeping delivery
// monotonically non-decreasing. Called only from the transfer loop.
func (r *progressReporter) sample(transferred, total uint64) {
	if transferred < r.highWater {
		return
	}
	r.highWater = transferred

	select {
	case r.events <- NewProgressEvent(transferred, total):
	default:
		// Queue full: the handler will see a later cumulative sample.
	}
}

// finish delivers the terminal 100% sample and waits for the delivery
// goroutine to drain. Called exactly once, on success.
func (r *progressReporter) finish(total uint64) {
	r.events <- NewProgressEvent(total, total)
	close(r.events)
	<-r.done
}

// abort stops delivery without a terminal sample. Called on failure.
func (r *progressReporter) abort() {
	close(r.events)
	<-r.done
}
