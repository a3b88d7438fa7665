package transit

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ChunkSize is the plaintext size of each streamed record.
const ChunkSize = 16384

// ProgressFunc receives cumulative byte counts as a stream advances.
type ProgressFunc func(transferred, total uint64)

// SendStream reads total bytes from r and writes them to rc as encrypted
// records, reporting cumulative progress after each record. Cancellation of
// ctx aborts the stream between records.
func SendStream(ctx context.Context, rc *RecordConn, r io.Reader, total uint64, progress ProgressFunc) error {
	logrus.WithFields(logrus.Fields{
		"function": "SendStream",
		"total":    total,
	}).Info("Starting outgoing stream")

	stop := context.AfterFunc(ctx, func() {
		rc.Close()
	})
	defer stop()

	buf := make([]byte, ChunkSize)
	var sent uint64
	for sent < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			if err := rc.WriteRecord(buf[:n]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			sent += uint64(n)
			if progress != nil {
				progress(sent, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
	}

	if sent != total {
		return fmt.Errorf("source ended early: sent %d of %d bytes", sent, total)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SendStream",
		"sent":     sent,
	}).Info("Outgoing stream complete")

	return nil
}

// ReceiveStream reads total bytes of records from rc into w, reporting
// cumulative progress after each record.
func ReceiveStream(ctx context.Context, rc *RecordConn, w io.Writer, total uint64, progress ProgressFunc) error {
	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream",
		"total":    total,
	}).Info("Starting incoming stream")

	stop := context.AfterFunc(ctx, func() {
		rc.Close()
	})
	defer stop()

	var received uint64
	for received < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := rc.ReadRecord()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if received+uint64(len(record)) > total {
			return fmt.Errorf("peer sent %d bytes past the offered size %d", received+uint64(len(record))-total, total)
		}

		if _, err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write destination: %w", err)
		}

		received += uint64(len(record))
		if progress != nil {
			progress(received, total)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream",
		"received": received,
	}).Info("Incoming stream complete")

	return nil
}
