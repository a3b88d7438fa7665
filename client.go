package wormhole

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wormhole/rendezvous"
	"github.com/opd-ai/wormhole/transit"
	"github.com/opd-ai/wormhole/wordlist"
)

// SessionPhase is the current stage of the session's lifecycle. Exactly
// one phase is active at any time.
type SessionPhase uint8

const (
	// PhaseIdle means no resources are held.
	PhaseIdle SessionPhase = iota
	// PhaseMailboxReady means a mailbox is open and a code allocated,
	// waiting for SendFile to run the key exchange.
	PhaseMailboxReady
	// PhaseConnected means a channel is authenticated but not yet bound
	// to a transfer. The current send path connects and transfers in one
	// operation, so this phase is reserved for protocol symmetry.
	PhaseConnected
	// PhaseReceiving means an incoming offer awaits accept or reject.
	PhaseReceiving
)

// String returns the phase's name.
func (p SessionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseMailboxReady:
		return "MailboxReady"
	case PhaseConnected:
		return "Connected"
	case PhaseReceiving:
		return "Receiving"
	default:
		return "Unknown"
	}
}

// sessionState is the single mutually-exclusive session slot: the active
// phase plus the resources that phase owns. Transitions move resources out
// with swapState, which installs Idle in the same critical section, so a
// resource is consumed by exactly one operation.
type sessionState struct {
	phase   SessionPhase
	mailbox Mailbox
	channel Channel
	pending PendingReceive
	hints   []transit.RelayHint
}

// idleState is the empty slot installed while an operation owns the
// previous phase's resources.
func idleState() sessionState {
	return sessionState{phase: PhaseIdle}
}

// Options configures a Client.
type Options struct {
	// RendezvousURL is the mailbox server.
	RendezvousURL string
	// AppID namespaces nameplates on the rendezvous server.
	AppID string
	// RelayURL is the transit relay used when no direct connection exists.
	RelayURL string
}

// NewOptions returns Options pointed at the public servers.
func NewOptions() *Options {
	return &Options{
		RendezvousURL: rendezvous.DefaultServerURL,
		AppID:         rendezvous.DefaultAppID,
		RelayURL:      transit.DefaultRelayURL,
	}
}

// Client orchestrates wormhole file exchange sessions: code generation,
// rendezvous connection, key exchange, offer negotiation, and payload
// streaming with progress reporting. A Client is safe for concurrent use;
// the session slot serializes state transitions while network work runs
// outside any lock.
type Client struct {
	opts     *Options
	protocol Protocol

	mu       sync.Mutex
	state    sessionState
	opCtx    context.Context
	opCancel context.CancelFunc
}

// NewClient creates a Client. A nil opts uses the public servers.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = NewOptions()
	}
	return newClient(opts, &liveProtocol{
		cfg: &rendezvous.Config{ServerURL: opts.RendezvousURL, AppID: opts.AppID},
	})
}

func newClient(opts *Options, protocol Protocol) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:     opts,
		protocol: protocol,
		state:    idleState(),
		opCtx:    ctx,
		opCancel: cancel,
	}
}

// swapState installs next and returns the previous state. The lock covers
// only the swap itself, never a network call, so Cancel is never queued
// behind a slow operation.
func (c *Client) swapState(next sessionState) sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.state
	c.state = next
	return old
}

// Phase returns the current session phase. Diagnostic only: by the time
// the caller looks at it, a concurrent operation may have moved on.
func (c *Client) Phase() SessionPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase
}

// operationContext returns the context cancelled by Cancel.
func (c *Client) operationContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opCtx
}

// releaseState closes whatever resources a displaced state still owns.
func releaseState(s sessionState) {
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "releaseState",
				"error":    err.Error(),
			}).Warn("Failed to close displaced channel")
		}
	}
	if s.mailbox != nil {
		if err := s.mailbox.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "releaseState",
				"error":    err.Error(),
			}).Warn("Failed to close displaced mailbox")
		}
	}
}

// CreateSendCode connects to the rendezvous server, allocates a code of
// codeLength words (the default length when codeLength is zero or
// negative), and returns the code. The mailbox is held open so the caller
// can display the code immediately; the key exchange only begins when
// SendFile is invoked.
func (c *Client) CreateSendCode(codeLength int) (string, error) {
	if codeLength < 1 {
		codeLength = wordlist.DefaultLength
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CreateSendCode",
		"code_length": codeLength,
	}).Info("Creating send code")

	hints, err := transit.NewRelayHints(c.opts.RelayURL)
	if err != nil {
		return "", connectionFailed(err)
	}

	mailbox, err := c.protocol.AllocateCode(c.operationContext(), codeLength)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "CreateSendCode",
			"error":    err.Error(),
		}).Error("Failed to allocate code")
		return "", cancelledOr(err, connectionFailed)
	}

	code := mailbox.Code()

	displaced := c.swapState(sessionState{
		phase:   PhaseMailboxReady,
		mailbox: mailbox,
		hints:   hints,
	})
	releaseState(displaced)

	logrus.WithFields(logrus.Fields{
		"function": "CreateSendCode",
		"code":     code,
	}).Info("Send code created")

	return code, nil
}

// SendFile runs the key exchange against the receiver who entered the
// code, then streams the file at path, reporting progress through the
// handler. The session must be in MailboxReady (a prior CreateSendCode);
// it ends Idle whether the transfer succeeds or fails. On success exactly
// one terminal 100% sample is delivered.
func (c *Client) SendFile(path string, progress ProgressFunc) error {
	logrus.WithFields(logrus.Fields{
		"function":  "SendFile",
		"file_path": path,
	}).Info("Sending file")

	if _, err := os.Stat(path); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "SendFile",
			"file_path": path,
		}).Error("Source file not found")
		return fileNotFound(path)
	}

	old := c.swapState(idleState())
	if old.phase != PhaseMailboxReady {
		logrus.WithFields(logrus.Fields{
			"function": "SendFile",
			"phase":    old.phase.String(),
		}).Error("No mailbox ready for sending")
		releaseState(old)
		return ErrNoActiveSession
	}

	ctx := c.operationContext()

	channel, err := c.protocol.Authenticate(ctx, old.mailbox)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendFile",
			"error":    err.Error(),
		}).Error("Key exchange failed")
		releaseState(sessionState{mailbox: old.mailbox})
		return cancelledOr(err, connectionFailed)
	}
	defer channel.Close()

	offer, err := c.protocol.MakeOffer(path)
	if err != nil {
		return transferFailed(err)
	}

	reporter := newProgressReporter(progress)
	if err := c.protocol.SendOffer(ctx, channel, old.hints, offer, reporter.sample); err != nil {
		reporter.abort()
		logrus.WithFields(logrus.Fields{
			"function":  "SendFile",
			"file_path": path,
			"error":     err.Error(),
		}).Error("File transfer failed")
		return cancelledOr(err, transferFailed)
	}

	// The transit layer's last incremental sample may fall short of the
	// total; the terminal sample always reads 100%.
	reporter.finish(offer.Size)

	logrus.WithFields(logrus.Fields{
		"function":  "SendFile",
		"file_path": path,
		"file_size": offer.Size,
	}).Info("File sent successfully")

	return nil
}

// ConnectReceive parses the code, connects to the rendezvous server, runs
// the key exchange, and waits for the sender's offer. Any prior phase is
// displaced: starting a receive always wins the session slot. On success
// the session enters Receiving and the offer is returned for the caller's
// accept or reject decision.
func (c *Client) ConnectReceive(code string) (*ReceiveOffer, error) {
	logrus.WithFields(logrus.Fields{
		"function": "ConnectReceive",
	}).Info("Connecting to receive")

	parsed, err := wordlist.Parse(code)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ConnectReceive",
			"error":    err.Error(),
		}).Error("Malformed wormhole code")
		return nil, invalidCode(code)
	}

	hints, err := transit.NewRelayHints(c.opts.RelayURL)
	if err != nil {
		return nil, connectionFailed(err)
	}

	ctx := c.operationContext()

	mailbox, err := c.protocol.BindCode(ctx, parsed)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ConnectReceive",
			"error":    err.Error(),
		}).Error("Failed to claim mailbox")
		return nil, cancelledOr(err, connectionFailed)
	}

	channel, err := c.protocol.Authenticate(ctx, mailbox)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ConnectReceive",
			"error":    err.Error(),
		}).Error("Key exchange failed")
		mailbox.Close()
		return nil, cancelledOr(err, connectionFailed)
	}

	pending, err := c.protocol.RequestOffer(ctx, channel, hints)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ConnectReceive",
			"error":    err.Error(),
		}).Error("Offer negotiation failed")
		channel.Close()
		return nil, cancelledOr(err, transferFailed)
	}
	if pending == nil {
		// Sender withdrew before offering anything.
		channel.Close()
		return nil, ErrCancelled
	}

	displaced := c.swapState(sessionState{
		phase:   PhaseReceiving,
		channel: channel,
		pending: pending,
		hints:   hints,
	})
	releaseState(displaced)

	offer := &ReceiveOffer{
		Filename: pending.FileName(),
		Filesize: pending.FileSize(),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "ConnectReceive",
		"file_name": offer.Filename,
		"file_size": offer.Filesize,
	}).Info("Offer received, awaiting decision")

	return offer, nil
}

// AcceptTransfer accepts the pending offer and streams the file into
// outputDir under the offered name, reporting progress through the
// handler. It returns the saved file's path. The session must be in
// Receiving; it ends Idle either way. On stream failure a partial file may
// remain at the destination.
func (c *Client) AcceptTransfer(outputDir string, progress ProgressFunc) (string, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "AcceptTransfer",
		"output_dir": outputDir,
	}).Info("Accepting transfer")

	old := c.swapState(idleState())
	if old.phase != PhaseReceiving {
		logrus.WithFields(logrus.Fields{
			"function": "AcceptTransfer",
			"phase":    old.phase.String(),
		}).Error("No pending offer to accept")
		releaseState(old)
		return "", ErrNoActiveSession
	}
	defer releaseState(sessionState{channel: old.channel})

	// Offered names come from the peer: keep only the base name so a
	// hostile sender cannot escape the output directory.
	name := filepath.Base(old.pending.FileName())
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", protocolError("unusable offered file name: " + old.pending.FileName())
	}
	outputPath := filepath.Join(outputDir, name)

	file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "AcceptTransfer",
			"output_path": outputPath,
			"error":       err.Error(),
		}).Error("Failed to create destination file")
		return "", ioError(err)
	}

	reporter := newProgressReporter(progress)
	ctx := c.operationContext()

	if err := old.pending.Accept(ctx, file, reporter.sample); err != nil {
		reporter.abort()
		file.Close()
		logrus.WithFields(logrus.Fields{
			"function":    "AcceptTransfer",
			"output_path": outputPath,
			"error":       err.Error(),
		}).Error("Incoming transfer failed, partial file may remain")
		return "", cancelledOr(err, transferFailed)
	}

	if err := file.Close(); err != nil {
		reporter.abort()
		return "", ioError(err)
	}

	reporter.finish(old.pending.FileSize())

	logrus.WithFields(logrus.Fields{
		"function":    "AcceptTransfer",
		"output_path": outputPath,
		"file_size":   old.pending.FileSize(),
	}).Info("File received successfully")

	return outputPath, nil
}

// RejectTransfer declines the pending offer, informing the sender. The
// session must be in Receiving; it ends Idle either way.
func (c *Client) RejectTransfer() error {
	logrus.WithFields(logrus.Fields{
		"function": "RejectTransfer",
	}).Info("Rejecting transfer")

	old := c.swapState(idleState())
	if old.phase != PhaseReceiving {
		logrus.WithFields(logrus.Fields{
			"function": "RejectTransfer",
			"phase":    old.phase.String(),
		}).Error("No pending offer to reject")
		releaseState(old)
		return ErrNoActiveSession
	}
	defer releaseState(sessionState{channel: old.channel})

	if err := old.pending.Reject(c.operationContext()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RejectTransfer",
			"error":    err.Error(),
		}).Error("Failed to deliver rejection")
		return cancelledOr(err, transferFailed)
	}

	logrus.WithFields(logrus.Fields{
		"function": "RejectTransfer",
	}).Info("Transfer rejected")

	return nil
}

// Cancel resets the session to Idle and cancels any in-flight operation's
// network calls; an interrupted operation fails with ErrCancelled. Always
// succeeds. Resource teardown of the displaced phase happens in the
// background.
func (c *Client) Cancel() {
	logrus.WithFields(logrus.Fields{
		"function": "Cancel",
	}).Info("Cancelling session")

	c.mu.Lock()
	cancel := c.opCancel
	c.opCtx, c.opCancel = context.WithCancel(context.Background())
	old := c.state
	c.state = idleState()
	c.mu.Unlock()

	cancel()
	go releaseState(old)
}
