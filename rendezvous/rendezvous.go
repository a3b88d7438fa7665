// Package rendezvous implements the client side of the wormhole mailbox
// protocol.
//
// The rendezvous server pairs two parties who share a code: the sender
// allocates a nameplate and opens a mailbox, the receiver claims the same
// nameplate, and both exchange short messages through the mailbox to run
// the authenticated key exchange. The mailbox never carries file data;
// bulk bytes travel over the transit connection.
package rendezvous

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wormhole/wordlist"
)

// DefaultServerURL is the rendezvous server used when the caller does not
// configure one.
const DefaultServerURL = "ws://relay.magic-wormhole.io:4000/v1"

// DefaultAppID namespaces nameplates on the rendezvous server.
const DefaultAppID = "lothar.com/wormhole/text-or-file-xfer"

// Config holds rendezvous server settings.
type Config struct {
	ServerURL string
	AppID     string
}

// DefaultConfig returns a Config pointed at the public rendezvous server.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		AppID:     DefaultAppID,
	}
}

// MailboxConnection is an open mailbox on the rendezvous server. It is
// created either by allocating a fresh code (sender) or by claiming an
// existing one (receiver), and is consumed by the key exchange.
type MailboxConnection struct {
	cfg     *Config
	conn    *websocket.Conn
	side    string
	code    *wordlist.Code
	mailbox string
	creator bool

	incoming chan mailboxMessage
	readErr  error
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// mailboxMessage is one peer message delivered through the mailbox.
type mailboxMessage struct {
	Phase string
	Body  []byte
}

// Create connects to the rendezvous server, allocates a nameplate, and
// opens its mailbox. The returned connection carries a freshly generated
// code of codeLength words.
func Create(ctx context.Context, cfg *Config, codeLength int) (*MailboxConnection, error) {
	if codeLength < 1 {
		codeLength = wordlist.DefaultLength
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Create",
		"server":      cfg.ServerURL,
		"code_length": codeLength,
	}).Info("Allocating mailbox")

	mb, err := dial(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	nameplate, err := mb.allocate(ctx)
	if err != nil {
		mb.Close()
		return nil, err
	}

	words, err := wordlist.Words(codeLength)
	if err != nil {
		mb.Close()
		return nil, err
	}
	mb.code = &wordlist.Code{Nameplate: nameplate, Words: words}

	if err := mb.claimAndOpen(ctx, nameplate); err != nil {
		mb.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Create",
		"nameplate": nameplate,
		"mailbox":   mb.mailbox,
	}).Info("Mailbox allocated and opened")

	return mb, nil
}

// Connect connects to the rendezvous server and claims the mailbox bound
// to an existing code.
func Connect(ctx context.Context, cfg *Config, code *wordlist.Code) (*MailboxConnection, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "Connect",
		"server":    cfg.ServerURL,
		"nameplate": code.Nameplate,
	}).Info("Claiming mailbox")

	mb, err := dial(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	mb.code = code

	if err := mb.claimAndOpen(ctx, code.Nameplate); err != nil {
		mb.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"mailbox":  mb.mailbox,
	}).Info("Mailbox claimed and opened")

	return mb, nil
}

// dial opens the websocket and binds the application identity.
func dial(ctx context.Context, cfg *Config, creator bool) (*MailboxConnection, error) {
	side, err := newSide()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rendezvous server %s: %w", cfg.ServerURL, err)
	}

	mb := &MailboxConnection{
		cfg:      cfg,
		conn:     conn,
		side:     side,
		creator:  creator,
		incoming: make(chan mailboxMessage, 16),
		done:     make(chan struct{}),
	}

	if err := mb.send(ctx, &wireMessage{Type: "bind", AppID: cfg.AppID, Side: side}); err != nil {
		conn.Close()
		return nil, err
	}

	return mb, nil
}

// allocate requests a fresh nameplate from the server.
func (mb *MailboxConnection) allocate(ctx context.Context) (string, error) {
	if err := mb.send(ctx, &wireMessage{Type: "allocate"}); err != nil {
		return "", err
	}

	msg, err := mb.await(ctx, "allocated")
	if err != nil {
		return "", err
	}
	if msg.Nameplate == "" {
		return "", fmt.Errorf("server allocated an empty nameplate")
	}
	return msg.Nameplate, nil
}

// claimAndOpen claims a nameplate, opens the mailbox behind it, and starts
// the delivery loop.
func (mb *MailboxConnection) claimAndOpen(ctx context.Context, nameplate string) error {
	if err := mb.send(ctx, &wireMessage{Type: "claim", Nameplate: nameplate}); err != nil {
		return err
	}

	claimed, err := mb.await(ctx, "claimed")
	if err != nil {
		return err
	}
	if claimed.Mailbox == "" {
		return fmt.Errorf("server claimed nameplate %s without a mailbox", nameplate)
	}
	mb.mailbox = claimed.Mailbox

	if err := mb.send(ctx, &wireMessage{Type: "open", Mailbox: mb.mailbox}); err != nil {
		return err
	}

	go mb.readLoop()
	return nil
}

// Code returns the full wormhole code for this mailbox.
func (mb *MailboxConnection) Code() string {
	return mb.code.String()
}

// Creator reports whether this side allocated the code. The creator acts
// as initiator in the key exchange and leader on the transit connection.
func (mb *MailboxConnection) Creator() bool {
	return mb.creator
}

// AddMessage publishes one message to the mailbox under the given phase.
func (mb *MailboxConnection) AddMessage(ctx context.Context, phase string, body []byte) error {
	return mb.send(ctx, &wireMessage{
		Type:  "add",
		Phase: phase,
		Body:  hex.EncodeToString(body),
	})
}

// Next blocks until the peer's next mailbox message arrives. Messages sent
// by this side are filtered out by the delivery loop.
func (mb *MailboxConnection) Next(ctx context.Context) (string, []byte, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case msg, ok := <-mb.incoming:
		if !ok {
			if mb.readErr != nil {
				return "", nil, mb.readErr
			}
			return "", nil, fmt.Errorf("mailbox connection closed")
		}
		return msg.Phase, msg.Body, nil
	}
}

// Close releases the nameplate and closes the websocket. Safe to call more
// than once.
func (mb *MailboxConnection) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.done)
	mb.mu.Unlock()

	// Best effort: the server times these out anyway.
	if mb.code != nil {
		mb.conn.WriteJSON(&wireMessage{Type: "release", Nameplate: mb.code.Nameplate})
	}
	if mb.mailbox != "" {
		mb.conn.WriteJSON(&wireMessage{Type: "close", Mailbox: mb.mailbox, Mood: "happy"})
	}

	err := mb.conn.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"mailbox":  mb.mailbox,
	}).Debug("Mailbox connection closed")

	return err
}

// newSide generates the random side identifier that distinguishes the two
// ends of a mailbox.
func newSide() (string, error) {
	var raw [5]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("failed to generate side identifier: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
