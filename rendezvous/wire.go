package rendezvous

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// wireMessage is the JSON envelope of the rendezvous server protocol. A
// single struct covers every message type; unused fields stay empty.
type wireMessage struct {
	Type      string `json:"type"`
	AppID     string `json:"appid,omitempty"`
	Side      string `json:"side,omitempty"`
	Nameplate string `json:"nameplate,omitempty"`
	Mailbox   string `json:"mailbox,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Body      string `json:"body,omitempty"`
	Mood      string `json:"mood,omitempty"`
	Error     string `json:"error,omitempty"`
}

// send writes one message, honoring ctx via a write deadline. The zero
// deadline clears whatever an earlier send or cancellation left on the
// connection.
func (mb *MailboxConnection) send(ctx context.Context, msg *wireMessage) error {
	deadline, _ := ctx.Deadline()
	mb.conn.SetWriteDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		mb.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := mb.conn.WriteJSON(msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to send %s message: %w", msg.Type, err)
	}
	return nil
}

// await reads server messages until one of the wanted type arrives.
// Informational messages (welcome, ack) are skipped; error messages abort.
// Only used during setup, before the delivery loop starts.
func (mb *MailboxConnection) await(ctx context.Context, wanted string) (*wireMessage, error) {
	stop := context.AfterFunc(ctx, func() {
		mb.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var msg wireMessage
		if err := mb.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from rendezvous server: %w", err)
		}

		switch msg.Type {
		case wanted:
			return &msg, nil
		case "welcome", "ack":
			continue
		case "error":
			return nil, fmt.Errorf("rendezvous server error: %s", msg.Error)
		default:
			logrus.WithFields(logrus.Fields{
				"function": "await",
				"type":     msg.Type,
				"wanted":   wanted,
			}).Debug("Skipping unexpected rendezvous message")
		}
	}
}

// readLoop delivers peer mailbox messages into the incoming channel until
// the connection fails or closes. Own-side echoes are dropped.
func (mb *MailboxConnection) readLoop() {
	defer close(mb.incoming)

	for {
		var msg wireMessage
		if err := mb.conn.ReadJSON(&msg); err != nil {
			mb.mu.Lock()
			closed := mb.closed
			mb.mu.Unlock()
			if !closed {
				mb.readErr = fmt.Errorf("mailbox read failed: %w", err)
			}
			return
		}

		switch msg.Type {
		case "message":
			if msg.Side == mb.side {
				continue
			}
			body, err := hex.DecodeString(msg.Body)
			if err != nil {
				mb.readErr = fmt.Errorf("malformed mailbox message body: %w", err)
				return
			}
			select {
			case mb.incoming <- mailboxMessage{Phase: msg.Phase, Body: body}:
			case <-mb.done:
				return
			}
		case "error":
			mb.readErr = fmt.Errorf("rendezvous server error: %s", msg.Error)
			return
		default:
			// welcome, ack, released, closed: nothing to deliver.
		}
	}
}
