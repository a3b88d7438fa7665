package rendezvous

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flynn/noise"
)

// Channel is an authenticated, encrypted message channel between the two
// parties, layered over the mailbox. Control messages (offers, answers)
// travel here; file bytes travel over transit.
type Channel struct {
	mailbox    *MailboxConnection
	send       *noise.CipherState
	recv       *noise.CipherState
	sessionKey []byte

	sendSeq uint64
}

// SendMessage encrypts body and publishes it to the mailbox. Messages are
// numbered so the peer can detect loss or reordering.
func (ch *Channel) SendMessage(ctx context.Context, body []byte) error {
	sealed, err := ch.send.Encrypt(nil, nil, body)
	if err != nil {
		return fmt.Errorf("failed to encrypt channel message: %w", err)
	}

	phase := strconv.FormatUint(ch.sendSeq, 10)
	ch.sendSeq++

	return ch.mailbox.AddMessage(ctx, phase, sealed)
}

// ReceiveMessage blocks until the peer's next channel message arrives and
// decrypts it.
func (ch *Channel) ReceiveMessage(ctx context.Context) ([]byte, error) {
	_, body, err := ch.mailbox.Next(ctx)
	if err != nil {
		return nil, err
	}

	plain, err := ch.recv.Decrypt(nil, nil, body)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt channel message: %w", err)
	}
	return plain, nil
}

// SessionKey returns the handshake channel binding, from which transit
// record keys are derived.
func (ch *Channel) SessionKey() []byte {
	return ch.sessionKey
}

// Leader reports whether this side leads the transit connection (the side
// that created the code).
func (ch *Channel) Leader() bool {
	return ch.mailbox.creator
}

// Close closes the underlying mailbox connection.
func (ch *Channel) Close() error {
	return ch.mailbox.Close()
}
