package wormhole

import (
	"context"
	"fmt"
	"io"

	"github.com/opd-ai/wormhole/rendezvous"
	"github.com/opd-ai/wormhole/transfer"
	"github.com/opd-ai/wormhole/transit"
	"github.com/opd-ai/wormhole/wordlist"
)

// Mailbox is an open rendezvous mailbox with an allocated code, awaiting
// the key exchange.
type Mailbox interface {
	// Code returns the full wormhole code for this mailbox.
	Code() string
	// Close releases the mailbox.
	Close() error
}

// Channel is an authenticated encrypted channel to the peer.
type Channel interface {
	// Close tears down the channel and its mailbox.
	Close() error
}

// PendingReceive is an offered incoming transfer awaiting a decision.
// Exactly one of Accept or Reject consumes it.
type PendingReceive interface {
	FileName() string
	FileSize() uint64
	Accept(ctx context.Context, dst io.Writer, progress transit.ProgressFunc) error
	Reject(ctx context.Context) error
}

// Protocol abstracts the rendezvous, key exchange, and transit machinery
// the client drives. The client never touches the wire directly, so tests
// can substitute a fake.
type Protocol interface {
	// AllocateCode opens a rendezvous mailbox with a fresh code of the
	// given word count.
	AllocateCode(ctx context.Context, codeLength int) (Mailbox, error)
	// BindCode opens the rendezvous mailbox behind an existing code.
	BindCode(ctx context.Context, code *wordlist.Code) (Mailbox, error)
	// Authenticate runs the key exchange over the mailbox, consuming it.
	Authenticate(ctx context.Context, mb Mailbox) (Channel, error)
	// MakeOffer derives an offer from a file's metadata.
	MakeOffer(path string) (*transfer.Offer, error)
	// SendOffer negotiates the offer and streams the file.
	SendOffer(ctx context.Context, ch Channel, hints []transit.RelayHint, offer *transfer.Offer, progress transit.ProgressFunc) error
	// RequestOffer waits for the peer's offer. A nil request with nil
	// error means the sender withdrew.
	RequestOffer(ctx context.Context, ch Channel, hints []transit.RelayHint) (PendingReceive, error)
}

// liveProtocol implements Protocol on the real rendezvous and transfer
// packages.
type liveProtocol struct {
	cfg *rendezvous.Config
}

func (p *liveProtocol) AllocateCode(ctx context.Context, codeLength int) (Mailbox, error) {
	return rendezvous.Create(ctx, p.cfg, codeLength)
}

func (p *liveProtocol) BindCode(ctx context.Context, code *wordlist.Code) (Mailbox, error) {
	return rendezvous.Connect(ctx, p.cfg, code)
}

func (p *liveProtocol) Authenticate(ctx context.Context, mb Mailbox) (Channel, error) {
	conn, ok := mb.(*rendezvous.MailboxConnection)
	if !ok {
		return nil, fmt.Errorf("unexpected mailbox type %T", mb)
	}
	return conn.Authenticate(ctx)
}

func (p *liveProtocol) MakeOffer(path string) (*transfer.Offer, error) {
	return transfer.NewFileOffer(path)
}

func (p *liveProtocol) SendOffer(ctx context.Context, ch Channel, hints []transit.RelayHint, offer *transfer.Offer, progress transit.ProgressFunc) error {
	channel, ok := ch.(*rendezvous.Channel)
	if !ok {
		return fmt.Errorf("unexpected channel type %T", ch)
	}
	return transfer.Send(ctx, channel, hints, offer, progress)
}

func (p *liveProtocol) RequestOffer(ctx context.Context, ch Channel, hints []transit.RelayHint) (PendingReceive, error) {
	channel, ok := ch.(*rendezvous.Channel)
	if !ok {
		return nil, fmt.Errorf("unexpected channel type %T", ch)
	}

	request, err := transfer.RequestFile(ctx, channel, hints)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, nil
	}
	return request, nil
}
