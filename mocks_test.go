package wormhole

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/opd-ai/wormhole/transfer"
	"github.com/opd-ai/wormhole/transit"
	"github.com/opd-ai/wormhole/wordlist"
)

// mockMailbox implements Mailbox and counts Close calls.
type mockMailbox struct {
	mu     sync.Mutex
	code   string
	closed int
}

func (m *mockMailbox) Code() string {
	return m.code
}

func (m *mockMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockMailbox) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockChannel implements Channel and counts Close calls.
type mockChannel struct {
	mu     sync.Mutex
	closed int
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockChannel) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockPending implements PendingReceive. Accept writes payload to the
// destination and reports a couple of cumulative progress samples.
type mockPending struct {
	name      string
	size      uint64
	payload   []byte
	acceptErr error
	rejectErr error

	mu       sync.Mutex
	accepted bool
	rejected bool
}

func (m *mockPending) FileName() string { return m.name }
func (m *mockPending) FileSize() uint64 { return m.size }

func (m *mockPending) Accept(ctx context.Context, dst io.Writer, progress transit.ProgressFunc) error {
	m.mu.Lock()
	m.accepted = true
	m.mu.Unlock()
	if m.acceptErr != nil {
		// Fail mid-stream: some bytes land before the error.
		if len(m.payload) > 0 {
			dst.Write(m.payload[:len(m.payload)/2])
		}
		return m.acceptErr
	}
	if len(m.payload) > 1 && progress != nil {
		progress(uint64(len(m.payload)/2), m.size)
	}
	if _, err := dst.Write(m.payload); err != nil {
		return err
	}
	if progress != nil {
		progress(uint64(len(m.payload)), m.size)
	}
	return nil
}

func (m *mockPending) Reject(ctx context.Context) error {
	m.mu.Lock()
	m.rejected = true
	m.mu.Unlock()
	return m.rejectErr
}

func (m *mockPending) wasRejected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}

// mockProtocol implements Protocol with scripted results and records the
// order of calls so tests can assert which network steps ran.
type mockProtocol struct {
	mu    sync.Mutex
	calls []string

	mailbox         *mockMailbox
	allocErr        error
	allocCodeLength int

	bindErr  error
	bindCode *wordlist.Code

	channel *mockChannel
	authErr error

	sendErr      error
	sendProgress [][2]uint64
	// sendFn, when set, replaces the scripted SendOffer behavior. Used to
	// block until cancellation.
	sendFn func(ctx context.Context, progress transit.ProgressFunc) error

	pending    *mockPending
	requestErr error
	// requestWithdrawn makes RequestOffer report a withdrawn offer.
	requestWithdrawn bool
}

func (m *mockProtocol) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockProtocol) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockProtocol) AllocateCode(ctx context.Context, codeLength int) (Mailbox, error) {
	m.record("AllocateCode")
	m.mu.Lock()
	m.allocCodeLength = codeLength
	m.mu.Unlock()
	if m.allocErr != nil {
		return nil, m.allocErr
	}
	return m.mailbox, nil
}

func (m *mockProtocol) BindCode(ctx context.Context, code *wordlist.Code) (Mailbox, error) {
	m.record("BindCode")
	m.mu.Lock()
	m.bindCode = code
	m.mu.Unlock()
	if m.bindErr != nil {
		return nil, m.bindErr
	}
	return m.mailbox, nil
}

func (m *mockProtocol) Authenticate(ctx context.Context, mb Mailbox) (Channel, error) {
	m.record("Authenticate")
	if m.authErr != nil {
		return nil, m.authErr
	}
	return m.channel, nil
}

func (m *mockProtocol) MakeOffer(path string) (*transfer.Offer, error) {
	m.record("MakeOffer")
	return transfer.NewFileOffer(path)
}

func (m *mockProtocol) SendOffer(ctx context.Context, ch Channel, hints []transit.RelayHint, offer *transfer.Offer, progress transit.ProgressFunc) error {
	m.record("SendOffer")
	if m.sendFn != nil {
		return m.sendFn(ctx, progress)
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	for _, s := range m.sendProgress {
		progress(s[0], s[1])
	}
	return nil
}

func (m *mockProtocol) RequestOffer(ctx context.Context, ch Channel, hints []transit.RelayHint) (PendingReceive, error) {
	m.record("RequestOffer")
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	if m.requestWithdrawn {
		return nil, nil
	}
	return m.pending, nil
}

var errMockNetwork = errors.New("mock network unreachable")
