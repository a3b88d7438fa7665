package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/wormhole/wordlist"
)

func testConfig(ts *testServer) *Config {
	return &Config{ServerURL: ts.wsURL(), AppID: DefaultAppID}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateAllocatesCode(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	mb, err := Create(testContext(t), testConfig(ts), 3)
	require.NoError(t, err)
	defer mb.Close()

	code, err := wordlist.Parse(mb.Code())
	require.NoError(t, err)
	assert.Len(t, code.Words, 3)
	assert.True(t, mb.Creator())
}

func TestCreateDefaultsCodeLength(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	mb, err := Create(testContext(t), testConfig(ts), 0)
	require.NoError(t, err)
	defer mb.Close()

	code, err := wordlist.Parse(mb.Code())
	require.NoError(t, err)
	assert.Len(t, code.Words, wordlist.DefaultLength)
}

func TestMailboxMessageExchange(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()
	ctx := testContext(t)

	sender, err := Create(ctx, testConfig(ts), 2)
	require.NoError(t, err)
	defer sender.Close()

	code, err := wordlist.Parse(sender.Code())
	require.NoError(t, err)

	receiver, err := Connect(ctx, testConfig(ts), code)
	require.NoError(t, err)
	defer receiver.Close()
	assert.False(t, receiver.Creator())

	require.NoError(t, sender.AddMessage(ctx, "greeting", []byte("hello")))

	phase, body, err := receiver.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "greeting", phase)
	assert.Equal(t, []byte("hello"), body)
}

func TestSendClearsStaleWriteDeadline(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	mb, err := Create(testContext(t), testConfig(ts), 2)
	require.NoError(t, err)
	defer mb.Close()

	// A send under a deadline must not poison later deadline-free sends.
	deadlineCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	require.NoError(t, mb.AddMessage(deadlineCtx, "0", []byte("first")))
	cancel()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, mb.AddMessage(context.Background(), "1", []byte("second")))
}

func TestAuthenticateEstablishesChannel(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()
	ctx := testContext(t)

	sender, err := Create(ctx, testConfig(ts), 2)
	require.NoError(t, err)

	code, err := wordlist.Parse(sender.Code())
	require.NoError(t, err)

	receiver, err := Connect(ctx, testConfig(ts), code)
	require.NoError(t, err)

	type result struct {
		ch  *Channel
		err error
	}
	senderDone := make(chan result, 1)
	go func() {
		ch, err := sender.Authenticate(ctx)
		senderDone <- result{ch, err}
	}()

	recvCh, err := receiver.Authenticate(ctx)
	require.NoError(t, err)
	defer recvCh.Close()

	senderRes := <-senderDone
	require.NoError(t, senderRes.err)
	sendCh := senderRes.ch
	defer sendCh.Close()

	assert.Equal(t, sendCh.SessionKey(), recvCh.SessionKey())
	assert.True(t, sendCh.Leader())
	assert.False(t, recvCh.Leader())

	// Channel messages round-trip in both directions.
	require.NoError(t, sendCh.SendMessage(ctx, []byte("offer")))
	got, err := recvCh.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("offer"), got)

	require.NoError(t, recvCh.SendMessage(ctx, []byte("answer")))
	got, err = sendCh.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("answer"), got)
}

func TestAuthenticateWrongCode(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()
	ctx := testContext(t)

	sender, err := Create(ctx, testConfig(ts), 2)
	require.NoError(t, err)
	defer sender.Close()

	code, err := wordlist.Parse(sender.Code())
	require.NoError(t, err)

	// Same nameplate, different words: the receiver lands in the right
	// mailbox but derives a different key.
	wrong := &wordlist.Code{Nameplate: code.Nameplate, Words: []string{"guidance", "tobacco"}}
	if wrong.String() == code.String() {
		wrong.Words = []string{"puppy", "waffle"}
	}

	receiver, err := Connect(ctx, testConfig(ts), wrong)
	require.NoError(t, err)
	defer receiver.Close()

	go sender.Authenticate(ctx)

	_, err = receiver.Authenticate(ctx)
	assert.Error(t, err)
}
