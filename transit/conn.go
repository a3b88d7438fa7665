package transit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// relayOK is the relay's response once both sides of a token have connected.
const relayOK = "ok\n"

// Connect establishes the data-plane connection through one of the relay
// hints. Both peers present the same token; the relay holds each connection
// until its partner arrives and then splices them together. The returned
// RecordConn is keyed from sessionKey, with record direction selected by
// leader.
func Connect(ctx context.Context, hints []RelayHint, sessionKey []byte, leader bool) (*RecordConn, error) {
	if len(hints) == 0 {
		return nil, errors.New("no relay hints available")
	}

	token, err := DeriveToken(sessionKey)
	if err != nil {
		return nil, err
	}
	sendKey, recvKey, err := DeriveRecordKeys(sessionKey, leader)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, hint := range hints {
		conn, err := dialRelay(ctx, hint, token)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Connect",
				"relay":    hint.URL,
				"error":    err.Error(),
			}).Warn("Relay connection attempt failed")
			lastErr = err
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "Connect",
			"relay":    hint.URL,
			"leader":   leader,
		}).Info("Transit connection established")

		return NewRecordConn(conn, sendKey, recvKey), nil
	}

	return nil, fmt.Errorf("all relay hints failed: %w", lastErr)
}

// dialRelay connects to a single relay hint and performs the pairing
// handshake.
func dialRelay(ctx context.Context, hint RelayHint, token []byte) (net.Conn, error) {
	addr, err := hint.Addr()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", addr, err)
	}

	// Unblock the handshake read if the caller cancels mid-wait.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if _, err := fmt.Fprintf(conn, "please relay %x\n", token); err != nil {
		conn.Close()
		return nil, fmt.Errorf("relay handshake write failed: %w", err)
	}

	reply, err := readLine(conn)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("relay handshake read failed: %w", err)
	}
	if reply != relayOK {
		conn.Close()
		return nil, fmt.Errorf("relay refused connection: %q", strings.TrimSpace(reply))
	}

	return conn, nil
}

// readLine reads a newline-terminated reply one byte at a time so no peer
// record bytes end up stranded in a buffer.
func readLine(conn net.Conn) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for sb.Len() < 64 {
		if _, err := conn.Read(buf); err != nil {
			return "", err
		}
		sb.WriteByte(buf[0])
		if buf[0] == '\n' {
			return sb.String(), nil
		}
	}
	return "", errors.New("relay handshake reply too long")
}
