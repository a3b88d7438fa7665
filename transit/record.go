package transit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/nacl/secretbox"
)

// MaxRecordSize bounds the plaintext size of a single record. Incoming
// length prefixes larger than this (plus the secretbox overhead) are
// rejected before any allocation.
const MaxRecordSize = 1 << 20

// ErrRecordAuthentication indicates that an incoming record failed
// secretbox authentication.
var ErrRecordAuthentication = errors.New("record authentication failed")

// RecordConn frames a network connection into encrypted records. Each
// direction uses its own key and a monotonically increasing nonce, so
// replayed or reordered records fail authentication.
type RecordConn struct {
	conn      net.Conn
	sendKey   [32]byte
	recvKey   [32]byte
	sendNonce uint64
	recvNonce uint64
}

// NewRecordConn wraps conn with record framing under the given keys.
func NewRecordConn(conn net.Conn, sendKey, recvKey [32]byte) *RecordConn {
	return &RecordConn{conn: conn, sendKey: sendKey, recvKey: recvKey}
}

// WriteRecord seals p and writes it as one length-prefixed record.
func (rc *RecordConn) WriteRecord(p []byte) error {
	if len(p) > MaxRecordSize {
		return fmt.Errorf("record size %d exceeds maximum %d", len(p), MaxRecordSize)
	}

	var nonce [24]byte
	binary.BigEndian.PutUint64(nonce[16:], rc.sendNonce)
	rc.sendNonce++

	sealed := secretbox.Seal(nil, p, &nonce, &rc.sendKey)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(sealed)))
	if _, err := rc.conn.Write(length[:]); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := rc.conn.Write(sealed); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// ReadRecord reads and opens the next record.
func (rc *RecordConn) ReadRecord() ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(rc.conn, length[:]); err != nil {
		return nil, fmt.Errorf("failed to read record length: %w", err)
	}

	size := binary.BigEndian.Uint32(length[:])
	if size > MaxRecordSize+secretbox.Overhead {
		return nil, fmt.Errorf("record size %d exceeds maximum", size)
	}

	sealed := make([]byte, size)
	if _, err := io.ReadFull(rc.conn, sealed); err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var nonce [24]byte
	binary.BigEndian.PutUint64(nonce[16:], rc.recvNonce)
	rc.recvNonce++

	plain, ok := secretbox.Open(nil, sealed, &nonce, &rc.recvKey)
	if !ok {
		return nil, ErrRecordAuthentication
	}

	return plain, nil
}

// Close closes the underlying connection.
func (rc *RecordConn) Close() error {
	return rc.conn.Close()
}
