package transit

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key derivation labels. The leader (the side that created the code) seals
// its records with the leader key and opens with the follower key; the
// follower does the opposite.
const (
	labelLeaderRecord   = "transit-record-leader"
	labelFollowerRecord = "transit-record-follower"
	labelHandshakeToken = "transit-handshake-token"
)

// TokenSize is the size of the relay handshake token in bytes.
const TokenSize = 32

// DeriveRecordKeys derives the per-direction record keys from the channel
// session key. leader selects which key is used for sending.
func DeriveRecordKeys(sessionKey []byte, leader bool) (send, recv [32]byte, err error) {
	leaderKey, err := deriveKey(sessionKey, labelLeaderRecord)
	if err != nil {
		return send, recv, err
	}
	followerKey, err := deriveKey(sessionKey, labelFollowerRecord)
	if err != nil {
		return send, recv, err
	}

	if leader {
		return leaderKey, followerKey, nil
	}
	return followerKey, leaderKey, nil
}

// DeriveToken derives the relay handshake token from the channel session
// key. Both sides present the same token so the relay can pair them.
func DeriveToken(sessionKey []byte) ([]byte, error) {
	key, err := deriveKey(sessionKey, labelHandshakeToken)
	if err != nil {
		return nil, err
	}
	return key[:TokenSize], nil
}

// deriveKey expands sessionKey into a 32-byte key bound to label.
func deriveKey(sessionKey []byte, label string) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, sessionKey, nil, []byte(label))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("key derivation for %s failed: %w", label, err)
	}
	return key, nil
}
