package rendezvous

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

// Handshake mailbox phases. The initiator (code creator) sends pake-1, the
// responder answers with pake-2, and both sides then hold transport ciphers
// bound to the shared code.
const (
	phasePake1 = "pake-1"
	phasePake2 = "pake-2"
)

// pskLabel binds the pre-shared key derivation to this protocol.
const pskLabel = "wormhole-code-psk-v1"

// Authenticate runs the code-keyed Noise handshake over the mailbox and
// returns the authenticated channel. Both sides must hold the same code or
// the handshake messages fail to authenticate. The mailbox is consumed: it
// becomes the channel's message carrier.
func (mb *MailboxConnection) Authenticate(ctx context.Context) (*Channel, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "Authenticate",
		"mailbox":   mb.mailbox,
		"initiator": mb.creator,
	}).Info("Starting key exchange")

	psk, err := derivePSK(mb.cfg.AppID, mb.code.String())
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:                rand.Reader,
		Pattern:               noise.HandshakeNN,
		Initiator:             mb.creator,
		PresharedKey:          psk,
		PresharedKeyPlacement: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	var send, recv *noise.CipherState
	if mb.creator {
		msg1, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to write handshake message: %w", err)
		}
		if err := mb.AddMessage(ctx, phasePake1, msg1); err != nil {
			return nil, err
		}

		phase, body, err := mb.Next(ctx)
		if err != nil {
			return nil, err
		}
		if phase != phasePake2 {
			return nil, fmt.Errorf("expected %s message, got %q", phasePake2, phase)
		}

		_, cs1, cs2, err := hs.ReadMessage(nil, body)
		if err != nil {
			return nil, fmt.Errorf("key exchange failed, codes likely differ: %w", err)
		}
		send, recv = cs1, cs2
	} else {
		phase, body, err := mb.Next(ctx)
		if err != nil {
			return nil, err
		}
		if phase != phasePake1 {
			return nil, fmt.Errorf("expected %s message, got %q", phasePake1, phase)
		}

		if _, _, _, err := hs.ReadMessage(nil, body); err != nil {
			return nil, fmt.Errorf("key exchange failed, codes likely differ: %w", err)
		}

		msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to write handshake message: %w", err)
		}
		if err := mb.AddMessage(ctx, phasePake2, msg2); err != nil {
			return nil, err
		}
		send, recv = cs2, cs1
	}

	sessionKey := make([]byte, 32)
	copy(sessionKey, hs.ChannelBinding())

	logrus.WithFields(logrus.Fields{
		"function": "Authenticate",
		"mailbox":  mb.mailbox,
	}).Info("Key exchange complete")

	return &Channel{
		mailbox:    mb,
		send:       send,
		recv:       recv,
		sessionKey: sessionKey,
	}, nil
}

// derivePSK expands the wormhole code into the handshake pre-shared key,
// namespaced by application identity.
func derivePSK(appID, code string) ([]byte, error) {
	psk := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(code), []byte(appID), []byte(pskLabel))
	if _, err := io.ReadFull(r, psk); err != nil {
		return nil, fmt.Errorf("failed to derive handshake key: %w", err)
	}
	return psk, nil
}
