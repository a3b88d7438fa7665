package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/wormhole/rendezvous"
)

// ErrRejected indicates that the receiver declined the offered file.
var ErrRejected = errors.New("transfer rejected by peer")

// rejectedText is the error text sent to decline an offer.
const rejectedText = "transfer rejected"

// controlMessage is the JSON envelope for channel control traffic. Exactly
// one field is set per message.
type controlMessage struct {
	Offer  *offerMessage  `json:"offer,omitempty"`
	Answer *answerMessage `json:"answer,omitempty"`
	Error  string         `json:"error,omitempty"`
	Closed bool           `json:"closed,omitempty"`
}

// offerMessage announces a file to the peer.
type offerMessage struct {
	File *fileDescription `json:"file,omitempty"`
}

// fileDescription carries the offered file's metadata.
type fileDescription struct {
	Filename string `json:"filename"`
	Filesize uint64 `json:"filesize"`
}

// answerMessage accepts an offer.
type answerMessage struct {
	FileAck string `json:"file_ack,omitempty"`
}

// sendControl marshals and sends one control message over the channel.
func sendControl(ctx context.Context, ch *rendezvous.Channel, msg *controlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}
	return ch.SendMessage(ctx, body)
}

// receiveControl receives and unmarshals the peer's next control message.
func receiveControl(ctx context.Context, ch *rendezvous.Channel) (*controlMessage, error) {
	body, err := ch.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}

	var msg controlMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}
	return &msg, nil
}

// SendClose tells the peer this side is withdrawing before any transfer.
func SendClose(ctx context.Context, ch *rendezvous.Channel) error {
	return sendControl(ctx, ch, &controlMessage{Closed: true})
}
