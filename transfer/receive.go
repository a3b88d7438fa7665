package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wormhole/rendezvous"
	"github.com/opd-ai/wormhole/transit"
)

// ReceiveRequest is an incoming offer awaiting the receiver's decision.
// Exactly one of Accept or Reject consumes it.
type ReceiveRequest struct {
	channel  *rendezvous.Channel
	hints    []transit.RelayHint
	fileName string
	fileSize uint64
}

// RequestFile waits for the sender's offer on the channel. A nil request
// with nil error means the sender withdrew before offering anything.
func RequestFile(ctx context.Context, ch *rendezvous.Channel, hints []transit.RelayHint) (*ReceiveRequest, error) {
	logrus.WithFields(logrus.Fields{
		"function": "RequestFile",
	}).Info("Waiting for file offer")

	msg, err := receiveControl(ctx, ch)
	if err != nil {
		return nil, err
	}

	if msg.Closed {
		logrus.WithFields(logrus.Fields{
			"function": "RequestFile",
		}).Info("Sender withdrew before offering")
		return nil, nil
	}
	if msg.Error != "" {
		return nil, fmt.Errorf("peer reported error: %s", msg.Error)
	}
	if msg.Offer == nil || msg.Offer.File == nil {
		return nil, fmt.Errorf("peer sent unexpected message instead of an offer")
	}
	if msg.Offer.File.Filename == "" {
		return nil, fmt.Errorf("peer offered a file with no name")
	}

	logrus.WithFields(logrus.Fields{
		"function":  "RequestFile",
		"file_name": msg.Offer.File.Filename,
		"file_size": msg.Offer.File.Filesize,
	}).Info("Received file offer")

	return &ReceiveRequest{
		channel:  ch,
		hints:    hints,
		fileName: msg.Offer.File.Filename,
		fileSize: msg.Offer.File.Filesize,
	}, nil
}

// FileName returns the offered file's name.
func (r *ReceiveRequest) FileName() string {
	return r.fileName
}

// FileSize returns the offered file's size in bytes.
func (r *ReceiveRequest) FileSize() uint64 {
	return r.fileSize
}

// Accept acknowledges the offer and streams the file into w, reporting
// cumulative received bytes through progress.
func (r *ReceiveRequest) Accept(ctx context.Context, w io.Writer, progress transit.ProgressFunc) error {
	logrus.WithFields(logrus.Fields{
		"function":  "Accept",
		"file_name": r.fileName,
		"file_size": r.fileSize,
	}).Info("Accepting file offer")

	err := sendControl(ctx, r.channel, &controlMessage{
		Answer: &answerMessage{FileAck: "ok"},
	})
	if err != nil {
		return err
	}

	conn, err := transit.Connect(ctx, r.hints, r.channel.SessionKey(), r.channel.Leader())
	if err != nil {
		return fmt.Errorf("failed to establish transit connection: %w", err)
	}
	defer conn.Close()

	if err := transit.ReceiveStream(ctx, conn, w, r.fileSize, progress); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Accept",
		"file_name": r.fileName,
	}).Info("File received successfully")

	return nil
}

// Reject declines the offer.
func (r *ReceiveRequest) Reject(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function":  "Reject",
		"file_name": r.fileName,
	}).Info("Rejecting file offer")

	return sendControl(ctx, r.channel, &controlMessage{Error: rejectedText})
}
