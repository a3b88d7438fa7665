package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wormhole/rendezvous"
	"github.com/opd-ai/wormhole/transit"
)

// Send offers a file over the channel and, once the peer accepts, streams
// it over a transit connection built from the relay hints. Progress is
// reported with cumulative sent bytes. If the peer declines, Send returns
// ErrRejected.
func Send(ctx context.Context, ch *rendezvous.Channel, hints []transit.RelayHint, offer *Offer, progress transit.ProgressFunc) error {
	logrus.WithFields(logrus.Fields{
		"function":  "Send",
		"file_name": offer.Name,
		"file_size": offer.Size,
	}).Info("Offering file to peer")

	err := sendControl(ctx, ch, &controlMessage{
		Offer: &offerMessage{File: &fileDescription{
			Filename: offer.Name,
			Filesize: offer.Size,
		}},
	})
	if err != nil {
		return err
	}

	answer, err := receiveControl(ctx, ch)
	if err != nil {
		return err
	}
	switch {
	case answer.Error == rejectedText:
		return ErrRejected
	case answer.Error != "":
		return fmt.Errorf("peer reported error: %s", answer.Error)
	case answer.Answer == nil || answer.Answer.FileAck != "ok":
		return fmt.Errorf("peer sent unexpected answer")
	}

	conn, err := transit.Connect(ctx, hints, ch.SessionKey(), ch.Leader())
	if err != nil {
		return fmt.Errorf("failed to establish transit connection: %w", err)
	}
	defer conn.Close()

	file, err := os.Open(offer.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", offer.Path, err)
	}
	defer file.Close()

	if err := transit.SendStream(ctx, conn, file, offer.Size, progress); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Send",
		"file_name": offer.Name,
		"file_size": offer.Size,
	}).Info("File sent successfully")

	return nil
}
