// Package transfer implements the wormhole file transfer protocol: offer
// and answer negotiation over an authenticated channel, followed by bulk
// streaming over transit.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Offer describes one outgoing file.
type Offer struct {
	Name string
	Size uint64
	Path string
}

// NewFileOffer builds an offer from a file path. Only the metadata is read;
// the file content is streamed later.
func NewFileOffer(path string) (*Offer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, only single files can be offered", path)
	}

	offer := &Offer{
		Name: filepath.Base(path),
		Size: uint64(info.Size()),
		Path: path,
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewFileOffer",
		"file_name": offer.Name,
		"file_size": offer.Size,
	}).Debug("File offer created")

	return offer, nil
}
