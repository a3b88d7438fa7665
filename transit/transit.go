// Package transit implements the wormhole data plane: the connection over
// which file bytes are streamed once the mailbox-based key exchange has
// completed.
//
// Connections run through a transit relay (with direct peer hints as a
// future extension). All traffic is framed into length-prefixed records
// sealed with NaCl secretbox under keys derived from the channel session
// key, one key per direction.
package transit

import (
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
)

// DefaultRelayURL is the transit relay used when the caller does not
// configure one.
const DefaultRelayURL = "tcp://transit.magic-wormhole.io:4001"

// RelayHint describes how to reach a transit relay server.
type RelayHint struct {
	URL string
}

// Addr returns the host:port the relay listens on, or an error if the
// hint URL is malformed.
func (h RelayHint) Addr() (string, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return "", fmt.Errorf("malformed relay hint %q: %w", h.URL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay hint %q has no host", h.URL)
	}
	return u.Host, nil
}

// NewRelayHints builds a hint set for a single relay URL, validating the
// URL up front so connection code can assume well-formed hints.
func NewRelayHints(relayURL string) ([]RelayHint, error) {
	hint := RelayHint{URL: relayURL}
	if _, err := hint.Addr(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRelayHints",
		"relay":    relayURL,
	}).Debug("Relay hints constructed")

	return []RelayHint{hint}, nil
}

// DefaultRelayHints returns the hint set for the default relay.
func DefaultRelayHints() ([]RelayHint, error) {
	return NewRelayHints(DefaultRelayURL)
}
