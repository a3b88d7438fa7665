// Package wordlist implements wormhole code generation and parsing.
//
// A wormhole code is a short human-speakable secret of the form
// "nameplate-word-word", where the nameplate is a small decimal number
// allocated by the rendezvous server and the words are drawn from the
// PGP word lists.
//
// Example:
//
//	words, _ := wordlist.Words(2)
//	code := wordlist.NewCode("7", words)
//	parsed, err := wordlist.Parse(code)
package wordlist

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultLength is the number of words in a code when the caller does not
// request a specific length.
const DefaultLength = 2

// ErrInvalidCode indicates that a code string is not a well-formed wormhole code.
var ErrInvalidCode = errors.New("invalid wormhole code")

// Code is a parsed wormhole code.
type Code struct {
	Nameplate string
	Words     []string
}

// String reassembles the code into its wire form.
func (c *Code) String() string {
	return c.Nameplate + "-" + strings.Join(c.Words, "-")
}

// Words selects length random words from the PGP word lists. Words alternate
// between the odd and even lists so that the final word always comes from
// the even list.
func Words(length int) ([]string, error) {
	if length < 1 {
		return nil, fmt.Errorf("code length must be at least 1, got %d", length)
	}

	words := make([]string, length)
	for i := 0; i < length; i++ {
		list := evenWords
		if (length-1-i)%2 == 1 {
			list = oddWords
		}

		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return nil, fmt.Errorf("failed to select random word: %w", err)
		}
		words[i] = list[n.Int64()]
	}

	logrus.WithFields(logrus.Fields{
		"function": "Words",
		"length":   length,
	}).Debug("Selected code words")

	return words, nil
}

// NewCode joins a nameplate and words into a wormhole code string.
func NewCode(nameplate string, words []string) string {
	return nameplate + "-" + strings.Join(words, "-")
}

// Parse validates a code string and splits it into nameplate and words.
// The nameplate must be a non-empty decimal number and every word must
// appear in one of the PGP word lists. Parse performs no network activity.
func Parse(s string) (*Code, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q must have a nameplate and at least one word", ErrInvalidCode, s)
	}

	nameplate := parts[0]
	if !isDecimal(nameplate) {
		return nil, fmt.Errorf("%w: nameplate %q is not a number", ErrInvalidCode, nameplate)
	}

	words := parts[1:]
	for _, w := range words {
		if !knownWord(strings.ToLower(w)) {
			return nil, fmt.Errorf("%w: %q is not a wordlist word", ErrInvalidCode, w)
		}
	}

	return &Code{Nameplate: nameplate, Words: words}, nil
}

// isDecimal reports whether s is a non-empty string of ASCII digits.
func isDecimal(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// knownWord reports whether w appears in either PGP word list.
func knownWord(w string) bool {
	for _, candidate := range evenWords {
		if candidate == w {
			return true
		}
	}
	for _, candidate := range oddWords {
		if candidate == w {
			return true
		}
	}
	return false
}
