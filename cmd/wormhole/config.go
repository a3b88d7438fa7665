package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/opd-ai/wormhole"
)

// config.toml key mapping to client options.
type fileConfig struct {
	RendezvousURL string `toml:"rendezvous_url"`
	AppID         string `toml:"app_id"`
	RelayURL      string `toml:"relay_url"`
	CodeLength    int    `toml:"code_length"`
}

// loadOptions overlays config.toml values on the public-server defaults.
// A missing key keeps its default; a present but empty one is rejected.
func loadOptions(path string) (*wormhole.Options, int, error) {
	opts := wormhole.NewOptions()
	codeLength := 0

	if path == "" {
		return opts, codeLength, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, 0, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("rendezvous_url") {
		opts.RendezvousURL = strings.TrimSpace(raw.RendezvousURL)
	}
	if meta.IsDefined("app_id") {
		opts.AppID = strings.TrimSpace(raw.AppID)
	}
	if meta.IsDefined("relay_url") {
		opts.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("code_length") {
		codeLength = raw.CodeLength
	}

	if opts.RendezvousURL == "" {
		return nil, 0, fmt.Errorf("load config: rendezvous_url must not be empty")
	}
	if opts.AppID == "" {
		return nil, 0, fmt.Errorf("load config: app_id must not be empty")
	}
	if opts.RelayURL == "" {
		return nil, 0, fmt.Errorf("load config: relay_url must not be empty")
	}
	if codeLength < 0 {
		return nil, 0, fmt.Errorf("load config: code_length must not be negative")
	}

	return opts, codeLength, nil
}
