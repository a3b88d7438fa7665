package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/wormhole/rendezvous"
	"github.com/opd-ai/wormhole/transit"
)

func TestLoadOptionsDefaults(t *testing.T) {
	opts, codeLength, err := loadOptions("")
	if err != nil {
		t.Fatalf("load options: %v", err)
	}
	if opts.RendezvousURL != rendezvous.DefaultServerURL {
		t.Fatalf("unexpected rendezvous url: %q", opts.RendezvousURL)
	}
	if opts.AppID != rendezvous.DefaultAppID {
		t.Fatalf("unexpected app id: %q", opts.AppID)
	}
	if opts.RelayURL != transit.DefaultRelayURL {
		t.Fatalf("unexpected relay url: %q", opts.RelayURL)
	}
	if codeLength != 0 {
		t.Fatalf("unexpected code length: %d", codeLength)
	}
}

func TestLoadOptionsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
rendezvous_url = "ws://rendezvous.example.net:4000/v1"
relay_url = "tcp://relay.example.net:4001"
code_length = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, codeLength, err := loadOptions(path)
	if err != nil {
		t.Fatalf("load options: %v", err)
	}
	if opts.RendezvousURL != "ws://rendezvous.example.net:4000/v1" {
		t.Fatalf("unexpected rendezvous url: %q", opts.RendezvousURL)
	}
	if opts.RelayURL != "tcp://relay.example.net:4001" {
		t.Fatalf("unexpected relay url: %q", opts.RelayURL)
	}
	if opts.AppID != rendezvous.DefaultAppID {
		t.Fatalf("app id should keep its default, got %q", opts.AppID)
	}
	if codeLength != 3 {
		t.Fatalf("unexpected code length: %d", codeLength)
	}
}

func TestLoadOptionsRejectsEmptyValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`app_id = "  "`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := loadOptions(path); err == nil {
		t.Fatal("expected error for empty app_id")
	}
}

func TestLoadOptionsRejectsNegativeCodeLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`code_length = -1`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := loadOptions(path); err == nil {
		t.Fatal("expected error for negative code_length")
	}
}

func TestLoadOptionsMissingFile(t *testing.T) {
	if _, _, err := loadOptions(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
