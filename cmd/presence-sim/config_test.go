package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presence.yaml")
	err := os.WriteFile(path, []byte("rooms: 7\ncodec: cbor\nheartbeat_interval: 250ms\n"), 0o600)
	if err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	t.Setenv("PRESENCE_DROP_RATE", "0.25")
	t.Setenv("PRESENCE_ROOMS", "9")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %s", err)
	}
	if cfg.Rooms != 9 {
		t.Errorf("env should win over the file: got rooms=%d", cfg.Rooms)
	}
	if cfg.Codec != "cbor" || cfg.HeartbeatInterval != 250*time.Millisecond {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.DropRate != 0.25 {
		t.Errorf("got drop rate %v", cfg.DropRate)
	}
	if cfg.ClientsPerRoom != 5 || cfg.Postgres != "memory" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if got := cfg.BaseURL(); got != "http://localhost:8090" {
		t.Errorf("BaseURL: got %s", got)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name string
		env  string
		val  string
	}{
		{name: "drop rate of one", env: "PRESENCE_DROP_RATE", val: "1"},
		{name: "negative leave chance", env: "PRESENCE_LEAVE_CHANCE", val: "-0.5"},
		{name: "no rooms", env: "PRESENCE_ROOMS", val: "0"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "presence.yaml")
			if err := os.WriteFile(path, []byte("debug: false\n"), 0o600); err != nil {
				t.Fatalf("WriteFile: %s", err)
			}
			if _, err := LoadConfig(path); err != nil {
				t.Fatalf("LoadConfig without overrides: %s", err)
			}
			t.Setenv(tc.env, tc.val)
			if _, err := LoadConfig(path); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
