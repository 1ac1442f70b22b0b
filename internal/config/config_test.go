// ABOUTME: Tests for configuration loading and validation
// ABOUTME: File overlay on defaults and rejection of bad values
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValidOnceServerSet(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without server")
	}

	cfg.Server = "192.168.1.10"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
	if cfg.Address() != "192.168.1.10:3483" {
		t.Errorf("expected 192.168.1.10:3483, got %s", cfg.Address())
	}
	if cfg.BufferSize() != 2048*1024 {
		t.Errorf("expected 2 MiB buffer, got %d", cfg.BufferSize())
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.yaml")
	content := `
server: lms.local
name: Kitchen
log_level: debug
timing:
  stall_timeout: 3s
backoff:
  max: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server != "lms.local" || cfg.Name != "Kitchen" {
		t.Errorf("unexpected server/name %q/%q", cfg.Server, cfg.Name)
	}
	if cfg.Timing.StallTimeout != 3*time.Second {
		t.Errorf("expected stall timeout 3s, got %v", cfg.Timing.StallTimeout)
	}
	if cfg.Backoff.Max != 10*time.Second {
		t.Errorf("expected backoff max 10s, got %v", cfg.Backoff.Max)
	}
	// Untouched values keep their defaults
	if cfg.Port != DefaultPort || cfg.Timing.Heartbeat != DefaultHeartbeat {
		t.Errorf("expected defaults kept, got port %d heartbeat %v", cfg.Port, cfg.Timing.Heartbeat)
	}
	if !cfg.Debug() {
		t.Error("expected debug logging")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Name != DefaultName {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unterminated"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"mac", func(c *Config) { c.MAC = "zz:zz" }, "invalid mac"},
		{"buffer", func(c *Config) { c.BufferSizeKiB = 8 }, "buffer size"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log level"},
		{"heartbeat", func(c *Config) { c.Timing.Heartbeat = 0 }, "heartbeat"},
		{"silence", func(c *Config) { c.Timing.SilenceTimeout = time.Second }, "silence_timeout"},
		{"multiplier", func(c *Config) { c.Backoff.Multiplier = 0.5 }, "multiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server = "localhost"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
