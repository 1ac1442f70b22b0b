// ABOUTME: Player configuration with defaults, YAML loading and validation
// ABOUTME: Flags in main override whatever the file sets
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultPort             = slimproto.DefaultPort
	DefaultName             = "SlimPlayer"
	DefaultBufferSizeKiB    = 2048
	DefaultMaxSampleRate    = 48000
	DefaultLogFile          = "slimplayer.log"
	DefaultHeartbeat        = time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultSilenceTimeout   = 35 * time.Second
	DefaultStallTimeout     = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultDataRetries      = 1
	DefaultLowWatermark     = time.Second
)

// Config holds every tunable of the player
type Config struct {
	Server        string `yaml:"server"`
	Port          int    `yaml:"port"`
	Name          string `yaml:"name"`
	MAC           string `yaml:"mac"`
	BufferSizeKiB int    `yaml:"buffer_size_kib"`
	Output        string `yaml:"output"`
	MaxSampleRate int    `yaml:"max_sample_rate"`

	LogFile    string `yaml:"log_file"`
	LogLevel   string `yaml:"log_level"`
	NoTUI      bool   `yaml:"no_tui"`
	StatusAddr string `yaml:"status_addr"`

	Timing  TimingConfig  `yaml:"timing"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// TimingConfig groups the protocol timers
type TimingConfig struct {
	Heartbeat        time.Duration `yaml:"heartbeat"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SilenceTimeout   time.Duration `yaml:"silence_timeout"`
	StallTimeout     time.Duration `yaml:"stall_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	DataRetries      int           `yaml:"data_retries"`
	LowWatermark     time.Duration `yaml:"low_watermark"`
}

// BackoffConfig is the control-channel reconnect policy
type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	Multiplier  float64       `yaml:"multiplier"`
	ReportAfter int           `yaml:"report_after"`
	Jitter      bool          `yaml:"jitter"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:          DefaultPort,
		Name:          DefaultName,
		BufferSizeKiB: DefaultBufferSizeKiB,
		MaxSampleRate: DefaultMaxSampleRate,
		LogFile:       DefaultLogFile,
		LogLevel:      "info",
		Timing: TimingConfig{
			Heartbeat:        DefaultHeartbeat,
			HandshakeTimeout: DefaultHandshakeTimeout,
			SilenceTimeout:   DefaultSilenceTimeout,
			StallTimeout:     DefaultStallTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			DataRetries:      DefaultDataRetries,
			LowWatermark:     DefaultLowWatermark,
		},
		Backoff: BackoffConfig{
			Initial:     500 * time.Millisecond,
			Max:         30 * time.Second,
			Multiplier:  2.0,
			ReportAfter: 10,
			Jitter:      true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Address returns host:port of the control server
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server, fmt.Sprintf("%d", c.Port))
}

// BufferSize returns the stream buffer capacity in bytes
func (c *Config) BufferSize() int {
	return c.BufferSizeKiB * 1024
}

// Debug reports whether per-frame tracing is enabled
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Validate checks the configuration for values the player cannot run with
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1-65535)", c.Port)
	}
	if c.Name == "" {
		return fmt.Errorf("player name must not be empty")
	}
	if c.MAC != "" {
		if _, err := net.ParseMAC(c.MAC); err != nil {
			return fmt.Errorf("invalid mac %q: %w", c.MAC, err)
		}
	}
	if c.BufferSizeKiB < 64 {
		return fmt.Errorf("invalid buffer size: %d KiB (minimum 64)", c.BufferSizeKiB)
	}
	if c.MaxSampleRate <= 0 {
		return fmt.Errorf("invalid max sample rate: %d", c.MaxSampleRate)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info":
	default:
		return fmt.Errorf("invalid log level %q (must be debug or info)", c.LogLevel)
	}

	t := c.Timing
	for name, d := range map[string]time.Duration{
		"heartbeat":         t.Heartbeat,
		"handshake_timeout": t.HandshakeTimeout,
		"silence_timeout":   t.SilenceTimeout,
		"stall_timeout":     t.StallTimeout,
		"write_timeout":     t.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %v (must be positive)", name, d)
		}
	}
	if t.SilenceTimeout <= t.Heartbeat {
		return fmt.Errorf("silence_timeout %v must exceed heartbeat %v", t.SilenceTimeout, t.Heartbeat)
	}
	if t.DataRetries < 0 {
		return fmt.Errorf("invalid data_retries: %d", t.DataRetries)
	}
	if t.LowWatermark < 0 {
		return fmt.Errorf("invalid low_watermark: %v", t.LowWatermark)
	}

	b := c.Backoff
	if b.Initial <= 0 || b.Max < b.Initial {
		return fmt.Errorf("invalid backoff delays: initial %v, max %v", b.Initial, b.Max)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("invalid backoff multiplier: %v (must be >= 1)", b.Multiplier)
	}
	return nil
}
