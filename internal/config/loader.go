package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if !strings.HasPrefix(cfg.Server.URL, "ws://") && !strings.HasPrefix(cfg.Server.URL, "wss://") {
		errs = append(errs, fmt.Errorf("server.url %q must use a ws:// or wss:// scheme", cfg.Server.URL))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TokenEnv == "" {
		slog.Warn("server.token_env is empty; connecting without authentication")
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Encoding != "" && !cfg.Capture.Encoding.IsValid() {
		errs = append(errs, fmt.Errorf("capture.encoding %q is invalid; valid values: pcm, opus", cfg.Capture.Encoding))
	}
	if cfg.Capture.Encoding == EncodingOpus {
		switch cfg.Capture.SampleRate {
		case 0, 8000, 12000, 16000, 24000, 48000:
		default:
			errs = append(errs, fmt.Errorf("capture.sample_rate %d is unusable with opus; valid rates: 8000, 12000, 16000, 24000, 48000", cfg.Capture.SampleRate))
		}
	}
	if cfg.Capture.Gain < 0 {
		errs = append(errs, fmt.Errorf("capture.gain %.2f must not be negative", cfg.Capture.Gain))
	}
	if d := cfg.Capture.FrameDuration.Std(); d != 0 && (d < 10*time.Millisecond || d > time.Second) {
		errs = append(errs, fmt.Errorf("capture.frame_duration %v is out of range [10ms, 1s]", d))
	}

	// Playback
	switch cfg.Playback.Encoding {
	case "", "wav", "pcm", "opus":
	default:
		errs = append(errs, fmt.Errorf("playback.encoding %q is invalid; valid values: wav, pcm, opus", cfg.Playback.Encoding))
	}
	if cfg.Playback.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d must not be negative", cfg.Playback.SampleRate))
	}
	if cfg.Playback.Channels < 0 || cfg.Playback.Channels > 2 {
		errs = append(errs, fmt.Errorf("playback.channels %d is out of range [0, 2]", cfg.Playback.Channels))
	}
	if cfg.Playback.Encoding == "opus" {
		switch cfg.Playback.SampleRate {
		case 0, 8000, 12000, 16000, 24000, 48000:
		default:
			errs = append(errs, fmt.Errorf("playback.sample_rate %d is unusable with opus; valid rates: 8000, 12000, 16000, 24000, 48000", cfg.Playback.SampleRate))
		}
	}

	// Notify
	if cfg.Notify.URL != "" {
		if !strings.HasPrefix(cfg.Notify.URL, "ws://") && !strings.HasPrefix(cfg.Notify.URL, "wss://") {
			errs = append(errs, fmt.Errorf("notify.url %q must use a ws:// or wss:// scheme", cfg.Notify.URL))
		}
		if cfg.Notify.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("notify.max_attempts %d must not be negative", cfg.Notify.MaxAttempts))
		}
	}

	return errors.Join(errs...)
}
