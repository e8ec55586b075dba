// Package config provides the configuration schema and loader for the
// loanvoice client.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "200ms" parse.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and bare integers (seconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Encoding selects the wire format for outbound audio.
type Encoding string

const (
	// EncodingPCM sends raw PCM16 little-endian frames.
	EncodingPCM Encoding = "pcm"

	// EncodingOpus sends 20ms Opus packets.
	EncodingOpus Encoding = "opus"
)

// IsValid reports whether e is a recognised encoding.
func (e Encoding) IsValid() bool {
	return e == EncodingPCM || e == EncodingOpus
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig describes the voice backend and how to authenticate.
type ServerConfig struct {
	// URL is the streaming endpoint (e.g. "wss://host/api/voice/stream").
	URL string `yaml:"url"`

	// TokenEnv names the environment variable holding the bearer token
	// attached to the connection URL. Empty dials unauthenticated.
	TokenEnv string `yaml:"token_env"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig holds microphone and outbound audio settings.
type CaptureConfig struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDuration is the capture emission cadence. Defaults to 200ms.
	FrameDuration Duration `yaml:"frame_duration"`

	// Gain boosts quiet microphones; 1.0 is unity. Defaults to 1.0.
	Gain float64 `yaml:"gain"`

	// EchoCancellation requests platform echo cancellation.
	EchoCancellation bool `yaml:"echo_cancellation"`

	// NoiseSuppression requests platform noise suppression.
	NoiseSuppression bool `yaml:"noise_suppression"`

	// Encoding selects the outbound wire format. Defaults to pcm.
	Encoding Encoding `yaml:"encoding"`

	// Device names the input device handed to the capture backend, in
	// whatever form that backend expects. Empty picks the default.
	Device string `yaml:"device"`
}

// PlaybackConfig describes the audio chunks the server streams back.
type PlaybackConfig struct {
	// Encoding names the chunk container: wav (self-describing, the
	// default), pcm or opus. The latter two need SampleRate and Channels.
	Encoding string `yaml:"encoding"`

	// SampleRate in Hz for raw pcm and opus chunks. Defaults to 24000.
	SampleRate int `yaml:"sample_rate"`

	// Channels for raw pcm and opus chunks. Defaults to 1.
	Channels int `yaml:"channels"`
}

// NotifyConfig configures the auxiliary notification channel.
type NotifyConfig struct {
	// URL is the notification endpoint. Empty disables the channel.
	URL string `yaml:"url"`

	// MaxAttempts bounds reconnect attempts per outage. Defaults to 10.
	MaxAttempts int `yaml:"max_attempts"`

	// Backoff is the initial reconnect delay, doubling up to MaxBackoff.
	Backoff Duration `yaml:"backoff"`

	// MaxBackoff caps the reconnect delay.
	MaxBackoff Duration `yaml:"max_backoff"`
}

// MetricsConfig configures the local observability endpoint.
type MetricsConfig struct {
	// ListenAddr is the TCP address serving /metrics and /healthz
	// (e.g. "127.0.0.1:9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}
