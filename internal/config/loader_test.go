package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  url: wss://loans.example.com/api/voice/stream
  token_env: LOANVOICE_TOKEN
  log_level: debug
capture:
  sample_rate: 16000
  frame_duration: 200ms
  gain: 1.5
  echo_cancellation: true
  noise_suppression: true
  encoding: pcm
playback:
  encoding: wav
  sample_rate: 24000
  channels: 1
notify:
  url: wss://loans.example.com/api/notify
  max_attempts: 5
  backoff: 2s
metrics:
  listen_addr: 127.0.0.1:9090
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.URL != "wss://loans.example.com/api/voice/stream" {
		t.Errorf("server.url = %q", cfg.Server.URL)
	}
	if cfg.Server.TokenEnv != "LOANVOICE_TOKEN" {
		t.Errorf("server.token_env = %q", cfg.Server.TokenEnv)
	}
	if cfg.Capture.FrameDuration.Std() != 200*time.Millisecond {
		t.Errorf("capture.frame_duration = %v, want 200ms", cfg.Capture.FrameDuration.Std())
	}
	if cfg.Capture.Gain != 1.5 {
		t.Errorf("capture.gain = %v, want 1.5", cfg.Capture.Gain)
	}
	if cfg.Playback.Encoding != "wav" || cfg.Playback.SampleRate != 24000 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Notify.Backoff.Std() != 2*time.Second {
		t.Errorf("notify.backoff = %v, want 2s", cfg.Notify.Backoff.Std())
	}
	if cfg.Metrics.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("metrics.listen_addr = %q", cfg.Metrics.ListenAddr)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := `
server:
  url: wss://x.example.com/stream
  shiny_new_option: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	yaml := `
server:
  url: wss://x.example.com/stream
notify:
  url: wss://x.example.com/notify
  backoff: 3
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Notify.Backoff.Std() != 3*time.Second {
		t.Errorf("backoff = %v, want 3s", cfg.Notify.Backoff.Std())
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantSub: "server.url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *Config) { c.Server.URL = "https://x.example.com/stream" },
			wantSub: "ws:// or wss://",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantSub: "log_level",
		},
		{
			name:    "bad encoding",
			mutate:  func(c *Config) { c.Capture.Encoding = "flac" },
			wantSub: "capture.encoding",
		},
		{
			name: "opus with odd rate",
			mutate: func(c *Config) {
				c.Capture.Encoding = EncodingOpus
				c.Capture.SampleRate = 44100
			},
			wantSub: "unusable with opus",
		},
		{
			name:    "negative gain",
			mutate:  func(c *Config) { c.Capture.Gain = -1 },
			wantSub: "capture.gain",
		},
		{
			name:    "frame duration out of range",
			mutate:  func(c *Config) { c.Capture.FrameDuration = Duration(5 * time.Second) },
			wantSub: "frame_duration",
		},
		{
			name:    "bad playback encoding",
			mutate:  func(c *Config) { c.Playback.Encoding = "mp3" },
			wantSub: "playback.encoding",
		},
		{
			name: "playback opus with odd rate",
			mutate: func(c *Config) {
				c.Playback.Encoding = "opus"
				c.Playback.SampleRate = 44100
			},
			wantSub: "playback.sample_rate",
		},
		{
			name:    "too many playback channels",
			mutate:  func(c *Config) { c.Playback.Channels = 6 },
			wantSub: "playback.channels",
		},
		{
			name:    "bad notify scheme",
			mutate:  func(c *Config) { c.Notify.URL = "tcp://x.example.com" },
			wantSub: "notify.url",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("parsing base config: %v", err)
			}
			tc.mutate(cfg)
			err = Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidateJoinsAllFailures(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Capture.Gain = -2

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted invalid config")
	}
	for _, sub := range []string{"server.url", "log_level", "capture.gain"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error missing %q: %v", sub, err)
		}
	}
}
