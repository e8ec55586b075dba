package main

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/capture"
)

func TestMicArgs(t *testing.T) {
	cfg := capture.Config{SampleRate: 16000, Channels: 1}

	t.Run("linux defaults to pulse", func(t *testing.T) {
		args, err := micArgs("linux", "", cfg)
		if err != nil {
			t.Fatalf("micArgs: %v", err)
		}
		for _, want := range []string{"pulse", "default", "16000", "s16le"} {
			if !slices.Contains(args, want) {
				t.Errorf("args %v missing %q", args, want)
			}
		}
	})

	t.Run("device override", func(t *testing.T) {
		args, err := micArgs("linux", "alsa_input.usb-mic", cfg)
		if err != nil {
			t.Fatalf("micArgs: %v", err)
		}
		if !slices.Contains(args, "alsa_input.usb-mic") {
			t.Errorf("args %v missing device override", args)
		}
	})

	t.Run("noise suppression adds filter", func(t *testing.T) {
		noisy := cfg
		noisy.NoiseSuppression = true
		args, err := micArgs("linux", "", noisy)
		if err != nil {
			t.Fatalf("micArgs: %v", err)
		}
		if !slices.Contains(args, "afftdn") {
			t.Errorf("args %v missing afftdn filter", args)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		if _, err := micArgs("windows", "", cfg); err == nil {
			t.Fatal("expected error for unsupported platform")
		}
	})
}

func TestClassifyMicError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"permission", "default: Permission denied", capture.ErrPermissionDenied},
		{"missing device", "No such process", capture.ErrNoDevice},
		{"pulse down", "Connection refused", capture.ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyMicError(errors.New("exit status 1"), tt.stderr)
			if !errors.Is(err, tt.want) {
				t.Errorf("classifyMicError(%q) = %v, want %v", tt.stderr, err, tt.want)
			}
		})
	}

	t.Run("unclassified keeps detail", func(t *testing.T) {
		err := classifyMicError(errors.New("exit status 1"), "something exploded")
		if errors.Is(err, capture.ErrPermissionDenied) || errors.Is(err, capture.ErrNoDevice) {
			t.Fatalf("unexpected sentinel in %v", err)
		}
	})
}

func TestPCMDuration(t *testing.T) {
	format := audio.Format{SampleRate: 24000, Channels: 1}
	// One second of mono PCM16 at 24kHz.
	if got := pcmDuration(48000, format); got != time.Second {
		t.Errorf("pcmDuration = %v, want 1s", got)
	}
	if got := pcmDuration(100, audio.Format{}); got != 0 {
		t.Errorf("pcmDuration with zero format = %v, want 0", got)
	}
}
