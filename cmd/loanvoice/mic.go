package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/capture"
)

// micDevice acquires the microphone through an ffmpeg subprocess that writes
// raw s16le PCM to stdout. Open blocks until the first full frame has been
// read (or the process dies), so permission and missing-device failures
// surface as errors from Open instead of as a silently empty stream.
type micDevice struct {
	// input overrides the platform default input. On linux this is a pulse
	// source name, on darwin an avfoundation device index like ":0".
	input string
}

var _ capture.Device = (*micDevice)(nil)

func newMicDevice(input string) *micDevice {
	return &micDevice{input: input}
}

func (d *micDevice) Open(ctx context.Context, cfg capture.Config) (capture.Stream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not in PATH: %w", capture.ErrNoDevice)
	}
	args, err := micArgs(runtime.GOOS, d.input, cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening ffmpeg stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	s := &micStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		frames: make(chan audio.AudioFrame, 4),
		ready:  make(chan struct{}),
		failed: make(chan error, 1),
		closed: make(chan struct{}),
	}
	go s.pump()

	select {
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	case err := <-s.failed:
		return nil, err
	case <-s.ready:
		return s, nil
	}
}

// micArgs builds the ffmpeg command line for the platform capture backend.
func micArgs(goos, input string, cfg capture.Config) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	switch goos {
	case "linux":
		if input == "" {
			input = "default"
		}
		args = append(args, "-f", "pulse", "-i", input)
	case "darwin":
		if input == "" {
			input = ":0"
		}
		args = append(args, "-f", "avfoundation", "-i", input)
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s", goos)
	}
	args = append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	)
	// ffmpeg has no acoustic echo canceller; the pulse echo-cancel module
	// covers that when enabled system-side. Noise suppression maps onto the
	// afftdn denoise filter.
	if cfg.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	args = append(args, "-f", "s16le", "-")
	return args, nil
}

// micStream slices the ffmpeg byte stream into fixed-duration frames.
type micStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cfg    capture.Config

	frames chan audio.AudioFrame
	ready  chan struct{}
	failed chan error

	closeOnce sync.Once
	closed    chan struct{}
}

var _ capture.Stream = (*micStream)(nil)

func (s *micStream) Frames() <-chan audio.AudioFrame { return s.frames }

// Close kills ffmpeg, which unblocks the pump's read and releases the
// device before the pump reaps the process.
func (s *micStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return nil
}

func (s *micStream) pump() {
	defer close(s.frames)

	samples := s.cfg.SampleRate * int(s.cfg.FrameDuration.Milliseconds()) / 1000
	frameBytes := samples * s.cfg.Channels * 2

	first := true
	var elapsed time.Duration
loop:
	for {
		buf := make([]byte, frameBytes)
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			break
		}
		if first {
			first = false
			close(s.ready)
		}
		frame := audio.AudioFrame{
			Data:       buf,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Timestamp:  elapsed,
		}
		elapsed += s.cfg.FrameDuration
		select {
		case s.frames <- frame:
		case <-s.closed:
			break loop
		}
	}

	waitErr := s.cmd.Wait()
	if first {
		// Never produced a frame: ffmpeg refused the device. Classify the
		// exit for Open.
		s.failed <- classifyMicError(waitErr, s.stderr.String())
	}
}

// classifyMicError maps an ffmpeg failure onto the capture sentinels so the
// caller can tell the user what to fix.
func classifyMicError(waitErr error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"):
		return fmt.Errorf("%w: %s", capture.ErrPermissionDenied, detail)
	case strings.Contains(lower, "no such"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "could not find"),
		strings.Contains(lower, "connection refused"):
		return fmt.Errorf("%w: %s", capture.ErrNoDevice, detail)
	case detail != "":
		return fmt.Errorf("ffmpeg capture failed: %s", detail)
	case waitErr != nil:
		return fmt.Errorf("ffmpeg capture failed: %w", waitErr)
	default:
		return errors.New("ffmpeg exited before producing audio")
	}
}
