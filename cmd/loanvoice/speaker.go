package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/playback"
)

// speaker renders PCM16 through a long-lived ffplay subprocess fed over
// stdin. The process starts lazily on the first Play, which pins the pipe
// format; chunks arriving in a different format are converted rather than
// tearing the process down mid-stream.
//
// ffplay consumes its stdin far faster than real time, so Play paces itself
// on the wall-clock duration of the written samples; Stop kills the process
// (discarding whatever ffplay had buffered) and aborts the wait.
type speaker struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	conv  *audio.FormatConverter
	abort chan struct{}
}

var _ playback.Output = (*speaker)(nil)

func newSpeaker() *speaker { return &speaker{} }

func (s *speaker) Play(ctx context.Context, pcm []byte, format audio.Format) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if err := s.ensureStartedLocked(format); err != nil {
		s.mu.Unlock()
		return err
	}
	frame := s.conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: format.SampleRate, Channels: format.Channels})
	if len(frame.Data) == 0 {
		s.mu.Unlock()
		return nil
	}
	abort := make(chan struct{})
	s.abort = abort
	stdin := s.stdin
	target := s.conv.Target
	s.mu.Unlock()

	if _, err := stdin.Write(frame.Data); err != nil {
		return fmt.Errorf("writing to ffplay: %w", err)
	}

	var err error
	select {
	case <-time.After(pcmDuration(len(frame.Data), target)):
	case <-abort:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	if s.abort == abort {
		s.abort = nil
	}
	s.mu.Unlock()
	return err
}

func (s *speaker) Stop() {
	s.mu.Lock()
	abort := s.abort
	s.abort = nil
	if abort != nil {
		// Kill rather than drain: a barge-in must go silent now, not after
		// ffplay's buffer empties.
		s.shutdownLocked()
	}
	s.mu.Unlock()
	if abort != nil {
		close(abort)
	}
}

func (s *speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked()
	return nil
}

// ensureStartedLocked starts ffplay on the first chunk, locking the pipe
// onto that chunk's format.
func (s *speaker) ensureStartedLocked(format audio.Format) error {
	if s.cmd != nil {
		return nil
	}

	if _, err := exec.LookPath("ffplay"); err != nil {
		return fmt.Errorf("ffplay not in PATH: %w", err)
	}
	cmd := exec.Command("ffplay",
		"-hide_banner", "-loglevel", "error",
		"-nodisp",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.conv = &audio.FormatConverter{Target: format}
	return nil
}

func (s *speaker) shutdownLocked() {
	if s.cmd == nil {
		return
	}
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	s.conv = nil
}

func pcmDuration(n int, format audio.Format) time.Duration {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return 0
	}
	samples := n / 2 / format.Channels
	return time.Duration(samples) * time.Second / time.Duration(format.SampleRate)
}