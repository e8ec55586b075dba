// Package mock provides in-memory capture devices for tests.
package mock

import (
	"context"
	"sync"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/capture"
)

// Device implements capture.Device. Configure OpenErr to fail opens;
// otherwise each Open returns a fresh *Stream and records it in Streams.
type Device struct {
	// OpenErr, when non-nil, is returned by every Open call.
	OpenErr error

	// OpenDelay, when non-nil, is closed by the test to release a pending
	// Open. Leave nil for Open to return immediately.
	OpenDelay chan struct{}

	mu        sync.Mutex
	OpenCalls int
	Streams   []*Stream
	LastCfg   capture.Config
}

var _ capture.Device = (*Device)(nil)

func (d *Device) Open(ctx context.Context, cfg capture.Config) (capture.Stream, error) {
	d.mu.Lock()
	d.OpenCalls++
	d.LastCfg = cfg
	delay := d.OpenDelay
	d.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	s := &Stream{frames: make(chan audio.AudioFrame, 16)}
	d.mu.Lock()
	d.Streams = append(d.Streams, s)
	d.mu.Unlock()
	return s, nil
}

// OpenStreams reports how many handed-out streams are still open.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.Streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Stream implements capture.Stream. Tests feed frames with Push and observe
// release via Closed.
type Stream struct {
	frames chan audio.AudioFrame

	mu     sync.Mutex
	closed bool
}

var _ capture.Stream = (*Stream)(nil)

func (s *Stream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Push delivers a frame to the stream's consumer. Pushing to a closed
// stream is a test bug and panics.
func (s *Stream) Push(frame audio.AudioFrame) {
	s.frames <- frame
}
