// Package mock provides an in-memory playback output for tests.
package mock

import (
	"context"
	"sync"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/playback"
)

// Output implements playback.Output and records every chunk played.
// Set Block to make Play wait until Stop (or Release) so tests can pile
// chunks up behind a sounding one.
type Output struct {
	// PlayErr, when non-nil, is returned by every Play call.
	PlayErr error

	// Block makes Play wait for Stop or Release before returning.
	Block bool

	mu       sync.Mutex
	played   [][]byte
	formats  []audio.Format
	stops    int
	closed   bool
	blocking chan struct{}
}

var _ playback.Output = (*Output)(nil)

func (o *Output) Play(ctx context.Context, pcm []byte, format audio.Format) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	o.mu.Lock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	o.played = append(o.played, buf)
	o.formats = append(o.formats, format)
	var wait chan struct{}
	if o.Block {
		wait = make(chan struct{})
		o.blocking = wait
	}
	err := o.PlayErr
	o.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (o *Output) Stop() {
	o.mu.Lock()
	o.stops++
	o.releaseLocked()
	o.mu.Unlock()
}

// Release unblocks a blocked Play without counting as a Stop, simulating a
// chunk finishing naturally.
func (o *Output) Release() {
	o.mu.Lock()
	o.releaseLocked()
	o.mu.Unlock()
}

func (o *Output) releaseLocked() {
	if o.blocking != nil {
		close(o.blocking)
		o.blocking = nil
	}
}

func (o *Output) Close() error {
	o.mu.Lock()
	o.closed = true
	o.releaseLocked()
	o.mu.Unlock()
	return nil
}

// Played returns copies of every buffer handed to Play, in order.
func (o *Output) Played() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.played))
	copy(out, o.played)
	return out
}

// Formats returns the format of each Play call, in order.
func (o *Output) Formats() []audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]audio.Format, len(o.formats))
	copy(out, o.formats)
	return out
}

// Stops reports how many times Stop was called.
func (o *Output) Stops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stops
}

// Closed reports whether Close was called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
