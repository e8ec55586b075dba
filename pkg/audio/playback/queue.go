package playback

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
)

// Queue plays audio chunks in arrival order through an [Output].
//
// Chunks arrive base64 encoded. Enqueue is cheap; decoding happens on the
// drain goroutine just before a chunk sounds, and a chunk that fails to
// decode is logged, skipped and playback continues with the next one.
// At most one drain runs at a time, so chunks never overlap.
type Queue struct {
	out    Output
	decode DecodeFunc
	log    *slog.Logger

	// onDecodeError, when set, is called for each skipped chunk.
	onDecodeError func(error)

	// onDepth, when set, is called with the signed change in queued chunks.
	onDepth func(delta int)

	mu      sync.Mutex
	items   [][]byte
	playing bool
	waiters []chan struct{}

	// flushCtx is cancelled by Flush under mu, together with the item discard,
	// so a chunk popped before the flush cannot start sounding after it.
	flushCtx    context.Context
	flushCancel context.CancelFunc
}

// QueueOption configures a [Queue].
type QueueOption func(*Queue)

// WithDecoder replaces the default WAV decoder.
func WithDecoder(decode DecodeFunc) QueueOption {
	return func(q *Queue) { q.decode = decode }
}

// WithQueueLogger sets the logger for skip and drain diagnostics.
func WithQueueLogger(log *slog.Logger) QueueOption {
	return func(q *Queue) { q.log = log }
}

// WithDecodeErrorFunc installs a hook called once per skipped chunk.
func WithDecodeErrorFunc(fn func(error)) QueueOption {
	return func(q *Queue) { q.onDecodeError = fn }
}

// WithDepthFunc installs a hook reporting queue depth changes: +1 per
// enqueue, -1 per pop, -n when a flush discards n queued chunks.
func WithDepthFunc(fn func(delta int)) QueueOption {
	return func(q *Queue) { q.onDepth = fn }
}

// NewQueue creates an empty queue draining into out.
func NewQueue(out Output, opts ...QueueOption) *Queue {
	q := &Queue{
		out:    out,
		decode: DecodeWAV,
		log:    slog.Default(),
	}
	q.flushCtx, q.flushCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends one base64 chunk and starts draining if idle. A chunk
// whose base64 is invalid is dropped here with a log entry; container
// level failures are detected later, at play time.
func (q *Queue) Enqueue(b64 string) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		q.log.Warn("dropping audio chunk with invalid base64", "error", err)
		if q.onDecodeError != nil {
			q.onDecodeError(err)
		}
		return
	}

	q.mu.Lock()
	q.items = append(q.items, raw)
	start := !q.playing
	if start {
		q.playing = true
	}
	q.mu.Unlock()

	q.reportDepth(1)
	if start {
		go q.drain()
	}
}

// Flush discards every queued chunk and silences the one currently
// sounding. Chunks enqueued after Flush returns play normally.
func (q *Queue) Flush() {
	q.mu.Lock()
	dropped := len(q.items)
	q.items = nil
	q.flushCancel()
	q.flushCtx, q.flushCancel = context.WithCancel(context.Background())
	q.mu.Unlock()

	q.out.Stop()
	if dropped > 0 {
		q.reportDepth(-dropped)
	}
}

// Depth reports how many chunks are waiting, excluding the one sounding.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Playing reports whether a drain is in progress.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Wait blocks until the queue goes idle. Test helper.
func (q *Queue) Wait() {
	q.mu.Lock()
	if !q.playing {
		q.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()
	<-ch
}

func (q *Queue) reportDepth(delta int) {
	if q.onDepth != nil {
		q.onDepth(delta)
	}
}

// drain pops and plays chunks until the queue empties. Each chunk carries
// the flush context from its pop; a flush after the pop cancels that
// context, so the chunk cannot start (or keep) sounding.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.playing = false
			waiters := q.waiters
			q.waiters = nil
			q.mu.Unlock()
			for _, ch := range waiters {
				close(ch)
			}
			return
		}
		raw := q.items[0]
		q.items = q.items[1:]
		playCtx := q.flushCtx
		q.mu.Unlock()
		q.reportDepth(-1)

		pcm, format, err := q.decode(raw)
		if err != nil {
			q.log.Warn("skipping undecodable audio chunk", "error", err)
			if q.onDecodeError != nil {
				q.onDecodeError(err)
			}
			continue
		}

		switch err := q.out.Play(playCtx, pcm, format); {
		case err == nil:
		case errors.Is(err, context.Canceled):
			// Flushed while this chunk was in flight.
		default:
			q.log.Warn("audio output failed", "error", err)
		}
	}
}
