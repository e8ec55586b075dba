// Package playback plays assistant audio chunks in strict arrival order.
//
// The server streams synthesized speech as discrete chunks. [Queue] holds
// them FIFO and drains them one at a time into an [Output]; a barge-in or
// interrupt flushes everything, the queue and the chunk currently sounding.
package playback

import (
	"context"
	"errors"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// ErrDecode marks a chunk that could not be decoded. The queue logs and
// skips such chunks instead of stalling playback.
var ErrDecode = errors.New("playback: undecodable audio chunk")

// Output is an audio sink. Implementations are provided by the host binary
// (an ffplay pipe, for example); tests use the mock subpackage.
type Output interface {
	// Play renders the PCM16 buffer and blocks until it has fully sounded,
	// ctx is cancelled, or [Output.Stop] aborts it. A ctx already cancelled
	// on entry returns ctx.Err() without touching the sink. Play is never
	// called concurrently.
	Play(ctx context.Context, pcm []byte, format audio.Format) error

	// Stop aborts an in-progress Play, which then returns promptly. Calling
	// Stop with no Play in flight is a no-op.
	Stop()

	// Close releases the sink.
	Close() error
}

// DecodeFunc unpacks one wire chunk into PCM16 bytes and its format.
// The default is [DecodeWAV].
type DecodeFunc func(chunk []byte) ([]byte, audio.Format, error)
