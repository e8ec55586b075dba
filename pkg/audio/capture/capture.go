// Package capture acquires microphone audio and shapes it into the frame
// stream consumed by the transmitter.
//
// The two abstractions are:
//
//   - [Device] — opens the platform microphone and returns a [Stream].
//   - [Graph] — owns one open Stream and runs the processing chain
//     source → gain boost → frame emission, with a parallel analyzer tap
//     that reports the RMS amplitude of every frame for visualisation.
//
// Device implementations are provided by the host binary (for example an
// ffmpeg subprocess reader); tests use the mock subpackage. The interfaces
// are intentionally narrow so the call controller stays decoupled from how
// audio is actually acquired.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// Sentinel errors distinguishing the two user-actionable capture failures.
// Device implementations must wrap one of these so that callers can use
// [errors.Is] to decide what to show the user.
var (
	// ErrPermissionDenied is returned by [Device.Open] when the user or
	// platform refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrNoDevice is returned by [Device.Open] when no input device is
	// available.
	ErrNoDevice = errors.New("capture: no input device available")
)

// Config holds the parameters requested from the microphone device.
type Config struct {
	// SampleRate is the capture sample rate in Hz. Defaults to 16000.
	SampleRate int

	// Channels is the channel count. Defaults to 1 (mono).
	Channels int

	// FrameDuration is the emission cadence of audio frames. Small windows
	// keep end-to-end latency low; values between 128ms and 250ms work well.
	// Defaults to 200ms.
	FrameDuration time.Duration

	// EchoCancellation requests platform echo cancellation, so that assistant
	// playback leaking into the mic does not re-trigger recognition.
	EchoCancellation bool

	// NoiseSuppression requests platform noise suppression.
	NoiseSuppression bool
}

// withDefaults returns cfg with zero fields replaced by their defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 200 * time.Millisecond
	}
	return c
}

// Stream is an open microphone stream. It delivers PCM16 frames at the
// cadence requested in [Config] until closed.
type Stream interface {
	// Frames returns the channel on which captured frames arrive. The channel
	// is closed when the stream is closed or the device fails mid-capture.
	Frames() <-chan audio.AudioFrame

	// Close releases the device. The microphone handle must be fully released
	// before Close returns, so that a subsequent [Device.Open] succeeds.
	// Safe to call more than once; subsequent calls return nil.
	Close() error
}

// Device is the entry point for microphone access.
//
// Implementations must hold the device exclusively per open stream: opening a
// second stream while one is live may fail or behave non-deterministically,
// so callers close the previous stream first.
type Device interface {
	// Open acquires the microphone with the requested configuration. The ctx
	// governs the open attempt only; a successful Stream stays alive until
	// its Close is called. Returns an error wrapping [ErrPermissionDenied] or
	// [ErrNoDevice] for the user-actionable failures.
	Open(ctx context.Context, cfg Config) (Stream, error)
}
