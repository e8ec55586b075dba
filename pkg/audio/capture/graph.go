package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// Graph runs the capture processing chain over one open [Stream]:
// device frames pass through a gain stage and an analyzer tap before
// being emitted on [Graph.Frames].
//
// Start and Stop are idempotent and may be called from any goroutine.
// Stopping fully releases the device before returning, so an immediate
// restart acquires it again cleanly.
type Graph struct {
	device  Device
	cfg     Config
	gain    float64
	onLevel func(float64)
	log     *slog.Logger

	out chan audio.AudioFrame

	mu      sync.Mutex
	running bool
	gen     uint64
	stream  Stream
	pumpWG  sync.WaitGroup
}

// Option configures a [Graph].
type Option func(*Graph)

// WithGain sets the gain boost applied to every captured frame. Values
// above 1 amplify quiet microphones. Defaults to 1 (unity).
func WithGain(factor float64) Option {
	return func(g *Graph) { g.gain = factor }
}

// WithLevelFunc installs the analyzer tap. fn is called from the capture
// goroutine with the normalized RMS amplitude (0..1) of each frame after
// gain; it must return quickly.
func WithLevelFunc(fn func(level float64)) Option {
	return func(g *Graph) { g.onLevel = fn }
}

// WithLogger sets the logger used for capture diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(g *Graph) { g.log = log }
}

// NewGraph creates a capture graph over the given device. The graph is
// created stopped; call [Graph.Start] to begin capturing.
func NewGraph(device Device, cfg Config, opts ...Option) *Graph {
	g := &Graph{
		device: device,
		cfg:    cfg.withDefaults(),
		gain:   1,
		log:    slog.Default(),
		// Small buffer absorbs consumer jitter; sustained backlog drops
		// frames instead, live audio must never queue up.
		out: make(chan audio.AudioFrame, 8),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Frames returns the processed frame output. The channel is stable across
// Start/Stop cycles and is never closed by the graph.
func (g *Graph) Frames() <-chan audio.AudioFrame { return g.out }

// Running reports whether the graph is currently capturing.
func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Start opens the device and begins emitting frames. Calling Start on a
// running graph is a no-op. If the device cannot be opened the graph stays
// stopped and the error wraps the device failure, including the
// [ErrPermissionDenied] and [ErrNoDevice] sentinels.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	gen := g.gen
	g.mu.Unlock()

	// Open without holding the lock; device acquisition can block on
	// platform permission prompts.
	stream, err := g.device.Open(ctx, g.cfg)
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}

	g.mu.Lock()
	if g.gen != gen || g.running {
		// A Stop (or a competing Start) won the race while the device was
		// opening. Release the handle we just acquired.
		g.mu.Unlock()
		stream.Close()
		return nil
	}
	g.running = true
	g.stream = stream
	g.pumpWG.Add(1)
	g.mu.Unlock()

	go g.pump(stream)
	return nil
}

// Stop halts capture and releases the device. Calling Stop on a stopped
// graph is a no-op. When Stop returns the microphone handle has been
// released and the pump goroutine has exited.
func (g *Graph) Stop() {
	g.mu.Lock()
	g.gen++ // invalidates any Start still waiting on Device.Open
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stream := g.stream
	g.stream = nil
	g.mu.Unlock()

	if err := stream.Close(); err != nil {
		g.log.Warn("closing capture stream", "error", err)
	}
	g.pumpWG.Wait()
}

// pump forwards frames from the stream through the gain stage and analyzer
// tap to the output channel. It exits when the stream's frame channel
// closes, which Stream.Close guarantees.
func (g *Graph) pump(stream Stream) {
	defer g.pumpWG.Done()
	warnedDrop := false
	for frame := range stream.Frames() {
		if g.gain != 1 {
			audio.ApplyGain(frame.Data, g.gain)
		}
		if g.onLevel != nil {
			g.onLevel(audio.Level(frame.Data))
		}
		select {
		case g.out <- frame:
		default:
			if !warnedDrop {
				g.log.Warn("capture consumer falling behind, dropping frames")
				warnedDrop = true
			}
		}
	}
}
