// Package call owns one voice conversation end to end: the capture graph,
// the transport session, the playback queue and the dispatcher, bound
// together by a single event loop.
//
// Every external stimulus (user command, inbound frame, socket close,
// async completion) becomes an event on one queue, consumed by one
// goroutine. State transitions therefore never race, and every async
// completion carries the generation it was started under so a stale
// callback from a superseded connection is a no-op.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loanvoice/loanvoice/internal/dispatch"
	"github.com/loanvoice/loanvoice/internal/handoff"
	"github.com/loanvoice/loanvoice/internal/observe"
	"github.com/loanvoice/loanvoice/internal/transport"
	"github.com/loanvoice/loanvoice/internal/wire"
	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/capture"
	"github.com/loanvoice/loanvoice/pkg/audio/codec"
)

// Phase is the conversation lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseRecording
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseRecording:
		return "recording"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Player is the playback queue surface the controller needs.
type Player interface {
	Enqueue(b64 string)
	Flush()
}

// Config assembles a controller's collaborators.
type Config struct {
	// Client dials the primary voice socket.
	Client *transport.Client

	// Graph captures and processes microphone audio.
	Graph *capture.Graph

	// Player queues assistant audio. Required.
	Player Player

	// Encoder turns captured frames into wire payloads. Defaults to raw PCM
	// passthrough.
	Encoder codec.Encoder

	// View receives the eligibility decision. May be nil.
	View handoff.EligibilityView

	// Verifier runs the document verification flow. May be nil.
	Verifier handoff.DocumentVerifier

	// OnPhase observes lifecycle transitions, for the UI. May be nil; called
	// from the event loop.
	OnPhase func(Phase)

	// OnUserError receives user-actionable failures: permission and device
	// errors on call start, dial failures, server-reported errors. May be
	// nil; called from the event loop.
	OnUserError func(error)

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Controller drives one conversation. Create with New, drive with Run, and
// issue commands from any goroutine; they are serialized onto the loop.
type Controller struct {
	id       string
	client   *transport.Client
	graph    *capture.Graph
	player   Player
	encoder  codec.Encoder
	view     handoff.EligibilityView
	verifier handoff.DocumentVerifier
	onPhase  func(Phase)
	onError  func(error)
	metrics  *observe.Metrics
	log      *slog.Logger

	dispatcher *dispatch.Dispatcher

	events chan event
	gen    atomic.Uint64
	phase  atomic.Int32

	// Loop-owned; touched only from run.
	sess      *transport.Session
	callStart time.Time

	// sessMu guards the session pointer read by the frame relay goroutine.
	sessMu  sync.Mutex
	relaySess *transport.Session

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// event is one unit of work for the loop.
type event struct {
	fn func()
}

// New assembles a controller. Call Run to start it.
func New(cfg Config) *Controller {
	c := &Controller{
		id:       uuid.NewString(),
		client:   cfg.Client,
		graph:    cfg.Graph,
		player:   cfg.Player,
		encoder:  cfg.Encoder,
		view:     cfg.View,
		verifier: cfg.Verifier,
		onPhase:  cfg.OnPhase,
		onError:  cfg.OnUserError,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		events:   make(chan event, 64),
		stopped:  make(chan struct{}),
	}
	if c.encoder == nil {
		c.encoder = codec.PCMEncoder{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("session_id", c.id)

	c.dispatcher = dispatch.New(cfg.Player, dispatch.Hooks{
		StopCapture: func() { c.stopCaptureLocked() },
		OnEligibility: func(result wire.EligibilityResult, structured map[string]any) {
			if c.view != nil {
				c.view.ShowDecision(result, structured)
			}
			// A decision ends the call; the session stays open for any
			// trailing frames.
			c.endCallLocked("eligibility decision")
		},
		OnVerificationRequired: func(req wire.VerificationRequest) {
			if c.verifier != nil {
				c.verifier.BeginVerification(req)
			}
			c.endCallLocked("document verification")
		},
		OnServerError: func(message string) {
			c.surfaceError(fmt.Errorf("server: %s", message))
		},
		OnStatus: func(message string) {
			c.log.Info("server status", "message", message)
		},
	}, c.metrics, c.log)

	return c
}

// ID returns the client-generated conversation id used in logs and
// diagnostic frames.
func (c *Controller) ID() string { return c.id }

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase { return Phase(c.phase.Load()) }

// Conversation exposes the conversation state for rendering. Read it only
// from dispatcher hooks or after Run has returned.
func (c *Controller) Conversation() *dispatch.State { return c.dispatcher.State() }

// Run consumes the event queue until ctx ends or Shutdown is called. It
// also runs the outbound frame relay. Always returns after a full
// teardown: capture stopped, playback flushed, session closed.
func (c *Controller) Run(ctx context.Context) error {
	c.wg.Add(1)
	go c.relayFrames()

	defer func() {
		c.teardown()
		c.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			return nil
		case ev := <-c.events:
			ev.fn()
		}
	}
}

// Shutdown ends the conversation and makes Run return. Safe to call more
// than once, from any goroutine.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// post queues work onto the loop. Drops the event if the controller has
// already stopped.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- event{fn: fn}:
	case <-c.stopped:
	}
}

// ── Commands ──────────────────────────────────────────────────────────────

// Connect dials the voice endpoint. The result arrives asynchronously as a
// phase transition (or a user error). No-op unless idle.
func (c *Controller) Connect(ctx context.Context) {
	c.post(func() {
		if c.Phase() != PhaseIdle {
			c.log.Warn("connect ignored", "phase", c.Phase())
			return
		}
		gen := c.gen.Add(1)
		c.setPhase(PhaseConnecting)

		go func() {
			start := time.Now()
			sess, err := c.client.Dial(ctx,
				func(env wire.Envelope) { c.post(func() { c.handleEnvelope(gen, env) }) },
				func(cause error) { c.post(func() { c.handleSocketClosed(gen, cause) }) },
			)
			c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
			c.post(func() { c.handleDialDone(gen, sess, err) })
		}()
	})
}

// StartCall starts microphone capture. Requires a connected session; the
// permission prompt resolves asynchronously.
func (c *Controller) StartCall(ctx context.Context) {
	c.post(func() {
		if c.Phase() != PhaseConnected {
			c.log.Warn("start call ignored", "phase", c.Phase())
			return
		}
		gen := c.gen.Load()
		go func() {
			err := c.graph.Start(ctx)
			c.post(func() { c.handleCaptureStarted(gen, err) })
		}()
	})
}

// EndCall stops capture and tells the server to flush trailing audio. The
// session stays connected for a later call.
func (c *Controller) EndCall() {
	c.post(func() { c.endCallLocked("user action") })
}

// SendText submits a typed user message in place of speech.
func (c *Controller) SendText(text string) {
	c.post(func() {
		if err := c.send(wire.NewTextEnvelope(wire.TypeTextInput, text)); err != nil {
			c.surfaceError(fmt.Errorf("sending text: %w", err))
		}
	})
}

// DocumentUploaded forwards an upload acknowledgement from the
// verification flow. docType labels the document kind and may be empty.
func (c *Controller) DocumentUploaded(docType string) {
	c.post(func() {
		if err := c.send(wire.NewDocumentEnvelope(wire.TypeDocumentUploaded, "", docType)); err != nil {
			c.surfaceError(fmt.Errorf("acknowledging upload: %w", err))
		}
	})
}

// DocumentVerified reports a verified document so the server can tick it
// off the outstanding list.
func (c *Controller) DocumentVerified(docType string) {
	c.post(func() {
		if err := c.send(wire.NewDocumentEnvelope(wire.TypeDocumentVerified, "", docType)); err != nil {
			c.surfaceError(fmt.Errorf("reporting verified document: %w", err))
		}
	})
}

// VerificationCompleted tells the server the document check finished so it
// can re-run the decision.
func (c *Controller) VerificationCompleted() {
	c.post(func() {
		if err := c.send(wire.NewEnvelope(wire.TypeVerificationCompleted)); err != nil {
			c.surfaceError(fmt.Errorf("completing verification: %w", err))
		}
	})
}

// ── Loop internals ────────────────────────────────────────────────────────

func (c *Controller) handleDialDone(gen uint64, sess *transport.Session, err error) {
	if gen != c.gen.Load() {
		// Superseded while dialing; release the socket it may have opened.
		if sess != nil {
			sess.Close()
		}
		return
	}
	if err != nil {
		c.setPhase(PhaseIdle)
		c.surfaceError(fmt.Errorf("connecting: %w", err))
		return
	}

	c.sess = sess
	c.setRelaySession(sess)
	c.setPhase(PhaseConnected)
	c.log.Info("voice session open")
	// Tell the server who we are; it logs these for support diagnostics.
	_ = sess.Send(wire.NewDebugLog("client session " + c.id + " connected"))
}

func (c *Controller) handleCaptureStarted(gen uint64, err error) {
	if gen != c.gen.Load() {
		// A teardown won the race; the graph's own staleness check has
		// already released the device.
		return
	}
	if err != nil {
		c.surfaceError(fmt.Errorf("starting capture: %w", err))
		return
	}
	if c.Phase() != PhaseConnected {
		c.graph.Stop()
		return
	}
	c.callStart = time.Now()
	c.metrics.ActiveCalls.Add(context.Background(), 1)
	c.setPhase(PhaseRecording)
	c.log.Info("call started")
}

func (c *Controller) handleEnvelope(gen uint64, env wire.Envelope) {
	if gen != c.gen.Load() {
		return
	}
	if env.Type == wire.TypeAudioChunk {
		c.metrics.ChunksReceived.Add(context.Background(), 1)
	}
	c.dispatcher.Dispatch(env)
}

// handleSocketClosed applies the loss of the primary socket. There is no
// automatic reconnect here: a dropped call requires an explicit user
// retry.
func (c *Controller) handleSocketClosed(gen uint64, cause error) {
	if gen != c.gen.Load() {
		return
	}
	recording := c.Phase() == PhaseRecording
	if recording {
		// Socket died mid-call: force local end-call semantics.
		c.graph.Stop()
		c.finishCallMetrics()
	}
	c.player.Flush()
	c.sess = nil
	c.setRelaySession(nil)
	c.setPhase(PhaseIdle)

	if cause != nil {
		c.log.Warn("voice session lost", "error", cause, "was_recording", recording)
		c.surfaceError(fmt.Errorf("connection lost: %w", cause))
	} else {
		c.log.Info("voice session closed")
	}
}

func (c *Controller) endCallLocked(reason string) {
	if c.Phase() != PhaseRecording {
		return
	}
	c.graph.Stop()
	c.finishCallMetrics()
	// Let the backend flush whatever audio it still holds for this turn.
	if err := c.send(wire.NewEnvelope(wire.TypeInteractionEnd)); err != nil {
		c.log.Warn("sending interaction end", "error", err)
	}
	c.setPhase(PhaseConnected)
	c.log.Info("call ended", "reason", reason)
}

// stopCaptureLocked halts the microphone without leaving the recording
// phase bookkeeping to the caller.
func (c *Controller) stopCaptureLocked() {
	if c.Phase() == PhaseRecording {
		c.endCallLocked("capture stop requested")
		return
	}
	c.graph.Stop()
}

func (c *Controller) finishCallMetrics() {
	c.metrics.ActiveCalls.Add(context.Background(), -1)
	if !c.callStart.IsZero() {
		c.metrics.CallDuration.Record(context.Background(), time.Since(c.callStart).Seconds())
		c.callStart = time.Time{}
	}
}

// teardown releases everything. No state survives it.
func (c *Controller) teardown() {
	c.gen.Add(1)
	if c.Phase() == PhaseRecording {
		c.finishCallMetrics()
	}
	c.graph.Stop()
	c.player.Flush()
	if c.sess != nil {
		_ = c.sess.Send(wire.NewEnvelope(wire.TypeEndOfSession))
		c.sess.Close()
		c.sess = nil
	}
	c.setRelaySession(nil)
	c.setPhase(PhaseIdle)
	c.Shutdown()
	c.log.Info("conversation torn down")
}

func (c *Controller) send(env wire.Envelope) error {
	if c.sess == nil {
		return transport.ErrNotConnected
	}
	return c.sess.Send(env)
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
	if c.onPhase != nil {
		c.onPhase(p)
	}
}

func (c *Controller) surfaceError(err error) {
	c.log.Warn("user-facing error", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}

// ── Outbound audio relay ──────────────────────────────────────────────────

func (c *Controller) setRelaySession(sess *transport.Session) {
	c.sessMu.Lock()
	c.relaySess = sess
	c.sessMu.Unlock()
}

func (c *Controller) relaySession() *transport.Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.relaySess
}

// relayFrames moves captured frames to the socket as they arrive. Frames
// without an open socket are dropped, never queued; stale audio must not
// burst out after a reconnect.
func (c *Controller) relayFrames() {
	defer c.wg.Done()
	for {
		var frame audio.AudioFrame
		select {
		case <-c.stopped:
			return
		case frame = <-c.graph.Frames():
		}

		payloads, err := c.encoder.Encode(frame)
		if err != nil {
			c.log.Warn("encoding capture frame", "error", err)
			continue
		}
		sess := c.relaySession()
		if sess == nil {
			continue
		}
		for _, payload := range payloads {
			if err := sess.SendFrame(payload); err != nil {
				// A closed socket just drops audio; anything else is worth
				// one log line.
				if !errors.Is(err, transport.ErrNotConnected) {
					c.log.Warn("relaying audio frame", "error", err)
				}
				break
			}
			c.metrics.RecordFrame(context.Background(), len(payload))
		}
	}
}
