package dispatch

import (
	"context"
	"log/slog"

	"github.com/loanvoice/loanvoice/internal/observe"
	"github.com/loanvoice/loanvoice/internal/wire"
)

// Player is the slice of the playback queue the dispatcher drives.
type Player interface {
	Enqueue(b64 string)
	Flush()
}

// Hooks are the dispatcher's outward effects. Any hook may be nil.
type Hooks struct {
	// StopCapture halts the microphone, fired by
	// document_verification_required.
	StopCapture func()

	// OnEligibility hands the decision plus the accumulated structured
	// fields to the decision view.
	OnEligibility func(result wire.EligibilityResult, structured map[string]any)

	// OnVerificationRequired hands off to the document verification flow.
	OnVerificationRequired func(req wire.VerificationRequest)

	// OnServerError surfaces a non-fatal server-reported error to the user.
	OnServerError func(message string)

	// OnStatus surfaces informational server status text.
	OnStatus func(message string)

	// OnRender fires after any event that changed what the user should see:
	// the partial text, the pending assistant reply or the utterance log.
	OnRender func()
}

// Dispatcher applies inbound envelopes to conversation state, in arrival
// order, on a single goroutine.
type Dispatcher struct {
	state   *State
	player  Player
	hooks   Hooks
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a dispatcher over fresh state. A nil metrics falls back to
// the process-wide instruments.
func New(player Player, hooks Hooks, metrics *observe.Metrics, log *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		state:   NewState(),
		player:  player,
		hooks:   hooks,
		metrics: metrics,
		log:     log,
	}
}

// State exposes the conversation state for rendering and handoffs. Read it
// only from the dispatching goroutine.
func (d *Dispatcher) State() *State { return d.state }

// Dispatch applies one envelope. Malformed payloads are logged and
// dropped; unknown types are ignored so newer servers stay compatible.
func (d *Dispatcher) Dispatch(env wire.Envelope) {
	switch env.Type {
	case wire.TypePartialTranscript:
		text, err := env.Text()
		if err != nil {
			d.drop(env, err)
			return
		}
		// The user is speaking over whatever the assistant was saying:
		// commit the pending reply so the log stays coherent, then silence
		// the speaker (barge-in).
		if d.state.commitAssistantBuffer() {
			d.metrics.RecordUtterance(context.Background(), string(RoleAssistant))
		}
		d.player.Flush()
		d.metrics.BargeIns.Add(context.Background(), 1)
		d.state.partialText = text
		d.render()

	case wire.TypeFinalTranscript:
		text, err := env.Text()
		if err != nil {
			d.drop(env, err)
			return
		}
		if d.state.commitAssistantBuffer() {
			d.metrics.RecordUtterance(context.Background(), string(RoleAssistant))
		}
		d.state.commitUser(text)
		d.metrics.RecordUtterance(context.Background(), string(RoleUser))
		d.render()

	case wire.TypeAssistantTranscript:
		text, err := env.Text()
		if err != nil {
			d.drop(env, err)
			return
		}
		d.state.commitAssistant(text)
		d.metrics.RecordUtterance(context.Background(), string(RoleAssistant))
		d.render()

	case wire.TypeAIToken:
		token, err := env.Text()
		if err != nil {
			d.drop(env, err)
			return
		}
		d.state.appendToken(token)
		d.render()

	case wire.TypeAudioChunk:
		// Audio is decoupled from the transcript flush: enqueueing must not
		// double-commit a partial turn.
		b64, err := env.Text()
		if err != nil {
			d.drop(env, err)
			return
		}
		d.player.Enqueue(b64)

	case wire.TypeStructuredUpdate:
		fields, err := env.Fields()
		if err != nil {
			d.drop(env, err)
			return
		}
		d.state.merge(fields)
		d.render()

	case wire.TypeInterrupt:
		d.player.Flush()
		d.metrics.BargeIns.Add(context.Background(), 1)
		d.state.discardAssistantBuffer()
		d.render()

	case wire.TypeEligibilityResult:
		var result wire.EligibilityResult
		if err := env.Object(&result); err != nil {
			d.drop(env, err)
			return
		}
		d.state.freeze(result)
		if d.hooks.OnEligibility != nil {
			d.hooks.OnEligibility(result, d.state.Structured())
		}
		d.render()

	case wire.TypeDocumentVerificationRequired:
		var req wire.VerificationRequest
		if err := env.Object(&req); err != nil {
			d.drop(env, err)
			return
		}
		if d.hooks.StopCapture != nil {
			d.hooks.StopCapture()
		}
		if d.state.commitAssistantBuffer() {
			d.metrics.RecordUtterance(context.Background(), string(RoleAssistant))
		}
		if req.ApplicationID == 0 {
			// No server-assigned id: the flow needs an explicit user action,
			// never a speculatively generated id.
			d.log.Warn("verification requested without an application id")
		}
		if d.hooks.OnVerificationRequired != nil {
			d.hooks.OnVerificationRequired(req)
		}
		d.render()

	case wire.TypeError:
		d.log.Warn("server reported an error", "message", env.Message)
		if d.hooks.OnServerError != nil {
			d.hooks.OnServerError(env.Message)
		}

	case wire.TypeStatus:
		if d.hooks.OnStatus != nil {
			msg := env.Message
			if msg == "" {
				msg, _ = env.Text()
			}
			d.hooks.OnStatus(msg)
		}

	default:
		d.log.Debug("ignoring unknown message type", "type", env.Type)
	}
}

func (d *Dispatcher) drop(env wire.Envelope, err error) {
	d.metrics.ProtocolDrops.Add(context.Background(), 1)
	d.log.Warn("dropping unusable message", "type", env.Type, "error", err)
}

func (d *Dispatcher) render() {
	if d.hooks.OnRender != nil {
		d.hooks.OnRender()
	}
}
