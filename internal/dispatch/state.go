// Package dispatch turns inbound wire envelopes into conversation state
// changes and side effects. All of a conversation's turn and render logic
// lives here, keyed by message type.
package dispatch

import (
	"time"

	"github.com/loanvoice/loanvoice/internal/wire"
)

// Role attributes an utterance to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one committed conversation turn.
type Utterance struct {
	Role Role
	Text string
	At   time.Time
}

// State is the mutable conversation state owned by a single dispatcher.
// It is not safe for concurrent use: the dispatcher is driven from one
// goroutine and everything else reads through snapshots.
type State struct {
	utterances []Utterance

	// partialText is the user's in-progress recognition result, overwritten
	// by each partial_transcript.
	partialText string

	// assistantBuffer accumulates ai_token payloads for the assistant reply
	// currently being generated, including any trailing metadata.
	assistantBuffer string

	structured map[string]any

	// frozen is set once an eligibility decision lands; the conversation's
	// data is final from then on.
	frozen      bool
	eligibility *wire.EligibilityResult

	now func() time.Time
}

// NewState creates an empty conversation state.
func NewState() *State {
	return &State{
		structured: make(map[string]any),
		now:        time.Now,
	}
}

// Utterances returns a copy of the committed conversation log.
func (s *State) Utterances() []Utterance {
	out := make([]Utterance, len(s.utterances))
	copy(out, s.utterances)
	return out
}

// PartialText returns the user's in-progress recognition text.
func (s *State) PartialText() string { return s.partialText }

// PendingAssistant returns the speakable part of the uncommitted assistant
// reply, with anything after the metadata delimiter stripped.
func (s *State) PendingAssistant() string {
	speakable, _, _ := wire.SplitSpeakable(s.assistantBuffer)
	return speakable
}

// Structured returns a copy of the accumulated structured fields.
func (s *State) Structured() map[string]any {
	out := make(map[string]any, len(s.structured))
	for k, v := range s.structured {
		out[k] = v
	}
	return out
}

// Frozen reports whether an eligibility decision has finalized the state.
func (s *State) Frozen() bool { return s.frozen }

// Eligibility returns the decision that froze the state, or nil.
func (s *State) Eligibility() *wire.EligibilityResult { return s.eligibility }

// appendToken accumulates one ai_token payload.
func (s *State) appendToken(token string) {
	s.assistantBuffer += token
}

// commitAssistantBuffer flushes the pending assistant reply into the log
// as one utterance and clears the buffer. An empty (or metadata-only)
// buffer commits nothing.
func (s *State) commitAssistantBuffer() bool {
	speakable, _, _ := wire.SplitSpeakable(s.assistantBuffer)
	s.assistantBuffer = ""
	if speakable == "" {
		return false
	}
	s.utterances = append(s.utterances, Utterance{Role: RoleAssistant, Text: speakable, At: s.now()})
	return true
}

// discardAssistantBuffer drops the pending reply without committing it.
// Interrupted speech is never recorded as a completed utterance.
func (s *State) discardAssistantBuffer() {
	s.assistantBuffer = ""
}

// commitUser records a finished user turn and clears the partial text.
func (s *State) commitUser(text string) {
	s.utterances = append(s.utterances, Utterance{Role: RoleUser, Text: text, At: s.now()})
	s.partialText = ""
}

// commitAssistant records an authoritative assistant turn from the server,
// superseding whatever the token stream had accumulated.
func (s *State) commitAssistant(text string) {
	s.assistantBuffer = ""
	s.utterances = append(s.utterances, Utterance{Role: RoleAssistant, Text: text, At: s.now()})
}

// merge shallow-merges fields into the structured data; later keys
// overwrite earlier ones. No-op once frozen.
func (s *State) merge(fields map[string]any) {
	if s.frozen {
		return
	}
	for k, v := range fields {
		s.structured[k] = v
	}
}

// freeze finalizes the state with the eligibility decision.
func (s *State) freeze(result wire.EligibilityResult) {
	s.frozen = true
	s.eligibility = &result
}
