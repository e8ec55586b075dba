// Package wire defines the JSON envelope and payload types spoken over the
// voice streaming socket, in both directions. Binary socket frames are raw
// audio and never touch this package.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Server to client message types.
const (
	TypeStatus                       = "status"
	TypePartialTranscript            = "partial_transcript"
	TypeFinalTranscript              = "final_transcript"
	TypeAssistantTranscript          = "assistant_transcript"
	TypeAIToken                      = "ai_token"
	TypeAudioChunk                   = "audio_chunk"
	TypeStructuredUpdate             = "structured_update"
	TypeInterrupt                    = "interrupt"
	TypeEligibilityResult            = "eligibility_result"
	TypeDocumentVerificationRequired = "document_verification_required"
	TypeError                        = "error"
)

// Client to server message types.
const (
	TypeTextInput             = "text_input"
	TypeDocumentUploaded      = "document_uploaded"
	TypeDocumentVerified      = "document_verified"
	TypeVerificationCompleted = "verification_completed"
	TypeInteractionEnd        = "interaction_end"
	TypeEndOfSession          = "end_of_session"
	TypeDebugLog              = "debug_log"
)

// ErrMalformed marks a text frame that is not a usable envelope. Such
// frames are logged and dropped, never fatal to the session.
var ErrMalformed = errors.New("wire: malformed message")

// Envelope is the JSON frame exchanged on the socket. Data holds the
// payload and may be a bare string (transcripts, tokens, audio chunks) or
// an object. Error and debug frames carry their text in Message instead.
// Document progress frames label the document kind in DocType.
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	DocType string          `json:"docType,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Decode parses one text frame. A frame that is not a JSON object or has
// no type wraps [ErrMalformed].
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Text extracts a bare string payload.
func (e Envelope) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("%w: %s payload is not a string: %v", ErrMalformed, e.Type, err)
	}
	return s, nil
}

// Object unmarshals an object payload into v.
func (e Envelope) Object(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: decoding %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// Fields extracts an object payload as a generic map, used for the shallow
// merge of structured updates.
func (e Envelope) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s payload is not an object: %v", ErrMalformed, e.Type, err)
	}
	return m, nil
}

// NewTextEnvelope builds an outbound envelope with a bare string payload.
func NewTextEnvelope(msgType, text string) Envelope {
	data, _ := json.Marshal(text)
	return Envelope{Type: msgType, Data: data}
}

// NewEnvelope builds an outbound envelope with no payload.
func NewEnvelope(msgType string) Envelope {
	return Envelope{Type: msgType}
}

// NewDocumentEnvelope builds an outbound document progress envelope
// (document_uploaded or document_verified). The document reference rides in
// data; docType, when known, labels the kind of document (payslip, id).
func NewDocumentEnvelope(msgType, ref, docType string) Envelope {
	env := Envelope{Type: msgType, DocType: docType}
	if ref != "" {
		env.Data, _ = json.Marshal(ref)
	}
	return env
}

// NewDebugLog builds the client diagnostic envelope the server writes to
// its own logs, with the text in the top level message field.
func NewDebugLog(message string) Envelope {
	return Envelope{Type: TypeDebugLog, Message: message}
}
