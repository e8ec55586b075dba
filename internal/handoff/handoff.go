// Package handoff defines the seams between the voice core and its
// collaborators: authentication, the decision result view and the
// document verification flow. The core calls out through these
// interfaces and never owns login, rendering or uploads itself.
package handoff

import (
	"context"
	"fmt"
	"os"

	"github.com/loanvoice/loanvoice/internal/wire"
)

// TokenSource supplies the bearer token attached to the streaming URL.
// The core never manages login or refresh.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// EnvToken reads the token from an environment variable on every call, so
// an externally refreshed session store is picked up without a restart.
type EnvToken struct {
	// Var is the environment variable name.
	Var string
}

var _ TokenSource = EnvToken{}

func (e EnvToken) Token(ctx context.Context) (string, error) {
	token := os.Getenv(e.Var)
	if token == "" {
		return "", fmt.Errorf("handoff: no token in $%s", e.Var)
	}
	return token, nil
}

// EligibilityView receives the final decision together with the structured
// fields accumulated over the conversation.
type EligibilityView interface {
	ShowDecision(result wire.EligibilityResult, structured map[string]any)
}

// DocumentVerifier drives the external verification flow. The core stops
// capture before calling it; the flow reports upload acknowledgements
// back through the call controller, which forwards them to the server.
type DocumentVerifier interface {
	BeginVerification(req wire.VerificationRequest)
}
