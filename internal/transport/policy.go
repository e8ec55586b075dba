package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxAttempts = 10
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// ReconnectPolicy says whether and how a channel re-establishes a dropped
// connection. The primary voice socket runs with Auto false: a drop ends
// the call and the user explicitly starts a new one. Auxiliary channels
// reconnect on their own with exponential backoff.
type ReconnectPolicy struct {
	// Auto enables automatic reconnection. When false, Run makes exactly
	// one attempt and reports its result.
	Auto bool

	// MaxAttempts bounds the attempts per Run. Defaults to 10 if zero.
	MaxAttempts int

	// Backoff is the initial delay between attempts, doubling each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff caps the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// Run invokes connect until it succeeds, the policy is exhausted, or ctx
// ends. With Auto disabled a single failure is final.
func (p ReconnectPolicy) Run(ctx context.Context, log *slog.Logger, connect func(ctx context.Context) error) error {
	p = p.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	attempts := p.MaxAttempts
	if !p.Auto {
		attempts = 1
	}

	backoff := p.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = connect(ctx)
		if lastErr == nil {
			if attempt > 1 {
				log.Info("reconnected", "attempt", attempt)
			}
			return nil
		}
		if attempt == attempts {
			break
		}

		log.Warn("connection attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	if p.Auto {
		return fmt.Errorf("transport: giving up after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}
