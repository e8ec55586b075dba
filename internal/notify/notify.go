// Package notify maintains the auxiliary notification channel. Unlike the
// primary voice socket, this channel carries no live audio, so losing it
// mid-call is recoverable: the listener reconnects on its own with
// exponential backoff and resumes delivering server notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loanvoice/loanvoice/internal/transport"
	"github.com/loanvoice/loanvoice/internal/wire"
)

// Listener keeps one notification connection alive.
//
// Obtain the initial connection via [Listener.Start]; a background monitor
// then watches for drops and re-dials per the configured policy. All
// methods are safe for concurrent use.
type Listener struct {
	client  *transport.Client
	policy  transport.ReconnectPolicy
	handler transport.Handler
	log     *slog.Logger

	mu           sync.Mutex
	sess         *transport.Session
	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when the session drops
	wg           sync.WaitGroup
}

// Config configures a [Listener].
type Config struct {
	// Client dials the notification endpoint.
	Client *transport.Client

	// Policy governs reconnection. Auto is forced on; a notification
	// channel that never reconnects is just a dead channel.
	Policy transport.ReconnectPolicy

	// Handler receives every decoded notification frame. May be nil.
	Handler func(env wire.Envelope)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewListener creates a stopped listener.
func NewListener(cfg Config) *Listener {
	cfg.Policy.Auto = true
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		client:       cfg.Client,
		policy:       cfg.Policy,
		handler:      cfg.Handler,
		log:          log,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
}

// Start establishes the initial connection and launches the reconnect
// monitor. The ctx bounds the listener's whole lifetime.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.policy.Run(ctx, l.log, l.connect); err != nil {
		return fmt.Errorf("notify: initial connect: %w", err)
	}

	// The monitor runs under a context that Stop also cancels, so Stop never
	// waits out a reconnect backoff in progress.
	monCtx, cancel := context.WithCancel(ctx)
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		select {
		case <-l.done:
		case <-monCtx.Done():
		}
		cancel()
	}()
	go l.monitorLoop(monCtx)
	return nil
}

// connect dials one session and installs it as current.
func (l *Listener) connect(ctx context.Context) error {
	sess, err := l.client.Dial(ctx, l.handler, func(err error) {
		if err == nil {
			return // local close, no reconnect
		}
		l.log.Warn("notification channel dropped", "error", err)
		select {
		case l.disconnected <- struct{}{}:
		default:
			// Already signalled.
		}
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	old := l.sess
	l.sess = sess
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// monitorLoop waits for drop notifications and re-dials with backoff.
func (l *Listener) monitorLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.disconnected:
			if err := l.policy.Run(ctx, l.log, l.connect); err != nil {
				l.log.Error("notification channel lost", "error", err)
				return
			}
		}
	}
}

// Send writes one envelope on the notification channel.
func (l *Listener) Send(env wire.Envelope) error {
	l.mu.Lock()
	sess := l.sess
	l.mu.Unlock()
	if sess == nil {
		return transport.ErrNotConnected
	}
	return sess.Send(env)
}

// Stop halts monitoring and closes the current connection. Safe to call
// more than once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.mu.Lock()
	sess := l.sess
	l.sess = nil
	l.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
	l.wg.Wait()
}
