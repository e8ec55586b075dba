// Package transport owns the primary voice streaming socket: dialing with
// authentication, the JSON text frames defined in the wire package, and
// raw binary audio frames.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/loanvoice/loanvoice/internal/observe"
	"github.com/loanvoice/loanvoice/internal/wire"
)

// ErrNotConnected is returned by sends attempted while the socket is not
// open. Audio producers treat it as a signal to drop the frame.
var ErrNotConnected = errors.New("transport: socket not open")

// Status is the lifecycle state of a session's socket.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Handler receives every decoded text frame, in arrival order, from the
// session's receive goroutine.
type Handler func(env wire.Envelope)

// Client dials voice streaming sessions against one endpoint.
type Client struct {
	baseURL string
	token   func(ctx context.Context) (string, error)
	metrics *observe.Metrics
	log     *slog.Logger
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithTokenSource sets the callback that supplies the auth token appended
// to the dial URL. Without one, sessions dial unauthenticated.
func WithTokenSource(fn func(ctx context.Context) (string, error)) ClientOption {
	return func(c *Client) { c.token = fn }
}

// WithLogger sets the logger used for session diagnostics.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithMetrics sets the instruments sessions record into.
func WithMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for the given ws:// or wss:// endpoint URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial establishes a session. handler receives every decoded inbound text
// frame; onClose fires exactly once when the socket leaves the open state,
// with nil on a clean local Close and the transport error otherwise.
func (c *Client) Dial(ctx context.Context, handler Handler, onClose func(error)) (*Session, error) {
	wsURL := c.baseURL
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("transport: fetching auth token: %w", err)
		}
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("transport: parsing endpoint url: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	// Assistant audio chunks are large JSON frames.
	conn.SetReadLimit(4 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:    conn,
		handler: handler,
		onClose: onClose,
		metrics: c.metrics,
		log:     c.log,
		status:  StatusOpen,
		ctx:     sessCtx,
		cancel:  sessCancel,
	}

	go sess.receiveLoop()

	return sess, nil
}

// Session is one live connection to the voice endpoint. Sends are safe for
// concurrent use; inbound frames are delivered on a single goroutine.
type Session struct {
	conn    *websocket.Conn
	handler Handler
	onClose func(error)
	metrics *observe.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	status Status

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Status returns the socket's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SendFrame writes one binary audio payload. While the socket is not open
// it returns [ErrNotConnected]; live audio is dropped, never queued for a
// socket that may come back.
func (s *Session) SendFrame(payload []byte) error {
	if s.Status() != StatusOpen {
		return ErrNotConnected
	}
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, payload); err != nil {
		return fmt.Errorf("transport: writing audio frame: %w", err)
	}
	return nil
}

// Send marshals env and writes it as a text frame.
func (s *Session) Send(env wire.Envelope) error {
	if s.Status() != StatusOpen {
		return ErrNotConnected
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: writing text frame: %w", err)
	}
	return nil
}

// receiveLoop reads frames until the socket dies. Malformed text frames
// are logged and dropped; the session itself stays up.
func (s *Session) receiveLoop() {
	for {
		msgType, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.MessageText {
			// The server never sends binary; ignore anything else.
			continue
		}

		env, err := wire.Decode(data)
		if err != nil {
			s.metrics.ProtocolDrops.Add(s.ctx, 1)
			s.log.Warn("dropping malformed server message", "error", err)
			continue
		}
		if s.handler != nil {
			s.handler(env)
		}
	}
}

// finish transitions to closed and fires onClose exactly once. When Close
// already ran, the once has fired and this only records the state.
func (s *Session) finish(err error) {
	s.mu.Lock()
	s.status = StatusClosed
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}

// Close shuts the socket down cleanly. Idempotent. The onClose callback
// fires with a nil error.
func (s *Session) Close() error {
	s.mu.Lock()
	alreadyClosed := s.status == StatusClosed
	s.status = StatusClosed
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose(nil)
		}
	})
	if !alreadyClosed {
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	return nil
}
