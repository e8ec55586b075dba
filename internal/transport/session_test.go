package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/loanvoice/loanvoice/internal/observe"
	"github.com/loanvoice/loanvoice/internal/wire"
)

// startVoiceServer runs an httptest server that accepts one WebSocket
// connection and hands it to fn together with the upgrade request.
func startVoiceServer(t *testing.T, fn func(r *http.Request, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		fn(r, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// wsURL converts an httptest server URL to a ws:// URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendsTokenQueryParam(t *testing.T) {
	gotToken := make(chan string, 1)
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		gotToken <- r.URL.Query().Get("token")
		conn.Close(websocket.StatusNormalClosure, "")
	})

	client := NewClient(wsURL(srv), WithTokenSource(func(ctx context.Context) (string, error) {
		return "tok-123", nil
	}))
	sess, err := client.Dial(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	select {
	case token := <-gotToken:
		if token != "tok-123" {
			t.Errorf("token query param = %q, want tok-123", token)
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the upgrade")
	}
}

func TestDialTokenSourceError(t *testing.T) {
	client := NewClient("ws://unused", WithTokenSource(func(ctx context.Context) (string, error) {
		return "", errors.New("keychain locked")
	}))
	if _, err := client.Dial(context.Background(), nil, nil); err == nil {
		t.Fatal("Dial succeeded without a token")
	}
}

func TestSessionDispatchesFramesInOrder(t *testing.T) {
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		ctx := context.Background()
		for _, raw := range []string{
			`{"type":"partial_transcript","data":"hel"}`,
			`not json at all`,
			`{"no":"type"}`,
			`{"type":"final_transcript","data":"hello"}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
				return
			}
		}
	})

	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{})
	)
	handler := func(env wire.Envelope) {
		mu.Lock()
		got = append(got, env.Type)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	}

	client := NewClient(wsURL(srv))
	sess, err := client.Dial(context.Background(), handler, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frames never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{wire.TypePartialTranscript, wire.TypeFinalTranscript}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("frame %d = %q, want %q; malformed frames must be dropped silently", i, got[i], w)
		}
	}
}

func TestMalformedFramesCountedAsDrops(t *testing.T) {
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		ctx := context.Background()
		for _, raw := range []string{
			`not json at all`,
			`{"no":"type"}`,
			`{"type":"status","data":"ok"}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
				return
			}
		}
	})

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	arrived := make(chan struct{})
	client := NewClient(wsURL(srv), WithMetrics(metrics))
	sess, err := client.Dial(context.Background(), func(env wire.Envelope) {
		// The good frame is sent last, so by now both bad ones are counted.
		close(arrived)
	}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	select {
	case <-arrived:
	case <-time.After(time.Second):
		t.Fatal("frames never arrived")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var drops int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == "loanvoice.protocol.drops" {
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					drops += dp.Value
				}
			}
		}
	}
	if drops != 2 {
		t.Errorf("protocol drops = %d, want 2", drops)
	}
}

func TestSendFrameWhileOpen(t *testing.T) {
	gotFrame := make(chan []byte, 1)
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		msgType, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		if msgType == websocket.MessageBinary {
			gotFrame <- data
		}
	})

	client := NewClient(wsURL(srv))
	sess, err := client.Dial(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	if err := sess.SendFrame([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	select {
	case data := <-gotFrame:
		if len(data) != 3 {
			t.Errorf("server got %d bytes, want 3", len(data))
		}
	case <-time.After(time.Second):
		t.Fatal("binary frame never arrived")
	}
}

func TestSendFrameDroppedWhenClosed(t *testing.T) {
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		// Hold the connection open until the client closes.
		conn.Read(context.Background())
	})

	client := NewClient(wsURL(srv))
	sess, err := client.Dial(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	sess.Close()

	if err := sess.SendFrame([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendFrame after Close = %v, want ErrNotConnected", err)
	}
	if err := sess.Send(wire.NewEnvelope(wire.TypeInteractionEnd)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Close = %v, want ErrNotConnected", err)
	}
}

func TestOnCloseFiresOnServerDrop(t *testing.T) {
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		conn.Close(websocket.StatusInternalError, "server going away")
	})

	closed := make(chan error, 1)
	client := NewClient(wsURL(srv))
	sess, err := client.Dial(context.Background(), nil, func(err error) { closed <- err })
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	select {
	case err := <-closed:
		if err == nil {
			t.Error("onClose error = nil for a server-side drop, want non-nil")
		}
	case <-time.After(time.Second):
		t.Fatal("onClose never fired")
	}
	if sess.Status() != StatusClosed {
		t.Errorf("Status = %v, want closed", sess.Status())
	}
}

func TestOnCloseNilOnLocalClose(t *testing.T) {
	srv := startVoiceServer(t, func(r *http.Request, conn *websocket.Conn) {
		conn.Read(context.Background())
	})

	closed := make(chan error, 1)
	client := NewClient(wsURL(srv))
	sess, err := client.Dial(context.Background(), nil, func(err error) { closed <- err })
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	sess.Close()
	sess.Close() // idempotent

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("onClose error = %v for a local Close, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onClose never fired")
	}
	// Exactly once.
	select {
	case <-closed:
		t.Fatal("onClose fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}
