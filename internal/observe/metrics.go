// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/loanvoice/loanvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long establishing a voice session takes,
	// from dial to open socket.
	ConnectDuration metric.Float64Histogram

	// CallDuration tracks the length of whole calls, start to teardown.
	CallDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts outbound audio frames relayed to the server.
	FramesSent metric.Int64Counter

	// BytesSent counts outbound audio payload bytes.
	BytesSent metric.Int64Counter

	// ChunksReceived counts inbound assistant audio chunks.
	ChunksReceived metric.Int64Counter

	// Utterances counts committed conversation turns. Use with attribute:
	//   attribute.String("role", "user"|"assistant")
	Utterances metric.Int64Counter

	// BargeIns counts playback flushes triggered by user speech or an
	// explicit interrupt.
	BargeIns metric.Int64Counter

	// --- Error counters ---

	// DecodeErrors counts audio chunks skipped because they would not decode.
	DecodeErrors metric.Int64Counter

	// ProtocolDrops counts inbound messages dropped as malformed or unusable.
	ProtocolDrops metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live voice calls.
	ActiveCalls metric.Int64UpDownCounter

	// QueueDepth tracks the number of audio chunks waiting for playback.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// connection setup and call lengths.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("loanvoice.connect.duration",
		metric.WithDescription("Latency of establishing the voice streaming session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("loanvoice.call.duration",
		metric.WithDescription("Duration of voice calls from start to teardown."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("loanvoice.audio.frames_sent",
		metric.WithDescription("Total outbound audio frames relayed to the server."),
	); err != nil {
		return nil, err
	}
	if met.BytesSent, err = m.Int64Counter("loanvoice.audio.bytes_sent",
		metric.WithDescription("Total outbound audio payload bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ChunksReceived, err = m.Int64Counter("loanvoice.audio.chunks_received",
		metric.WithDescription("Total inbound assistant audio chunks."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("loanvoice.conversation.utterances",
		metric.WithDescription("Total committed conversation turns by role."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("loanvoice.playback.barge_ins",
		metric.WithDescription("Total playback flushes from user speech or interrupts."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DecodeErrors, err = m.Int64Counter("loanvoice.playback.decode_errors",
		metric.WithDescription("Total audio chunks skipped as undecodable."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolDrops, err = m.Int64Counter("loanvoice.protocol.drops",
		metric.WithDescription("Total inbound messages dropped as malformed."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("loanvoice.active_calls",
		metric.WithDescription("Number of live voice calls."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("loanvoice.playback.queue_depth",
		metric.WithDescription("Number of audio chunks waiting for playback."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("loanvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance records one committed conversation turn.
func (m *Metrics) RecordUtterance(ctx context.Context, role string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordFrame records one relayed outbound audio frame.
func (m *Metrics) RecordFrame(ctx context.Context, payloadBytes int) {
	m.FramesSent.Add(ctx, 1)
	m.BytesSent.Add(ctx, int64(payloadBytes))
}
