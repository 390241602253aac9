// Package observe provides application-wide observability primitives for
// parley: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from the status server's /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/parley/pkg/connection"
	"github.com/MrWong99/parley/pkg/session"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/MrWong99/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Connection ---

	// ConnectionStateChanges counts connection manager transitions. Use with
	// attribute.String("to", ...).
	ConnectionStateChanges metric.Int64Counter

	// ReconnectAttempts counts scheduled reconnects.
	ReconnectAttempts metric.Int64Counter

	// HeartbeatFailures counts heartbeat ticks whose send failed.
	HeartbeatFailures metric.Int64Counter

	// --- Voice session ---

	// HandshakeDuration tracks the start_session → session_started round trip.
	// Use with attribute.String("outcome", ...).
	HandshakeDuration metric.Float64Histogram

	// SessionStarts counts StartVoiceSession results by outcome.
	SessionStarts metric.Int64Counter

	// RecordingSessions tracks voice sessions currently recording.
	RecordingSessions metric.Int64UpDownCounter

	// FramesSent counts microphone frames streamed to the backend.
	FramesSent metric.Int64Counter

	// FramesDropped counts discarded frames. Use with
	// attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// Interruptions counts playback interruptions by source.
	Interruptions metric.Int64Counter

	// DecoderResets counts decoder resets after interrupted turns.
	DecoderResets metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server request time, labelled
	// "route" (the mux pattern) and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// handshakeBuckets defines histogram bucket boundaries (in seconds) for the
// session handshake.
var handshakeBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Connection.
	if met.ConnectionStateChanges, err = m.Int64Counter("parley.connection.state_changes",
		metric.WithDescription("Connection manager state transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("parley.connection.reconnect_attempts",
		metric.WithDescription("Total reconnect attempts scheduled."),
	); err != nil {
		return nil, err
	}
	if met.HeartbeatFailures, err = m.Int64Counter("parley.connection.heartbeat_failures",
		metric.WithDescription("Total heartbeat sends that failed."),
	); err != nil {
		return nil, err
	}

	// Voice session.
	if met.HandshakeDuration, err = m.Float64Histogram("parley.session.handshake.duration",
		metric.WithDescription("Latency of the start-session handshake by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(handshakeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionStarts, err = m.Int64Counter("parley.session.starts",
		metric.WithDescription("Total voice session starts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecordingSessions, err = m.Int64UpDownCounter("parley.session.recording",
		metric.WithDescription("Number of voice sessions currently recording."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("parley.session.frames_sent",
		metric.WithDescription("Total microphone frames streamed."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("parley.session.frames_dropped",
		metric.WithDescription("Total frames discarded by reason."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("parley.session.interruptions",
		metric.WithDescription("Total playback interruptions by source."),
	); err != nil {
		return nil, err
	}
	if met.DecoderResets, err = m.Int64Counter("parley.session.decoder_resets",
		metric.WithDescription("Total decoder resets after interrupted turns."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("Status server request latency by route and status."),
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

// RecordConnectionState records one connection manager transition. Moves to
// reconnecting also count as a reconnect attempt.
func (m *Metrics) RecordConnectionState(ctx context.Context, sc connection.StateChange) {
	m.ConnectionStateChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", sc.To.String())))
	if sc.To == connection.StateReconnecting {
		m.ReconnectAttempts.Add(ctx, 1)
	}
}

// RecordSessionState keeps RecordingSessions in step with session
// transitions.
func (m *Metrics) RecordSessionState(ctx context.Context, sc session.StateChange) {
	switch {
	case sc.To == session.StateRecording:
		m.RecordingSessions.Add(ctx, 1)
	case sc.From == session.StateRecording:
		m.RecordingSessions.Add(ctx, -1)
	}
}

// SessionObserver returns a [session.Observer] that records into m.
func (m *Metrics) SessionObserver() session.Observer {
	return sessionObserver{m: m}
}

type sessionObserver struct {
	m *Metrics
}

var _ session.Observer = sessionObserver{}

func (o sessionObserver) HandshakeDone(d time.Duration, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	o.m.HandshakeDuration.Record(context.Background(), d.Seconds(), attrs)
	o.m.SessionStarts.Add(context.Background(), 1, attrs)
}

func (o sessionObserver) FrameSent() {
	o.m.FramesSent.Add(context.Background(), 1)
}

func (o sessionObserver) FrameDropped(reason string) {
	o.m.FramesDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (o sessionObserver) Interrupted(source string) {
	o.m.Interruptions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", source)))
}

func (o sessionObserver) DecoderReset() {
	o.m.DecoderResets.Add(context.Background(), 1)
}
