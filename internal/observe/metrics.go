// Package observe provides application-wide observability primitives for
// Lotusvoice: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Lotusvoice metrics.
const meterName = "github.com/blacklotus-ai/lotusvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the time from an end-of-turn transcript to the
	// turn's reply being fully synthesised.
	TurnDuration metric.Float64Histogram

	// FirstAudioDelay tracks the time from an end-of-turn transcript to the
	// first synthesised audio chunk of the reply. This is the latency the
	// caller actually hears.
	FirstAudioDelay metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// CallDuration tracks total call duration from stream start to hang-up.
	CallDuration metric.Float64Histogram

	// --- Counters ---

	// Calls counts calls by final status. Use with attribute:
	//   attribute.String("status", ...)
	Calls metric.Int64Counter

	// Turns counts completed agent turns by status. Use with attributes:
	//   attribute.String("status", ...)
	Turns metric.Int64Counter

	// BargeIns counts caller interruptions of agent speech.
	BargeIns metric.Int64Counter

	// StaleAudioDropped counts synthesised audio chunks discarded because
	// their speak epoch was superseded by an interrupt.
	StaleAudioDropped metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live telephone calls.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callBuckets defines bucket boundaries (in seconds) for whole-call durations.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("lotusvoice.turn.duration",
		metric.WithDescription("Time from end-of-turn transcript to the reply being fully synthesised."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstAudioDelay, err = m.Float64Histogram("lotusvoice.turn.first_audio_delay",
		metric.WithDescription("Time from end-of-turn transcript to the first synthesised audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("lotusvoice.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("lotusvoice.call.duration",
		metric.WithDescription("Total call duration from stream start to hang-up."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Calls, err = m.Int64Counter("lotusvoice.calls",
		metric.WithDescription("Total calls by final status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("lotusvoice.turns",
		metric.WithDescription("Total agent turns by status."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("lotusvoice.barge_ins",
		metric.WithDescription("Total caller interruptions of agent speech."),
	); err != nil {
		return nil, err
	}
	if met.StaleAudioDropped, err = m.Int64Counter("lotusvoice.stale_audio_dropped",
		metric.WithDescription("Synthesised audio chunks discarded after an interrupt superseded their epoch."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("lotusvoice.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("lotusvoice.active_calls",
		metric.WithDescription("Number of live telephone calls."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lotusvoice.http.request.duration",
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

// RecordCall records a finished call with its final status and duration.
func (m *Metrics) RecordCall(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Calls.Add(ctx, 1, attrs)
	m.CallDuration.Record(ctx, seconds, attrs)
}

// RecordTurn records a completed agent turn with its status and duration.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.TurnDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordBargeIn records a caller interruption of agent speech.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordToolCall records a tool invocation with its execution latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, seconds, attrs)
}
