// Package observe provides application-wide observability primitives for
// phonomatch: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all phonomatch metrics.
const meterName = "github.com/MrWong99/phonomatch"

// Recognition outcomes used as the "status" attribute of
// [Metrics.Recognitions].
const (
	StatusMatched   = "matched"
	StatusUnmatched = "unmatched"
	StatusError     = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// MatchDuration tracks the time spent matching one utterance against one
	// intent grammar. Use with attribute:
	//   attribute.String("intent", ...)
	MatchDuration metric.Float64Histogram

	// G2PDuration tracks transliteration latency per utterance.
	G2PDuration metric.Float64Histogram

	// ActionDuration tracks webhook action latency.
	ActionDuration metric.Float64Histogram

	// --- Counters ---

	// Recognitions counts recognition attempts. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("status", ...)
	Recognitions metric.Int64Counter

	// ActionCalls counts webhook action invocations. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("status", ...)
	ActionCalls metric.Int64Counter

	// --- Error counters ---

	// G2PErrors counts transliteration failures. Use with attribute:
	//   attribute.String("provider", ...)
	G2PErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of open streaming recognition
	// connections.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// matchBuckets defines histogram bucket boundaries (in seconds) for
// in-process matching, which runs in microseconds to milliseconds.
var matchBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for calls
// that may leave the process, such as external transliterators and
// webhooks.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.MatchDuration, err = m.Float64Histogram("phonomatch.match.duration",
		metric.WithDescription("Latency of matching an utterance against an intent grammar."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(matchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.G2PDuration, err = m.Float64Histogram("phonomatch.g2p.duration",
		metric.WithDescription("Latency of grapheme-to-phoneme transliteration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActionDuration, err = m.Float64Histogram("phonomatch.action.duration",
		metric.WithDescription("Latency of webhook actions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recognitions, err = m.Int64Counter("phonomatch.recognitions",
		metric.WithDescription("Total recognition attempts by intent and status."),
	); err != nil {
		return nil, err
	}
	if met.ActionCalls, err = m.Int64Counter("phonomatch.action.calls",
		metric.WithDescription("Total webhook action calls by intent and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.G2PErrors, err = m.Int64Counter("phonomatch.g2p.errors",
		metric.WithDescription("Total transliteration errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("phonomatch.active_streams",
		metric.WithDescription("Number of open streaming recognition connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonomatch.http.request.duration",
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

// RecordRecognition records one recognition attempt. intent is empty when
// no intent matched.
func (m *Metrics) RecordRecognition(ctx context.Context, intent, status string) {
	m.Recognitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("status", status),
		),
	)
}

// RecordActionCall records one webhook action call.
func (m *Metrics) RecordActionCall(ctx context.Context, intent, status string) {
	m.ActionCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("status", status),
		),
	)
}

// RecordG2PError records one transliteration failure.
func (m *Metrics) RecordG2PError(ctx context.Context, provider string) {
	m.G2PErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
