package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wolfeidau/assetpack"

// Metrics holds the instruments recorded by the bundler and the dev server.
type Metrics struct {
	// Build metrics
	BuildsTotal      metric.Int64Counter
	BuildErrorsTotal metric.Int64Counter
	BuildDuration    metric.Float64Histogram
	OutputFiles      metric.Int64Histogram
	CyclesDetected   metric.Int64Counter

	// Dev server metrics
	ReloadClients      metric.Int64UpDownCounter
	ReloadsBroadcast   metric.Int64Counter
	ProxyRequestsTotal metric.Int64Counter
	ProxyErrorsTotal   metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the process wide instruments. They are created against the
// global meter provider, which forwards to the exporter once Init has run.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpack.builds.total",
		metric.WithDescription("Total number of completed builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"assetpack.builds.errors.total",
		metric.WithDescription("Total number of builds that failed"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpack.builds.duration",
		metric.WithDescription("Duration of bundler runs"),
		metric.WithUnit("ms"),
	)

	m.OutputFiles, _ = meter.Int64Histogram(
		"assetpack.builds.output_files",
		metric.WithDescription("Number of files written per build"),
		metric.WithUnit("{file}"),
	)

	m.CyclesDetected, _ = meter.Int64Counter(
		"assetpack.builds.cycles.total",
		metric.WithDescription("Total number of circular import chains reported"),
		metric.WithUnit("{cycle}"),
	)

	m.ReloadClients, _ = meter.Int64UpDownCounter(
		"assetpack.devserver.reload_clients",
		metric.WithDescription("Number of connected hot reload clients"),
		metric.WithUnit("{client}"),
	)

	m.ReloadsBroadcast, _ = meter.Int64Counter(
		"assetpack.devserver.reloads.total",
		metric.WithDescription("Total number of reload notifications sent"),
		metric.WithUnit("{message}"),
	)

	m.ProxyRequestsTotal, _ = meter.Int64Counter(
		"assetpack.proxy.requests.total",
		metric.WithDescription("Total number of requests forwarded upstream"),
		metric.WithUnit("{request}"),
	)

	m.ProxyErrorsTotal, _ = meter.Int64Counter(
		"assetpack.proxy.errors.total",
		metric.WithDescription("Total number of upstream requests that failed"),
		metric.WithUnit("{request}"),
	)

	return m
}
