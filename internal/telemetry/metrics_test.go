package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.Same(t, m, GetMetrics())

	instruments := []any{
		m.BuildsTotal, m.BuildErrorsTotal, m.BuildDuration, m.OutputFiles, m.CyclesDetected,
		m.ReloadClients, m.ReloadsBroadcast, m.ProxyRequestsTotal, m.ProxyErrorsTotal,
	}
	for _, instrument := range instruments {
		require.NotNil(t, instrument)
	}

	// recording against the default provider is a no-op and must not panic
	m.BuildsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", "development")))
	m.BuildDuration.Record(context.Background(), 12.5)
	m.ReloadClients.Add(context.Background(), -1)
}

func TestTracer(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()
	require.NotNil(t, span)
}
