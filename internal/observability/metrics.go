// Package observability provides OpenTelemetry metrics for process runs,
// exported in Prometheus format.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/deixis/shellout"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RunMetrics counts runs by outcome and records their durations.
// A nil *RunMetrics records nothing.
type RunMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunMetrics creates the run instruments on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter(meterName)

	runs, err := meter.Int64Counter("shellout.runs",
		metric.WithDescription("Processes run, by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	duration, err := meter.Float64Histogram("shellout.run.duration",
		metric.WithDescription("Wall time from process start to exit."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &RunMetrics{runs: runs, duration: duration}, nil
}

// Record adds one run with the given outcome and duration.
func (m *RunMetrics) Record(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
