// Package otel holds the codevet metric instruments. Instruments are
// created against the global meter; without an SDK exporter installed they
// are no-ops, so call sites never need nil checks.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codevet"

// Metrics holds all codevet metric instruments.
type Metrics struct {
	ToolCalls           metric.Int64Counter
	SessionsStarted     metric.Int64Counter
	SessionsFailed      metric.Int64Counter
	DiagnosticsReceived metric.Int64Counter
	CacheFallbacks      metric.Int64Counter
	DiagnosticsWait     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("codevet.toolcalls",
		metric.WithDescription("Number of validation tool calls"))
	if err != nil {
		return nil, err
	}

	m.SessionsStarted, err = meter.Int64Counter("codevet.sessions.started",
		metric.WithDescription("Number of language-server sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("codevet.sessions.failed",
		metric.WithDescription("Number of language-server sessions that failed to start"))
	if err != nil {
		return nil, err
	}

	m.DiagnosticsReceived, err = meter.Int64Counter("codevet.diagnostics.received",
		metric.WithDescription("Number of publishDiagnostics batches received"))
	if err != nil {
		return nil, err
	}

	m.CacheFallbacks, err = meter.Int64Counter("codevet.diagnostics.cache_fallbacks",
		metric.WithDescription("Number of diagnostics reads served from the cache after a timeout"))
	if err != nil {
		return nil, err
	}

	m.DiagnosticsWait, err = meter.Float64Histogram("codevet.diagnostics.wait_seconds",
		metric.WithDescription("Time spent waiting for a diagnostics batch"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
