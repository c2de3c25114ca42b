package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "signalmirror"

// Metrics holds the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	signalsClaimed metric.Int64Counter
	executions     metric.Int64Counter
	tasks          metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	signalsClaimed, err := meter.Int64Counter("signalmirror_signals_claimed_total",
		metric.WithDescription("Signals claimed by the intake guard"),
		metric.WithUnit("{signal}"))
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter("signalmirror_executions_total",
		metric.WithDescription("Finished executions by status, type and market"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}
	tasks, err := meter.Int64Counter("signalmirror_tasks_total",
		metric.WithDescription("Processed queue tasks by kind and result"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		signalsClaimed: signalsClaimed,
		executions:     executions,
		tasks:          tasks,
	}, nil
}

func (m *Metrics) SignalClaimed(ctx context.Context) {
	if m == nil {
		return
	}
	m.signalsClaimed.Add(ctx, 1)
}

func (m *Metrics) ExecutionFinished(ctx context.Context, status, executionType, market string) {
	if m == nil {
		return
	}
	m.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("type", executionType),
		attribute.String("market", market),
	))
}

func (m *Metrics) TaskFinished(ctx context.Context, kind, result string) {
	if m == nil {
		return
	}
	m.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}
