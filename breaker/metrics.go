package breaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "mini-call/breaker"

type instruments struct {
	transitions metric.Int64Counter
	calls       metric.Int64Counter
	rejections  metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(meterName)

	transitions, err := meter.Int64Counter("breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"))
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter("breaker.calls",
		metric.WithDescription("Calls admitted by a circuit breaker, by outcome"))
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter("breaker.rejections",
		metric.WithDescription("Calls refused by a circuit breaker"))
	if err != nil {
		return nil, err
	}
	return &instruments{transitions: transitions, calls: calls, rejections: rejections}, nil
}

func (m *instruments) transition(name string, from, to State) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from.String()),
		attribute.String("to", to.String())))
}

func (m *instruments) call(name string, outcome Outcome) {
	m.calls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("outcome", outcome.String())))
}

func (m *instruments) rejection(name string, reason error) {
	m.rejections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("reason", reason.Error())))
}
