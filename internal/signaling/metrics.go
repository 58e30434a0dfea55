package signaling

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/BioHazard786/Warpcall/internal/signaling"

// Metrics records router activity through an OpenTelemetry meter.
type Metrics struct {
	joins       metric.Int64Counter
	relays      metric.Int64Counter
	connections metric.Int64UpDownCounter
}

// NewMetrics creates the router instruments on the meter from provider.
// The rooms gauge is observed from dir at collection time.
func NewMetrics(provider metric.MeterProvider, dir *Directory) (*Metrics, error) {
	meter := provider.Meter(meterName)

	joins, err := meter.Int64Counter("warpcall.signaling.joins",
		metric.WithDescription("Room join attempts by result"))
	if err != nil {
		return nil, err
	}

	relays, err := meter.Int64Counter("warpcall.signaling.relays",
		metric.WithDescription("Relayed signaling messages by kind and result"))
	if err != nil {
		return nil, err
	}

	connections, err := meter.Int64UpDownCounter("warpcall.signaling.connections",
		metric.WithDescription("Registered websocket connections"))
	if err != nil {
		return nil, err
	}

	if dir != nil {
		_, err = meter.Int64ObservableGauge("warpcall.signaling.rooms",
			metric.WithDescription("Rooms with at least one member"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(dir.Len()))
				return nil
			}))
		if err != nil {
			return nil, err
		}
	}

	return &Metrics{joins: joins, relays: relays, connections: connections}, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider(), nil)
	return m
}

func (m *Metrics) join(result string) {
	m.joins.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) relay(kind, result string) {
	m.relays.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *Metrics) connection(delta int64) {
	m.connections.Add(context.Background(), delta)
}
