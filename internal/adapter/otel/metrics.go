package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "flowdeck"

// Metrics holds all FlowDeck metric instruments.
type Metrics struct {
	EventsReceived     metric.Int64Counter
	DecodeFailures     metric.Int64Counter
	UnrecognizedEvents metric.Int64Counter
	ApplyDuration      metric.Float64Histogram
	OpenSessions       metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsReceived, err = meter.Int64Counter("flowdeck.events.received",
		metric.WithDescription("Envelopes decoded and applied"))
	if err != nil {
		return nil, err
	}

	m.DecodeFailures, err = meter.Int64Counter("flowdeck.events.decode_failures",
		metric.WithDescription("Inbound frames discarded at the decode boundary"))
	if err != nil {
		return nil, err
	}

	m.UnrecognizedEvents, err = meter.Int64Counter("flowdeck.events.unrecognized",
		metric.WithDescription("Envelopes with unknown type tags (log-only)"))
	if err != nil {
		return nil, err
	}

	m.ApplyDuration, err = meter.Float64Histogram("flowdeck.apply.duration_seconds",
		metric.WithDescription("Reducer apply latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.OpenSessions, err = meter.Int64UpDownCounter("flowdeck.sessions.open",
		metric.WithDescription("Currently connected observation sessions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
