package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "echobox"

// Metrics holds all Echobox metric instruments.
type Metrics struct {
	FanoutsStarted      metric.Int64Counter
	DeliveriesSucceeded metric.Int64Counter
	DeliveriesFailed    metric.Int64Counter
	DeliveryDuration    metric.Float64Histogram
	ActiveStreams       metric.Int64UpDownCounter
	MessagesPublished   metric.Int64Counter
	MessagesForwarded   metric.Int64Counter
	MessagesDropped     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FanoutsStarted, err = meter.Int64Counter("echobox.fanouts.started",
		metric.WithDescription("Number of feedback fanouts started"))
	if err != nil {
		return nil, err
	}

	m.DeliveriesSucceeded, err = meter.Int64Counter("echobox.deliveries.succeeded",
		metric.WithDescription("Number of successful channel deliveries"))
	if err != nil {
		return nil, err
	}

	m.DeliveriesFailed, err = meter.Int64Counter("echobox.deliveries.failed",
		metric.WithDescription("Number of failed channel deliveries"))
	if err != nil {
		return nil, err
	}

	m.DeliveryDuration, err = meter.Float64Histogram("echobox.delivery.duration_seconds",
		metric.WithDescription("Single channel delivery duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.ActiveStreams, err = meter.Int64UpDownCounter("echobox.streams.active",
		metric.WithDescription("Number of open session streams"))
	if err != nil {
		return nil, err
	}

	m.MessagesPublished, err = meter.Int64Counter("echobox.messages.published",
		metric.WithDescription("Number of messages published to session subscribers"))
	if err != nil {
		return nil, err
	}

	m.MessagesForwarded, err = meter.Int64Counter("echobox.messages.forwarded",
		metric.WithDescription("Number of messages written to session streams"))
	if err != nil {
		return nil, err
	}

	m.MessagesDropped, err = meter.Int64Counter("echobox.messages.dropped",
		metric.WithDescription("Number of messages dropped on full stream buffers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
