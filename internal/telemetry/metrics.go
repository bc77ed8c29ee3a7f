package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics carries the saga's counters. With no meter provider installed
// (unit tests) the global meter is a no-op, so handlers can record
// unconditionally.
type Metrics struct {
	EmailsSent        metric.Int64Counter
	EmailsFailed      metric.Int64Counter
	OrdersCompensated metric.Int64Counter
	OutboxPurged      metric.Int64Counter
	OutboxResent      metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("fulfillment")

	emailsSent, err := meter.Int64Counter("fulfillment_emails_sent_total",
		metric.WithDescription("Emails delivered to the mail transport."))
	if err != nil {
		return nil, err
	}

	emailsFailed, err := meter.Int64Counter("fulfillment_emails_failed_total",
		metric.WithDescription("Email delivery attempts that failed."))
	if err != nil {
		return nil, err
	}

	ordersCompensated, err := meter.Int64Counter("fulfillment_orders_compensated_total",
		metric.WithDescription("Orders deleted after basket cleanup failed."))
	if err != nil {
		return nil, err
	}

	outboxPurged, err := meter.Int64Counter("fulfillment_outbox_purged_total",
		metric.WithDescription("Sent outbox entries removed by the cleanup job."))
	if err != nil {
		return nil, err
	}

	outboxResent, err := meter.Int64Counter("fulfillment_outbox_resent_total",
		metric.WithDescription("Failed outbox entries successfully resent."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		EmailsSent:        emailsSent,
		EmailsFailed:      emailsFailed,
		OrdersCompensated: ordersCompensated,
		OutboxPurged:      outboxPurged,
		OutboxResent:      outboxResent,
	}, nil
}
