package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

// Dispatcher consumes order lifecycle commands and turns each into one
// email attempt plus one outbox row. The outbox row is written whatever the
// transport said: it is the durable record the maintenance jobs work from.
type Dispatcher struct {
	outbox   OutboxRepository
	mailer   Mailer
	renderer *Renderer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewDispatcher(outbox OutboxRepository, mailer Mailer, renderer *Renderer, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		mailer:   mailer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
	}
}

func (d *Dispatcher) HandlePlaceOrder(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.PlaceOrderCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal place order command: %w", err))
	}

	return d.notify(ctx, TemplatePlaced, cmd.OrderID, "", cmd.Email, cmd.Total)
}

func (d *Dispatcher) HandleCancelOrder(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.CancelOrderCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal cancel order command: %w", err))
	}

	return d.notify(ctx, TemplateCancelled, cmd.OrderID, cmd.FullName, cmd.Email, cmd.Total)
}

func (d *Dispatcher) HandleCompleteOrder(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.CompleteOrderCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal complete order command: %w", err))
	}

	return d.notify(ctx, TemplateCompleted, cmd.OrderID, cmd.FullName, cmd.Email, cmd.Total)
}

// notify composes the mail, attempts immediate delivery and records the
// attempt. A transport failure is swallowed after being persisted as a
// failed outbox row; only the outbox insert itself can fail the handler,
// which makes the broker redeliver the command.
func (d *Dispatcher) notify(ctx context.Context, templateKey, orderID, fullName, email string, total int64) error {
	if email == "" {
		// Guest checkout: no contactable buyer, no email, no outbox entry.
		d.logger.Info("order has no recipient email, skipping notification",
			"order_id", orderID, "template", templateKey)
		return nil
	}

	body, err := d.renderer.Render(templateKey, orderID, fullName, total)
	if err != nil {
		return messaging.Unrecoverable(err)
	}

	msg := &domain.OutboxMessage{
		ID:             uuid.Must(uuid.NewV7()).String(),
		RecipientName:  fullName,
		RecipientEmail: email,
		Subject:        d.renderer.Subject(templateKey, orderID),
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}

	sendErr := d.mailer.Send(ctx, Mail{
		ToName:    msg.RecipientName,
		ToAddress: msg.RecipientEmail,
		Subject:   msg.Subject,
		Body:      msg.Body,
	})

	attemptedAt := time.Now().UTC()
	msg.AttemptedAt = &attemptedAt

	if sendErr != nil {
		msg.Status = domain.OutboxStatusFailed
		d.metrics.EmailsFailed.Add(ctx, 1)
		d.logger.Warn("email delivery failed, recorded for resend",
			"error", sendErr, "order_id", orderID, "outbox_id", msg.ID)
	} else {
		msg.Status = domain.OutboxStatusSent
		d.metrics.EmailsSent.Add(ctx, 1)
		d.logger.Info("email sent", "order_id", orderID, "outbox_id", msg.ID, "template", templateKey)
	}

	if err := d.outbox.Insert(ctx, msg); err != nil {
		return fmt.Errorf("record notification for order %s: %w", orderID, err)
	}

	return nil
}
