package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

// ErrOrderNotFound means the order an inbound command refers to does not
// exist in the expected state. Callers must treat it as "the order I
// expected is gone", not as something redelivery can fix.
var ErrOrderNotFound = errors.New("order not found")

// Saga holds the order service's reactions to saga messages. There is no
// central coordinator: each handler reacts to one message type and at most
// emits the next local state change.
type Saga struct {
	repo    Repository
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewSaga(repo Repository, metrics *telemetry.Metrics, logger *slog.Logger) *Saga {
	return &Saga{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleCompleteOrder moves a pending order to completed. An order that is
// not pending anymore (or never existed) is a terminal failure: retrying
// will not bring it back, so the error is marked unrecoverable and lands in
// the consumer's fault path instead of blocking the partition.
func (s *Saga) HandleCompleteOrder(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.CompleteOrderCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal complete order command: %w", err))
	}

	return s.transition(ctx, cmd.OrderID, domain.OrderStatusCompleted)
}

// HandleCancelOrder is symmetric to HandleCompleteOrder, moving a pending
// order to cancelled.
func (s *Saga) HandleCancelOrder(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.CancelOrderCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal cancel order command: %w", err))
	}

	return s.transition(ctx, cmd.OrderID, domain.OrderStatusCancelled)
}

func (s *Saga) transition(ctx context.Context, orderID string, to domain.OrderStatus) error {
	ok, err := s.repo.SetStatus(ctx, orderID, domain.OrderStatusPending, to)
	if err != nil {
		return fmt.Errorf("set order %s status to %s: %w", orderID, to, err)
	}

	if !ok {
		return messaging.Unrecoverable(fmt.Errorf("%w: %s not in %s", ErrOrderNotFound, orderID, domain.OrderStatusPending))
	}

	s.logger.Info("order status updated", "order_id", orderID, "status", to)
	return nil
}

// HandleDeleteBasketComplete acknowledges that the basket behind a new order
// was cleared. Nothing to mutate; logging twice on redelivery is harmless.
func (s *Saga) HandleDeleteBasketComplete(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.DeleteBasketCompleteCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal delete basket complete command: %w", err))
	}

	s.logger.Info("basket cleared for order", "order_id", cmd.OrderID, "total", cmd.Total)
	return nil
}

// HandleDeleteBasketFailed is the compensating transaction: when the basket
// could not be cleared the order must not survive, or the customer would be
// charged for a basket that still shows its items. An already-absent order
// means a redelivered copy of this command compensated before us, so that
// path is a silent success.
func (s *Saga) HandleDeleteBasketFailed(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.DeleteBasketFailedCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal delete basket failed command: %w", err))
	}

	deleted, err := s.repo.Delete(ctx, cmd.OrderID)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", cmd.OrderID, err)
	}

	if !deleted {
		s.logger.Info("order already compensated", "order_id", cmd.OrderID)
		return nil
	}

	s.metrics.OrdersCompensated.Add(ctx, 1)
	s.logger.Warn("order deleted after basket cleanup failure",
		"order_id", cmd.OrderID, "basket_id", cmd.BasketID)
	return nil
}
