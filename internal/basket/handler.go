package basket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
)

// Handler reacts to basket-deletion commands and reports the outcome back
// on the results topic. It is the leaf of the saga: it never consumes its
// own output.
type Handler struct {
	store   *Store
	results messaging.Publisher
	logger  *slog.Logger
}

func NewHandler(store *Store, results messaging.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		store:   store,
		results: results,
		logger:  logger,
	}
}

// HandleDeleteBasket clears the basket behind a freshly created order and
// publishes either the completion or the failure event. The store failure is
// reported, not returned: the order service owns the decision of what a
// failed cleanup means for the order.
func (h *Handler) HandleDeleteBasket(ctx context.Context, payload json.RawMessage) error {
	var cmd domain.DeleteBasketCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return messaging.Unrecoverable(fmt.Errorf("unmarshal delete basket command: %w", err))
	}

	if err := h.store.Delete(ctx, cmd.BasketID); err != nil {
		h.logger.Error("basket deletion failed", "error", err, "basket_id", cmd.BasketID, "order_id", cmd.OrderID)

		failed := domain.DeleteBasketFailedCommand{
			BasketID: cmd.BasketID,
			Email:    cmd.Email,
			OrderID:  cmd.OrderID,
			Total:    cmd.Total,
		}
		if err := h.results.Publish(ctx, cmd.OrderID, domain.MsgDeleteBasketFailed, failed); err != nil {
			return fmt.Errorf("publish delete basket failed: %w", err)
		}
		return nil
	}

	complete := domain.DeleteBasketCompleteCommand{
		OrderID: cmd.OrderID,
		Total:   cmd.Total,
	}
	if err := h.results.Publish(ctx, cmd.OrderID, domain.MsgDeleteBasketComplete, complete); err != nil {
		return fmt.Errorf("publish delete basket complete: %w", err)
	}

	h.logger.Info("basket deleted", "basket_id", cmd.BasketID, "order_id", cmd.OrderID)
	return nil
}
