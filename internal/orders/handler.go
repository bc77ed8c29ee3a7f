package orders

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
)

// Handler is the checkout entry point of the saga. It creates the pending
// order, then emits the basket-deletion command and the place-order
// notification; everything after that is driven by messages.
type Handler struct {
	repo            Repository
	lifecycle       messaging.Publisher
	basketPublisher messaging.Publisher
	logger          *slog.Logger
}

func NewHandler(repo Repository, lifecycle, basketPublisher messaging.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		repo:            repo,
		lifecycle:       lifecycle,
		basketPublisher: basketPublisher,
		logger:          logger,
	}
}

type checkoutRequest struct {
	BasketID   string             `json:"basket_id"`
	BuyerID    string             `json:"buyer_id"`
	BuyerName  string             `json:"buyer_name"`
	BuyerEmail string             `json:"buyer_email"`
	Items      []domain.OrderItem `json:"items"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.BasketID == "" || len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "basket_id and items are required")
		return
	}

	var total int64
	for _, item := range req.Items {
		total += int64(item.Quantity) * item.Price
	}

	order := &domain.Order{
		BuyerID:    req.BuyerID,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		Items:      req.Items,
		Total:      total,
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.repo.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	deleteBasket := domain.DeleteBasketCommand{
		BasketID: req.BasketID,
		OrderID:  order.ID,
		Email:    order.BuyerEmail,
		Total:    order.Total,
	}
	if err := h.basketPublisher.Publish(r.Context(), req.BasketID, domain.MsgDeleteBasket, deleteBasket); err != nil {
		h.logger.Error("failed to publish delete basket command", "error", err, "order_id", order.ID)
	}

	placeOrder := domain.PlaceOrderCommand{
		OrderID: order.ID,
		Email:   order.BuyerEmail,
		Total:   order.Total,
	}
	if err := h.lifecycle.Publish(r.Context(), order.ID, domain.MsgPlaceOrder, placeOrder); err != nil {
		h.logger.Error("failed to publish place order command", "error", err, "order_id", order.ID)
	}

	h.logger.Info("checkout accepted", "order_id", order.ID, "basket_id", req.BasketID, "buyer_id", order.BuyerID)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// HandleComplete publishes a CompleteOrderCommand. The transition itself
// happens in the saga consumer; the endpoint only emits the command, so a
// 202 here does not mean the order is completed yet.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.publishLifecycle(w, r, domain.MsgCompleteOrder)
}

// HandleCancel publishes a CancelOrderCommand, the asynchronous twin of
// HandleComplete.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.publishLifecycle(w, r, domain.MsgCancelOrder)
}

func (h *Handler) publishLifecycle(w http.ResponseWriter, r *http.Request, msgType string) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	var payload any
	switch msgType {
	case domain.MsgCompleteOrder:
		payload = domain.CompleteOrderCommand{
			OrderID:  order.ID,
			Email:    order.BuyerEmail,
			FullName: order.BuyerName,
			Total:    order.Total,
		}
	case domain.MsgCancelOrder:
		payload = domain.CancelOrderCommand{
			OrderID:  order.ID,
			Email:    order.BuyerEmail,
			FullName: order.BuyerName,
			Total:    order.Total,
		}
	}

	if err := h.lifecycle.Publish(r.Context(), order.ID, msgType, payload); err != nil {
		h.logger.Error("failed to publish lifecycle command", "error", err, "type", msgType, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("lifecycle command published", "type", msgType, "order_id", order.ID)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"order_id": order.ID, "status": "accepted"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
