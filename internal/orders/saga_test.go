package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

type memoryRepo struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*domain.Order
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[string]*domain.Order)}
}

func (r *memoryRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	order.ID = fmt.Sprintf("order-%d", r.seq)
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (r *memoryRepo) SetStatus(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return false, nil
	}
	delete(r.orders, id)
	return true, nil
}

func (r *memoryRepo) List(_ context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orders = append(orders, *order)
	}
	return orders, nil
}

func newTestSaga(t *testing.T, repo Repository) *Saga {
	t.Helper()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	return NewSaga(repo, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedPendingOrder(t *testing.T, repo *memoryRepo) *domain.Order {
	t.Helper()

	order := &domain.Order{
		BuyerID:    "buyer-1",
		BuyerName:  "Ada Lovelace",
		BuyerEmail: "ada@example.com",
		Total:      2500,
		Status:     domain.OrderStatusPending,
	}
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return data
}

func TestSaga_HandleCompleteOrder(t *testing.T) {
	t.Run("completes a pending order exactly once", func(t *testing.T) {
		repo := newMemoryRepo()
		order := seedPendingOrder(t, repo)
		saga := newTestSaga(t, repo)

		payload := mustMarshal(t, domain.CompleteOrderCommand{OrderID: order.ID})

		if err := saga.HandleCompleteOrder(context.Background(), payload); err != nil {
			t.Fatalf("first completion failed: %v", err)
		}

		got, _ := repo.GetByID(context.Background(), order.ID)
		if got.Status != domain.OrderStatusCompleted {
			t.Fatalf("expected status %s, got %s", domain.OrderStatusCompleted, got.Status)
		}

		err := saga.HandleCompleteOrder(context.Background(), payload)
		if err == nil {
			t.Fatal("expected second completion to fail")
		}
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
		if !messaging.IsUnrecoverable(err) {
			t.Fatalf("expected unrecoverable error, got %v", err)
		}
	})

	t.Run("fails for an order that never existed", func(t *testing.T) {
		saga := newTestSaga(t, newMemoryRepo())

		payload := mustMarshal(t, domain.CompleteOrderCommand{OrderID: "missing"})

		err := saga.HandleCompleteOrder(context.Background(), payload)
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("rejects malformed payload as unrecoverable", func(t *testing.T) {
		saga := newTestSaga(t, newMemoryRepo())

		err := saga.HandleCompleteOrder(context.Background(), json.RawMessage(`{`))
		if err == nil {
			t.Fatal("expected error")
		}
		if !messaging.IsUnrecoverable(err) {
			t.Fatalf("expected unrecoverable error, got %v", err)
		}
	})
}

func TestSaga_HandleCancelOrder(t *testing.T) {
	t.Run("cancels a pending order", func(t *testing.T) {
		repo := newMemoryRepo()
		order := seedPendingOrder(t, repo)
		saga := newTestSaga(t, repo)

		payload := mustMarshal(t, domain.CancelOrderCommand{OrderID: order.ID})

		if err := saga.HandleCancelOrder(context.Background(), payload); err != nil {
			t.Fatalf("cancellation failed: %v", err)
		}

		got, _ := repo.GetByID(context.Background(), order.ID)
		if got.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected status %s, got %s", domain.OrderStatusCancelled, got.Status)
		}
	})

	t.Run("cannot cancel a completed order", func(t *testing.T) {
		repo := newMemoryRepo()
		order := seedPendingOrder(t, repo)
		saga := newTestSaga(t, repo)

		if err := saga.HandleCompleteOrder(context.Background(), mustMarshal(t, domain.CompleteOrderCommand{OrderID: order.ID})); err != nil {
			t.Fatalf("completion failed: %v", err)
		}

		err := saga.HandleCancelOrder(context.Background(), mustMarshal(t, domain.CancelOrderCommand{OrderID: order.ID}))
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}

		got, _ := repo.GetByID(context.Background(), order.ID)
		if got.Status != domain.OrderStatusCompleted {
			t.Fatalf("completed order must not change, got %s", got.Status)
		}
	})
}

func TestSaga_HandleDeleteBasketFailed(t *testing.T) {
	t.Run("deletes the order and is a no-op on redelivery", func(t *testing.T) {
		repo := newMemoryRepo()
		order := seedPendingOrder(t, repo)
		saga := newTestSaga(t, repo)

		payload := mustMarshal(t, domain.DeleteBasketFailedCommand{
			BasketID: "basket-1",
			OrderID:  order.ID,
			Email:    order.BuyerEmail,
			Total:    order.Total,
		})

		if err := saga.HandleDeleteBasketFailed(context.Background(), payload); err != nil {
			t.Fatalf("compensation failed: %v", err)
		}

		got, _ := repo.GetByID(context.Background(), order.ID)
		if got != nil {
			t.Fatal("expected order to be deleted")
		}

		// Redelivered copy of the same command.
		if err := saga.HandleDeleteBasketFailed(context.Background(), payload); err != nil {
			t.Fatalf("redelivery must be a silent no-op, got %v", err)
		}
	})
}

func TestSaga_HandleDeleteBasketComplete(t *testing.T) {
	repo := newMemoryRepo()
	order := seedPendingOrder(t, repo)
	saga := newTestSaga(t, repo)

	payload := mustMarshal(t, domain.DeleteBasketCompleteCommand{OrderID: order.ID, Total: order.Total})

	if err := saga.HandleDeleteBasketComplete(context.Background(), payload); err != nil {
		t.Fatalf("acknowledgement failed: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), order.ID)
	if got == nil || got.Status != domain.OrderStatusPending {
		t.Fatal("acknowledgement must not mutate the order")
	}
}
