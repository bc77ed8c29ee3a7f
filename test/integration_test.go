//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/notifications"
	"github.com/storefront-labs/fulfillment/internal/orders"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, any) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics(t *testing.T) *telemetry.Metrics {
	t.Helper()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return metrics
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	ordersDB, err := DBWithSchema(pg.ConnStr, "orders")
	if err != nil {
		t.Fatalf("failed to create orders DB: %v", err)
	}
	defer func() { _ = ordersDB.Close() }()

	repo := orders.NewPostgresRepository(ordersDB)
	handler := orders.NewHandler(repo, noopPublisher{}, noopPublisher{}, discardLogger())

	reqBody := `{
		"basket_id": "basket-it-1",
		"buyer_id": "buyer-1",
		"buyer_name": "Ada Lovelace",
		"buyer_email": "ada@example.com",
		"items": [{"item_id": "ITEM-001", "quantity": 2, "price": 1000}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.HandleCheckout(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var createdOrder domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&createdOrder); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if createdOrder.ID == "" {
		t.Fatal("expected order ID to be set")
	}
	if createdOrder.Status != domain.OrderStatusPending {
		t.Fatalf("expected status '%s', got '%s'", domain.OrderStatusPending, createdOrder.Status)
	}
	if createdOrder.Total != 2000 {
		t.Fatalf("expected total 2000, got %d", createdOrder.Total)
	}

	fetchedOrder, err := repo.GetByID(ctx, createdOrder.ID)
	if err != nil {
		t.Fatalf("failed to fetch order from DB: %v", err)
	}
	if fetchedOrder == nil {
		t.Fatal("order not found in database")
	}
	if fetchedOrder.BuyerEmail != "ada@example.com" {
		t.Fatalf("DB order buyer_email mismatch: got '%s'", fetchedOrder.BuyerEmail)
	}
	if len(fetchedOrder.Items) != 1 {
		t.Fatalf("expected 1 order item, got %d", len(fetchedOrder.Items))
	}
}

func TestOrderSaga(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	ordersDB, err := DBWithSchema(pg.ConnStr, "orders")
	if err != nil {
		t.Fatalf("failed to create orders DB: %v", err)
	}
	defer func() { _ = ordersDB.Close() }()

	repo := orders.NewPostgresRepository(ordersDB)
	saga := orders.NewSaga(repo, testMetrics(t), discardLogger())

	seedOrder := func(t *testing.T) *domain.Order {
		t.Helper()
		order := &domain.Order{
			BuyerID:    "buyer-1",
			BuyerName:  "Ada Lovelace",
			BuyerEmail: "ada@example.com",
			Items: []domain.OrderItem{
				{ItemID: "ITEM-001", Quantity: 1, Price: 1000},
			},
			Total:     1000,
			Status:    domain.OrderStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
		return order
	}

	t.Run("completes a pending order exactly once", func(t *testing.T) {
		order := seedOrder(t)
		payload, _ := json.Marshal(domain.CompleteOrderCommand{OrderID: order.ID})

		if err := saga.HandleCompleteOrder(ctx, payload); err != nil {
			t.Fatalf("completion failed: %v", err)
		}

		got, err := repo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if got.Status != domain.OrderStatusCompleted {
			t.Fatalf("expected status %s, got %s", domain.OrderStatusCompleted, got.Status)
		}

		err = saga.HandleCompleteOrder(ctx, payload)
		if !errors.Is(err, orders.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound on redelivery, got %v", err)
		}
		if !messaging.IsUnrecoverable(err) {
			t.Fatalf("redelivered completion must be unrecoverable, got %v", err)
		}
	})

	t.Run("compensation deletes the order and its items", func(t *testing.T) {
		order := seedOrder(t)
		payload, _ := json.Marshal(domain.DeleteBasketFailedCommand{
			BasketID: "basket-x",
			OrderID:  order.ID,
			Email:    order.BuyerEmail,
			Total:    order.Total,
		})

		if err := saga.HandleDeleteBasketFailed(ctx, payload); err != nil {
			t.Fatalf("compensation failed: %v", err)
		}

		got, err := repo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if got != nil {
			t.Fatal("expected order to be deleted")
		}

		// Redelivered failure must be a silent no-op.
		if err := saga.HandleDeleteBasketFailed(ctx, payload); err != nil {
			t.Fatalf("redelivered compensation failed: %v", err)
		}
	})
}

func TestOutboxRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	notificationsDB, err := DBWithSchema(pg.ConnStr, "notifications")
	if err != nil {
		t.Fatalf("failed to create notifications DB: %v", err)
	}
	defer func() { _ = notificationsDB.Close() }()

	repo := notifications.NewPostgresOutboxRepository(notificationsDB)

	insert := func(t *testing.T, status domain.OutboxStatus, attemptedAt time.Time) *domain.OutboxMessage {
		t.Helper()
		msg := &domain.OutboxMessage{
			ID:             uuid.Must(uuid.NewV7()).String(),
			RecipientName:  "Ada Lovelace",
			RecipientEmail: "ada@example.com",
			Subject:        "Order received: order-1",
			Body:           "<html><body>hello</body></html>",
			Status:         status,
			CreatedAt:      time.Now().UTC(),
		}
		if !attemptedAt.IsZero() {
			msg.AttemptedAt = &attemptedAt
		}
		if err := repo.Insert(ctx, msg); err != nil {
			t.Fatalf("failed to insert outbox message: %v", err)
		}
		return msg
	}

	now := time.Now().UTC()
	oldSent := insert(t, domain.OutboxStatusSent, now.Add(-100*time.Hour))
	freshSent := insert(t, domain.OutboxStatusSent, now.Add(-time.Hour))
	failed := insert(t, domain.OutboxStatusFailed, now.Add(-100*time.Hour))

	t.Run("lists by status with a time bound", func(t *testing.T) {
		got, err := repo.List(ctx, notifications.ListFilter{
			Status: domain.OutboxStatusSent,
			Before: now.Add(-72 * time.Hour),
		})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != oldSent.ID {
			t.Fatalf("expected only the old sent entry, got %+v", got)
		}
	})

	t.Run("updates status and attempt time", func(t *testing.T) {
		attemptedAt := time.Now().UTC()
		if err := repo.UpdateStatus(ctx, failed.ID, domain.OutboxStatusSent, attemptedAt); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, err := repo.List(ctx, notifications.ListFilter{Status: domain.OutboxStatusFailed})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no failed entries left, got %d", len(got))
		}

		if err := repo.UpdateStatus(ctx, uuid.Must(uuid.NewV7()).String(), domain.OutboxStatusSent, attemptedAt); err == nil {
			t.Fatal("expected error updating a missing entry")
		}
	})

	t.Run("deletes a batch in one statement", func(t *testing.T) {
		deleted, err := repo.DeleteBatch(ctx, []string{oldSent.ID, freshSent.ID})
		if err != nil {
			t.Fatalf("delete batch failed: %v", err)
		}
		if deleted != 2 {
			t.Fatalf("expected 2 rows deleted, got %d", deleted)
		}

		deleted, err = repo.DeleteBatch(ctx, nil)
		if err != nil {
			t.Fatalf("empty delete batch failed: %v", err)
		}
		if deleted != 0 {
			t.Fatalf("expected 0 rows deleted, got %d", deleted)
		}
	})
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderLifecycle)
	defer func() { _ = producer.Close() }()

	received := make(chan domain.CompleteOrderCommand, 1)

	router := messaging.NewRouter(discardLogger())
	router.Register(domain.MsgCompleteOrder, func(_ context.Context, payload json.RawMessage) error {
		var cmd domain.CompleteOrderCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return messaging.Unrecoverable(err)
		}
		received <- cmd
		return nil
	})

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderLifecycle, "orders-it", discardLogger())
	defer func() { _ = consumer.Close() }()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Consume(consumerCtx, router.Dispatch)
	}()

	cmd := domain.CompleteOrderCommand{
		OrderID:  "order-it-1",
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
		Total:    1000,
	}
	if err := producer.Publish(ctx, cmd.OrderID, domain.MsgCompleteOrder, cmd); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got != cmd {
			t.Fatalf("round-trip mismatch: sent %+v, got %+v", cmd, got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the message")
	}

	stopConsumer()
	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("consumer exited with error: %v", err)
	}
}
