package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/orders"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	db, err := telemetry.OpenDB(postgresURL, "orders")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	lifecycle := messaging.NewProducer(brokers, messaging.TopicOrderLifecycle)
	defer func() { _ = lifecycle.Close() }()

	basketCommands := messaging.NewProducer(brokers, messaging.TopicBasketDelete)
	defer func() { _ = basketCommands.Close() }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	repo := orders.NewPostgresRepository(db)
	saga := orders.NewSaga(repo, metrics, logger)

	lifecycleRouter := messaging.NewRouter(logger)
	lifecycleRouter.Register(domain.MsgCompleteOrder, saga.HandleCompleteOrder)
	lifecycleRouter.Register(domain.MsgCancelOrder, saga.HandleCancelOrder)

	resultRouter := messaging.NewRouter(logger)
	resultRouter.Register(domain.MsgDeleteBasketComplete, saga.HandleDeleteBasketComplete)
	resultRouter.Register(domain.MsgDeleteBasketFailed, saga.HandleDeleteBasketFailed)

	lifecycleConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderLifecycle, "orders", logger)
	defer func() { _ = lifecycleConsumer.Close() }()

	resultConsumer := messaging.NewConsumer(brokers, messaging.TopicBasketResult, "orders", logger)
	defer func() { _ = resultConsumer.Close() }()

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()

	go runConsumer(consumerCtx, lifecycleConsumer, lifecycleRouter, logger, "order lifecycle")
	go runConsumer(consumerCtx, resultConsumer, resultRouter, logger, "basket results")

	handler := orders.NewHandler(repo, lifecycle, basketCommands, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(handler.HandleCheckout))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/complete", telemetry.WithHTTPRoute(handler.HandleComplete))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(handler.HandleCancel))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orders",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancelConsumers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func runConsumer(ctx context.Context, c *messaging.Consumer, r *messaging.Router, logger *slog.Logger, name string) {
	if err := c.Consume(ctx, r.Dispatch); err != nil {
		if ctx.Err() != nil {
			logger.Info("consumer stopped", "consumer", name)
			return
		}
		logger.Error("consumer error", "error", err, "consumer", name)
		os.Exit(1)
	}
}
