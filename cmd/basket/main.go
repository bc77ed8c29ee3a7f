package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-labs/fulfillment/internal/basket"
	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "basket", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Error("REDIS_URL environment variable is required")
		os.Exit(1)
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}

	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	results := messaging.NewProducer(brokers, messaging.TopicBasketResult)
	defer func() { _ = results.Close() }()

	store := basket.NewStore(client)
	handler := basket.NewHandler(store, results, logger)

	router := messaging.NewRouter(logger)
	router.Register(domain.MsgDeleteBasket, handler.HandleDeleteBasket)

	consumer := messaging.NewConsumer(brokers, messaging.TopicBasketDelete, "basket", logger)
	defer func() { _ = consumer.Close() }()

	consumerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting basket service", "brokers", brokers)

	if err := consumer.Consume(consumerCtx, router.Dispatch); err != nil {
		if consumerCtx.Err() != nil {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
