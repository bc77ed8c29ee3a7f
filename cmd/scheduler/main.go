package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/scheduler"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "scheduler", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	resendSchedule := os.Getenv("RESEND_SCHEDULE")
	if resendSchedule == "" {
		resendSchedule = "@every 1m"
	}

	cleanupSchedule := os.Getenv("CLEANUP_SCHEDULE")
	if cleanupSchedule == "" {
		cleanupSchedule = "@every 1h"
	}

	producer := messaging.NewProducer(brokers, messaging.TopicMaintenance)
	defer func() { _ = producer.Close() }()

	sched := scheduler.New(producer, logger)

	if err := sched.AddTrigger(resendSchedule, domain.MsgResendErrorEmail, domain.ResendErrorEmailEvent{}); err != nil {
		logger.Error("invalid resend schedule", "error", err, "schedule", resendSchedule)
		os.Exit(1)
	}

	if err := sched.AddTrigger(cleanupSchedule, domain.MsgCleanUpSentEmail, domain.CleanUpSentEmailEvent{}); err != nil {
		logger.Error("invalid cleanup schedule", "error", err, "schedule", cleanupSchedule)
		os.Exit(1)
	}

	sched.Start()
	logger.Info("scheduler started", "resend", resendSchedule, "cleanup", cleanupSchedule)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	sched.Stop()
}
