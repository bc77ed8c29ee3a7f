package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/messaging"
	"github.com/storefront-labs/fulfillment/internal/notifications"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notifications", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("notifications", "0.1.0")
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

	smtpHost := os.Getenv("SMTP_HOST")
	if smtpHost == "" {
		logger.Error("SMTP_HOST environment variable is required")
		os.Exit(1)
	}

	smtpPort := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		smtpPort, err = strconv.Atoi(v)
		if err != nil {
			logger.Error("invalid SMTP_PORT", "error", err)
			os.Exit(1)
		}
	}

	mailFrom := os.Getenv("MAIL_FROM")
	if mailFrom == "" {
		logger.Error("MAIL_FROM environment variable is required")
		os.Exit(1)
	}

	retention := 72 * time.Hour
	if v := os.Getenv("OUTBOX_RETENTION"); v != "" {
		retention, err = time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid OUTBOX_RETENTION", "error", err)
			os.Exit(1)
		}
	}

	db, err := telemetry.OpenDB(postgresURL, "notifications")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	smtpMailer := notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:     smtpHost,
		Port:     smtpPort,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     mailFrom,
	})
	defer func() { _ = smtpMailer.Close() }()

	mailer := notifications.NewRetryMailer(smtpMailer)

	outbox := notifications.NewPostgresOutboxRepository(db)
	renderer := notifications.NewRenderer()
	dispatcher := notifications.NewDispatcher(outbox, mailer, renderer, metrics, logger)
	maintenance := notifications.NewMaintenance(outbox, mailer, metrics, logger, retention)

	lifecycleRouter := messaging.NewRouter(logger)
	lifecycleRouter.Register(domain.MsgPlaceOrder, dispatcher.HandlePlaceOrder)
	lifecycleRouter.Register(domain.MsgCancelOrder, dispatcher.HandleCancelOrder)
	lifecycleRouter.Register(domain.MsgCompleteOrder, dispatcher.HandleCompleteOrder)

	maintenanceRouter := messaging.NewRouter(logger)
	maintenanceRouter.Register(domain.MsgCleanUpSentEmail, maintenance.HandleCleanUpSentEmail)
	maintenanceRouter.Register(domain.MsgResendErrorEmail, maintenance.HandleResendErrorEmail)

	lifecycleConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderLifecycle, "notifications", logger)
	defer func() { _ = lifecycleConsumer.Close() }()

	maintenanceConsumer := messaging.NewConsumer(brokers, messaging.TopicMaintenance, "notifications", logger)
	defer func() { _ = maintenanceConsumer.Close() }()

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()

	errs := make(chan error, 2)
	go func() { errs <- lifecycleConsumer.Consume(consumerCtx, lifecycleRouter.Dispatch) }()
	go func() { errs <- maintenanceConsumer.Consume(consumerCtx, maintenanceRouter.Dispatch) }()

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "8085"
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)

	metricsServer := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting notifications metrics endpoint", "port", metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting notifications service", "brokers", brokers, "retention", retention)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down")
	case err := <-errs:
		if err != nil && consumerCtx.Err() == nil {
			logger.Error("consumer error", "error", err)
			cancelConsumers()
			os.Exit(1)
		}
	}

	cancelConsumers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
