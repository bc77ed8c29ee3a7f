package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storefront-labs/fulfillment/internal/domain"
	"github.com/storefront-labs/fulfillment/internal/telemetry"
)

// resendWorkers bounds the resend job's parallelism. Effective throughput
// is still serialized by the shared SMTP connection; the bound only caps
// how much work queues on that lock at once.
const resendWorkers = 5

// Maintenance owns the two scheduler-triggered outbox jobs: purging sent
// mail past retention and retrying failed mail.
type Maintenance struct {
	outbox    OutboxRepository
	mailer    Mailer
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	retention time.Duration
}

func NewMaintenance(outbox OutboxRepository, mailer Mailer, metrics *telemetry.Metrics, logger *slog.Logger, retention time.Duration) *Maintenance {
	return &Maintenance{
		outbox:    outbox,
		mailer:    mailer,
		metrics:   metrics,
		logger:    logger,
		retention: retention,
	}
}

// HandleCleanUpSentEmail deletes every sent entry whose last attempt is
// older than the retention window, in one bulk statement. Entries that are
// pending or failed are never touched.
func (m *Maintenance) HandleCleanUpSentEmail(ctx context.Context, _ json.RawMessage) error {
	cutoff := time.Now().UTC().Add(-m.retention)

	entries, err := m.outbox.List(ctx, ListFilter{Status: domain.OutboxStatusSent, Before: cutoff})
	if err != nil {
		return fmt.Errorf("list sent outbox entries: %w", err)
	}

	if len(entries) == 0 {
		m.logger.Info("cleanup: nothing to purge")
		return nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	deleted, err := m.outbox.DeleteBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("purge sent outbox entries: %w", err)
	}

	m.metrics.OutboxPurged.Add(ctx, deleted)
	m.logger.Info("cleanup: purged sent mail", "count", deleted, "cutoff", cutoff)
	return nil
}

// HandleResendErrorEmail retries every failed outbox entry with bounded
// parallelism. Each entry is an independent attempt: one recipient's
// failure never fails another's retry or the job itself. Cancellation stops
// new sends from starting; in-flight sends finish on their own.
func (m *Maintenance) HandleResendErrorEmail(ctx context.Context, _ json.RawMessage) error {
	entries, err := m.outbox.List(ctx, ListFilter{Status: domain.OutboxStatusFailed})
	if err != nil {
		return fmt.Errorf("list failed outbox entries: %w", err)
	}

	if len(entries) == 0 {
		m.logger.Info("resend: no failed mail")
		return nil
	}

	var sent, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(resendWorkers)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			m.resendOne(ctx, entry, &sent, &failed)
			return nil
		})
	}

	_ = g.Wait()

	summary := []any{
		"total", len(entries),
		"sent", sent.Load(),
		"failed", failed.Load(),
	}
	if failed.Load() > 0 {
		m.logger.Error("resend: finished with failures", summary...)
	} else {
		m.logger.Info("resend: finished", summary...)
	}

	return nil
}

func (m *Maintenance) resendOne(ctx context.Context, entry domain.OutboxMessage, sent, failed *atomic.Int64) {
	err := m.mailer.Send(ctx, Mail{
		ToName:    entry.RecipientName,
		ToAddress: entry.RecipientEmail,
		Subject:   entry.Subject,
		Body:      entry.Body,
	})

	attemptedAt := time.Now().UTC()

	if err != nil {
		failed.Add(1)
		m.metrics.EmailsFailed.Add(ctx, 1)
		m.logger.Warn("resend attempt failed", "error", err, "outbox_id", entry.ID)
		if uerr := m.outbox.UpdateStatus(ctx, entry.ID, domain.OutboxStatusFailed, attemptedAt); uerr != nil {
			m.logger.Error("failed to record resend attempt", "error", uerr, "outbox_id", entry.ID)
		}
		return
	}

	if uerr := m.outbox.UpdateStatus(ctx, entry.ID, domain.OutboxStatusSent, attemptedAt); uerr != nil {
		// The mail went out but the status did not stick; the next resend
		// run will send a duplicate. At-least-once, by contract.
		m.logger.Error("sent but failed to mark outbox entry", "error", uerr, "outbox_id", entry.ID)
	}

	sent.Add(1)
	m.metrics.OutboxResent.Add(ctx, 1)
	m.metrics.EmailsSent.Add(ctx, 1)
}
