package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/storefront-labs/fulfillment/internal/domain"
)

// ListFilter narrows an outbox listing. A zero Before means no time bound.
type ListFilter struct {
	Status domain.OutboxStatus
	Before time.Time
}

// OutboxRepository persists email attempts. Every notification handler
// writes here regardless of whether the immediate send worked; the
// maintenance jobs read and prune it.
type OutboxRepository interface {
	Insert(ctx context.Context, msg *domain.OutboxMessage) error
	List(ctx context.Context, filter ListFilter) ([]domain.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id string, status domain.OutboxStatus, attemptedAt time.Time) error
	// DeleteBatch removes the given entries in one statement; the delete is
	// all-or-nothing and returns the number of rows removed.
	DeleteBatch(ctx context.Context, ids []string) (int64, error)
}

type PostgresOutboxRepository struct {
	db *sql.DB
}

func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) Insert(ctx context.Context, msg *domain.OutboxMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, recipient_name, recipient_email, subject, body, status, created_at, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.RecipientName, msg.RecipientEmail, msg.Subject, msg.Body, msg.Status, msg.CreatedAt, msg.AttemptedAt)
	if err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *PostgresOutboxRepository) List(ctx context.Context, filter ListFilter) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, recipient_name, recipient_email, subject, body, status, created_at, attempted_at
		FROM outbox
		WHERE status = $1
	`
	args := []any{filter.Status}

	if !filter.Before.IsZero() {
		query += ` AND attempted_at < $2`
		args = append(args, filter.Before)
	}

	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		var attemptedAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.RecipientName, &msg.RecipientEmail, &msg.Subject, &msg.Body, &msg.Status, &msg.CreatedAt, &attemptedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		if attemptedAt.Valid {
			msg.AttemptedAt = &attemptedAt.Time
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

func (r *PostgresOutboxRepository) UpdateStatus(ctx context.Context, id string, status domain.OutboxStatus, attemptedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = $1, attempted_at = $2
		WHERE id = $3
	`, status, attemptedAt, id)
	if err != nil {
		return fmt.Errorf("update outbox message %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}

	return nil
}

func (r *PostgresOutboxRepository) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete outbox messages: %w", err)
	}

	return result.RowsAffected()
}
