package domain

import "time"

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage records one composed email and the outcome of its delivery
// attempts. It is the source of truth for whether a customer was notified:
// failed entries are retried by the resend job and sent entries are purged
// by the cleanup job once past retention.
type OutboxMessage struct {
	ID             string       `json:"id"`
	RecipientName  string       `json:"recipient_name"`
	RecipientEmail string       `json:"recipient_email"`
	Subject        string       `json:"subject"`
	Body           string       `json:"body"`
	Status         OutboxStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	AttemptedAt    *time.Time   `json:"attempted_at,omitempty"`
}
