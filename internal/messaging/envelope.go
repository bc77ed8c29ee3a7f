package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is bumped when the envelope shape itself changes, not when
// a payload schema does.
const EnvelopeVersion = 1

// Envelope wraps every integration message on the bus. Message IDs are
// UUIDv7 so they sort by creation time.
type Envelope struct {
	MessageID  string          `json:"message_id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	return Envelope{
		MessageID:  uuid.Must(uuid.NewV7()).String(),
		Type:       msgType,
		Version:    EnvelopeVersion,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}
