package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler processes the payload of one message type.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Router dispatches envelopes to explicitly registered handlers. Services
// sharing a topic register only the types they care about; everything else
// is skipped, which is what lets two consumer groups read the same lifecycle
// stream without knowing about each other.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a message type. Registering the same type
// twice is a wiring bug and panics at startup.
func (r *Router) Register(msgType string, h Handler) {
	if _, ok := r.handlers[msgType]; ok {
		panic(fmt.Sprintf("messaging: handler already registered for %q", msgType))
	}
	r.handlers[msgType] = h
}

// Dispatch decodes the envelope and invokes the registered handler.
// A malformed envelope is unrecoverable: redelivering it cannot make it parse.
func (r *Router) Dispatch(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unrecoverable(fmt.Errorf("decode envelope: %w", err))
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Debug("no handler for message type, skipping", "type", env.Type, "message_id", env.MessageID)
		return nil
	}

	r.logger.Info("dispatching message", "type", env.Type, "message_id", env.MessageID)

	if err := h(ctx, env.Payload); err != nil {
		return fmt.Errorf("handle %s: %w", env.Type, err)
	}

	return nil
}
