package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storefront-labs/fulfillment/internal/messaging"
)

// Scheduler publishes recurring control events. It holds no state about the
// consumers: if the notification service is down, the triggers queue on the
// bus like any other message.
type Scheduler struct {
	cron      *cron.Cron
	publisher messaging.Publisher
	logger    *slog.Logger
}

func New(publisher messaging.Publisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		logger:    logger,
	}
}

// AddTrigger schedules a recurring publication of one message type. The
// schedule accepts standard cron expressions and @every descriptors.
func (s *Scheduler) AddTrigger(schedule, msgType string, payload any) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.publisher.Publish(ctx, msgType, msgType, payload); err != nil {
			s.logger.Error("failed to publish trigger", "error", err, "type", msgType)
			return
		}

		s.logger.Info("trigger published", "type", msgType, "schedule", schedule)
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any in-flight trigger publication.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
