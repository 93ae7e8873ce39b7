package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shiptrack/internal/queue"
	"go.uber.org/zap"
)

const defaultSchedulerInterval = time.Hour

// Scheduler periodically asks the worker pool for an automation batch.
type Scheduler struct {
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	now       func() time.Time
	newID     func() string
}

func NewScheduler(publisher queue.Publisher, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("scheduler requires a publisher")
	}
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Start publishes one run request immediately and then one per interval until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.enqueue(ctx, queue.ReasonSchedule); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial enqueue failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.enqueue(ctx, queue.ReasonSchedule); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler enqueue failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, reason string) error {
	msg := queue.RunRequest{
		RunID:       s.newID(),
		Reason:      reason,
		RequestedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, queue.AutomationRunsQueue, msg); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	s.logger.Debug("automation run enqueued", zap.String("runId", msg.RunID), zap.String("reason", reason))
	return nil
}
