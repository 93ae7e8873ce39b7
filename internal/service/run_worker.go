package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/kursadbilgin/shiptrack/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// BatchRunner executes one automation batch.
type BatchRunner interface {
	RunBatch(ctx context.Context) (RunSummary, error)
}

// RunWorker consumes run requests and executes one batch per request. A batch that leaves
// due shipments behind enqueues a continuation so the backlog drains without waiting for the
// next scheduled tick.
type RunWorker struct {
	runner      BatchRunner
	consumer    queue.Consumer
	publisher   queue.Publisher
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewRunWorker(
	runner BatchRunner,
	consumer queue.Consumer,
	publisher queue.Publisher,
	concurrency int,
	logger *zap.Logger,
) (*RunWorker, error) {
	if runner == nil || consumer == nil {
		return nil, fmt.Errorf("run worker requires a batch runner and a consumer")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RunWorker{
		runner:      runner,
		consumer:    consumer,
		publisher:   publisher,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Start consumes the automation queue until context cancellation.
func (w *RunWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("run worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.AutomationRunsQueue),
			)

			if err := w.consumer.Consume(groupCtx, queue.AutomationRunsQueue, w.handle); err != nil {
				w.logger.Error("run worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			w.logger.Info("run worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *RunWorker) handle(ctx context.Context, msg queue.RunRequest) error {
	ctx = observability.WithRunID(ctx, msg.RunID)
	logger := observability.WithContextLogger(w.logger, ctx).With(zap.String("reason", msg.Reason))
	logger.Info("automation run started", zap.Duration("queueDelay", w.now().Sub(msg.RequestedAt)))

	summary, err := w.runner.RunBatch(ctx)
	if err != nil {
		return fmt.Errorf("run automation batch: %w", err)
	}

	if summary.MoreRemaining && ctx.Err() == nil {
		w.continueRun(ctx, logger, summary.Remaining)
	}
	return nil
}

// continueRun is best effort: a lost continuation only delays the backlog until the next tick.
func (w *RunWorker) continueRun(ctx context.Context, logger *zap.Logger, remaining int) {
	if w.publisher == nil {
		return
	}

	next := queue.RunRequest{
		RunID:       w.newID(),
		Reason:      queue.ReasonContinuation,
		RequestedAt: w.now().UTC(),
	}
	if err := w.publisher.Publish(ctx, queue.AutomationRunsQueue, next); err != nil {
		logger.Warn("failed to enqueue continuation run", zap.Int("remaining", remaining), zap.Error(err))
		return
	}
	logger.Info("continuation run enqueued", zap.String("nextRunId", next.RunID), zap.Int("remaining", remaining))
}
