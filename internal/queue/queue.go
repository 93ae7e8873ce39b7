package queue

import (
	"context"
	"fmt"
)

// Publisher publishes automation run requests.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg RunRequest) error
	Close() error
}

// MessageHandler handles a consumed run request.
type MessageHandler func(ctx context.Context, msg RunRequest) error

// Consumer consumes automation run requests from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// AutomationRunsQueue carries RunRequest messages to the worker.
	AutomationRunsQueue = "automation.runs"

	automationRunsRoutingKey = "automation.runs"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.automation.runs.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns every work queue the service declares.
func WorkQueueNames() []string {
	return []string{AutomationRunsQueue}
}

// DLQNames returns every dead-letter queue the service declares.
func DLQNames() []string {
	names := make([]string, 0, len(WorkQueueNames()))
	for _, q := range WorkQueueNames() {
		names = append(names, DLQName(q))
	}
	return names
}
