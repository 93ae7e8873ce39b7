package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const consumerTag = "shiptrack-worker"

// settlement is what the consumer does with a delivery once the handler returned.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

// RabbitMQConsumer feeds run requests to a handler. A failed request is requeued once and
// dead-lettered on its second failure. Malformed requests are dead-lettered immediately.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx ends, resubscribing with backoff whenever the channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(reconnectInitialInterval),
		backoff.WithMaxInterval(reconnectMaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			policy.Reset()
			continue
		}

		wait := policy.NextBackOff()
		c.logger.Warn("consumer interrupted, resubscribing",
			zap.String("queue", queue),
			zap.Duration("retryIn", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.settle(d, c.process(ctx, d.Body, d.Redelivered, handler)); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) process(ctx context.Context, body []byte, redelivered bool, handler MessageHandler) settlement {
	var msg RunRequest
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn("dead-lettering run request: invalid JSON", zap.Error(err))
		return settleDeadLetter
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("dead-lettering run request: validation failed", zap.Error(err), zap.String("runId", msg.RunID))
		return settleDeadLetter
	}

	if err := handler(ctx, msg); err != nil {
		if redelivered {
			c.logger.Error("run request failed twice, dead-lettering", zap.Error(err), zap.String("runId", msg.RunID))
			return settleDeadLetter
		}
		c.logger.Warn("run request failed, requeueing", zap.Error(err), zap.String("runId", msg.RunID))
		return settleRequeue
	}
	return settleAck
}

func (c *RabbitMQConsumer) settle(d amqp.Delivery, s settlement) error {
	var err error
	switch s {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Reject(false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", s, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
