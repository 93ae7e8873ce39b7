package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  20 * time.Second,
		MaxRetries:      2,
	}
}

// RetryingSender retries transient failures of the wrapped sender within a single dispatch.
type RetryingSender struct {
	next Sender
	cfg  RetryConfig
}

func NewRetryingSender(next Sender, cfg RetryConfig) *RetryingSender {
	def := DefaultRetryConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = def.MaxElapsedTime
	}
	return &RetryingSender{next: next, cfg: cfg}
}

func (s *RetryingSender) Send(ctx context.Context, msg Message) (*Delivery, error) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.InitialInterval),
		backoff.WithMaxInterval(s.cfg.MaxInterval),
		backoff.WithMaxElapsedTime(s.cfg.MaxElapsedTime),
	)

	var delivery *Delivery
	operation := func() error {
		d, err := s.next.Send(ctx, msg)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		delivery = d
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return delivery, nil
}
