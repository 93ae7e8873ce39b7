package ratelimit

import (
	"context"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

// RateLimiter throttles outbound notifications per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}

// Unlimited never throttles. Used when no shared limiter is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, domain.Channel) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ domain.Channel) error {
	return ctx.Err()
}
