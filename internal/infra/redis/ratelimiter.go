package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 10
	backoffStep              = 25 * time.Millisecond
	backoffMax               = 250 * time.Millisecond
	windowSeconds            = 1
	rateLimitKeyPrefix       = "shiptrack:ratelimit"
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed-window per-second limiter shared by every worker process.
// Each channel has its own budget so a slow provider cannot starve the others.
type RedisRateLimiter struct {
	client *goredis.Client
	limits map[domain.Channel]int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter builds a limiter. Channels missing from limits, or with a
// non-positive limit, get defaultLimitPerSec.
func NewRedisRateLimiter(client *goredis.Client, limits map[domain.Channel]int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limits, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limits map[domain.Channel]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	resolved := make(map[domain.Channel]int64, len(domain.Channels))
	for _, channel := range domain.Channels {
		limit := int64(limits[channel])
		if limit <= 0 {
			limit = defaultLimitPerSec
		}
		resolved[channel] = limit
	}

	return &RedisRateLimiter{
		client: client,
		limits: resolved,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	limit, ok := r.limits[channel]
	if !ok {
		return false, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	key := fmt.Sprintf("%s:%s:%d", rateLimitKeyPrefix, strings.ToLower(channel.String()), r.now().UTC().Unix())
	result, err := allowScript.Run(ctx, r.client, []string{key}, limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until the channel has budget in the current window or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff*2, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
