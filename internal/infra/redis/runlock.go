package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const runLockKey = "shiptrack:automation:run-lock"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a best-effort mutual exclusion between automation runs.
// Correctness never depends on it; the dispatch claim is the real guard.
type RunLock struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
	token  func() string
}

func NewRunLock(client *goredis.Client, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{
		client: client,
		key:    runLockKey,
		ttl:    ttl,
		token:  uuid.NewString,
	}, nil
}

// TryAcquire takes the lock without waiting. ok is false when another run holds it.
func (l *RunLock) TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := l.token()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}
