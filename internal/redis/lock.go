package redisclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("subject lock not acquired")
)

// Locker serializes critical sections per subject key. All keys are held
// for the whole of fn.
type Locker interface {
	WithSubjectLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// lockOrder returns keys deduplicated and sorted so every caller acquires
// overlapping key sets in the same order.
func lockOrder(keys []string) []string {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

type redisSubjectLocker struct {
	client       *redis.Client
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
}

// NewRedisSubjectLocker creates a locker holding one Redis key per subject.
// Acquisition is retried for up to wait before giving up with
// ErrLockNotAcquired. Once every key is held their TTLs are restarted and fn
// runs with a deadline of ttl.
func NewRedisSubjectLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisSubjectLocker{
		client:       client,
		ttl:          ttl,
		wait:         wait,
		pollInterval: 25 * time.Millisecond,
	}
}

func (l *redisSubjectLocker) WithSubjectLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	defer func() {
		// Release on a fresh context so a cancelled request still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, key := range held {
			_ = l.release(releaseCtx, key, token)
		}
	}()

	deadline := time.Now().Add(l.wait)
	for _, subject := range lockOrder(keys) {
		key := fmt.Sprintf("lock:%s", subject)
		if err := l.acquire(ctx, key, token, deadline); err != nil {
			return err
		}
		held = append(held, key)
	}

	// Earlier keys have been ageing while later ones were contended; restart
	// every TTL so none expires before fn's deadline.
	if err := l.refresh(ctx, held, token); err != nil {
		return err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var refreshScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
  if redis.call("GET", key) ~= ARGV[1] then
    return 0
  end
end
for i, key in ipairs(KEYS) do
  redis.call("PEXPIRE", key, ARGV[2])
end
return 1
`)

func (l *redisSubjectLocker) refresh(ctx context.Context, keys []string, token string) error {
	ok, err := refreshScript.Run(ctx, l.client, keys, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh subject locks: %w", err)
	}
	if ok != 1 {
		return ErrLockNotAcquired
	}
	return nil
}

func (l *redisSubjectLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire subject lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(l.pollInterval).Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSubjectLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release subject lock: %w", err)
	}
	return nil
}
