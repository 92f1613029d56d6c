package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 250 * time.Millisecond

// Locker implements core.GenerationLocker with redislock.
//
// When the lock cannot be obtained within the wait window, or Redis is
// unreachable, Lock returns an error and the run does not generate.
type Locker struct {
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewLocker creates a Locker. ttl bounds how long a holder keeps the lock;
// wait bounds how long Lock blocks for another holder.
func NewLocker(client redis.UniversalClient, prefix string, ttl, wait time.Duration) *Locker {
	return &Locker{
		locker: redislock.New(client),
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *Locker) Lock(ctx context.Context, fingerprint string) (func(), error) {
	key := l.prefix + "lock:" + fingerprint

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.locker.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryInterval),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("generation lock for %s still held after %s: %w", fingerprint, l.wait, err)
		}
		return nil, fmt.Errorf("obtain generation lock: %w", err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("release generation lock", "fingerprint", fingerprint, "error", err)
		}
	}, nil
}
