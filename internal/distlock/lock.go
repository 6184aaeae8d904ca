// Package distlock serializes work on one key across every process sharing a
// Redis instance.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the key stayed held for the whole wait.
var ErrNotAcquired = errors.New("lock already held")

// Options configures lock behavior.
type Options struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// WaitTimeout is how long Lock keeps retrying. Zero means one attempt.
	WaitTimeout time.Duration
	// RetryInterval is the delay between attempts.
	RetryInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		TTL:           5 * time.Second,
		WaitTimeout:   2 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// releaseScript deletes the key only if it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type Locker struct {
	client redis.Cmdable
	prefix string
	opts   Options
	logger *zap.Logger
}

// Lock is a held critical section.
type Lock struct {
	key   string
	token string
}

func NewLocker(client redis.Cmdable, prefix string, opts Options, logger *zap.Logger) *Locker {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultOptions().RetryInterval
	}
	return &Locker{client: client, prefix: prefix, opts: opts, logger: logger}
}

func (l *Locker) key(name string) string {
	return l.prefix + name
}

// TryLock makes a single acquisition attempt.
func (l *Locker) TryLock(ctx context.Context, name string) (*Lock, error) {
	key := l.key(name)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, ErrNotAcquired
	}
	return &Lock{key: key, token: token}, nil
}

// Lock retries TryLock until it succeeds or WaitTimeout passes.
func (l *Locker) Lock(ctx context.Context, name string) (*Lock, error) {
	if l.opts.WaitTimeout <= 0 {
		return l.TryLock(ctx, name)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		lock, err := l.TryLock(waitCtx, name)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNotAcquired
		case <-ticker.C:
		}
	}
}

// Unlock releases lock if we still own it.
func (l *Locker) Unlock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return errors.New("lock is nil")
	}

	result, err := l.client.Eval(ctx, releaseScript, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return errors.New("lock was not held or token mismatch")
	}
	return nil
}

// WithLock runs fn while holding the lock for name.
func (l *Locker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lock, err := l.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		// Release even if the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.Unlock(releaseCtx, lock); err != nil {
			l.logger.Warn("failed to release lock", zap.String("key", lock.key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

// Ping checks the Redis connection.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
