// Package keylock serializes evaluations per control key, across replicas
// through Redis or within one process when Redis is not configured.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/miporis/compliance-evaluator/internal/adapter/observability"
	"github.com/miporis/compliance-evaluator/internal/domain"
)

const pollInterval = 50 * time.Millisecond

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock. TTL bounds how long a crashed holder
// blocks the key; Wait bounds how long Lock polls before giving up.
type RedisLocker struct {
	rdb  redis.Scripter
	set  func(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	TTL  time.Duration
	Wait time.Duration
}

// NewRedisLocker constructs a RedisLocker on rdb.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		rdb: rdb,
		set: func(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
			return rdb.SetNX(ctx, key, token, ttl).Result()
		},
		TTL:  ttl,
		Wait: wait,
	}
}

// Lock blocks until key is acquired, Wait elapses (ErrConflict) or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := "lock:" + key
	token := ulid.Make().String()
	start := time.Now()
	deadline := start.Add(l.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.set(ctx, redisKey, token, l.TTL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("op=keylock.lock key=%s: %w", key, err)
		}
		if ok {
			observability.LockWaitDuration.WithLabelValues("redis").Observe(time.Since(start).Seconds())
			return func() { l.release(redisKey, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: control %s is being evaluated", domain.ErrConflict, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	// The caller's context may already be cancelled; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("failed to release control lock", slog.String("key", redisKey), slog.Any("error", err))
	}
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
	Wait  time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: map[string]*entry{}, Wait: wait}
}

// Lock blocks until key is acquired, Wait elapses (ErrConflict) or ctx ends.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.Wait > 0 {
		t := time.NewTimer(l.Wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case e.ch <- struct{}{}:
		observability.LockWaitDuration.WithLabelValues("local").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.unref(key, e)
			})
		}, nil
	case <-timeout:
		l.unref(key, e)
		return nil, fmt.Errorf("%w: control %s is being evaluated", domain.ErrConflict, key)
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
