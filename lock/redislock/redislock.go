// Package redislock implements lock.Locker as a Redis lease so that several
// billing processes sharing one store still run at most one operation per
// customer.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/xraph/billing/lock"
)

var _ lock.Locker = (*Locker)(nil)

// ErrNotAcquired is returned when ctx ends before the lease is obtained.
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker holds per-key leases in Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets the lease lifetime. It bounds how long a crashed holder can
// block a customer.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetryInterval sets the polling interval while waiting on a held key.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) { l.retry = d }
}

// WithPrefix namespaces the Redis keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// New creates a Locker on an existing client.
func New(client *redis.Client, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		ttl:    30 * time.Second,
		retry:  25 * time.Millisecond,
		prefix: "billing:lock:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial parses a redis:// URL, connects and verifies the server answers.
func Dial(ctx context.Context, url string, opts ...Option) (*Locker, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redislock: invalid redis URL: %w", err)
	}
	ropts.DialTimeout = 5 * time.Second
	ropts.ReadTimeout = 3 * time.Second
	ropts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redislock: failed to connect to redis: %w", err)
	}
	return New(client, opts...), nil
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	k := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("redislock: setnx %s: %w", key, err)
		}
		if ok {
			return l.unlocker(k, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(key, token string) lock.Unlock {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err() //nolint:errcheck // lease expires on its own
	}
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}
