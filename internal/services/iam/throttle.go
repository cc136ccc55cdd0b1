package iam

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/errs"
)

// AttemptStore keeps failed-login counters and lockouts per client key.
type AttemptStore interface {
	// IncrFailures records one failure and returns the count within the
	// current window. The window starts at the first failure.
	IncrFailures(ctx context.Context, key string, window time.Duration) (int, error)
	// Lock blocks key for d.
	Lock(ctx context.Context, key string, d time.Duration) error
	// LockedFor returns the remaining lockout, or zero.
	LockedFor(ctx context.Context, key string) (time.Duration, error)
	// Reset clears failures and lockout for key.
	Reset(ctx context.Context, key string) error
}

const defaultAttemptStoreSize = 10000

type failureWindow struct {
	count int
	first time.Time
}

// MemoryAttemptStore is a process-local AttemptStore backed by expirable
// LRU caches, so idle keys age out on their own.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	failures *expirable.LRU[string, failureWindow]
	locks    *expirable.LRU[string, time.Time]
	now      func() time.Time
}

// NewMemoryAttemptStore sizes both caches to size keys. Entries expire after
// ttl, which must cover the longer of the failure window and the lockout.
func NewMemoryAttemptStore(size int, ttl time.Duration) *MemoryAttemptStore {
	if size <= 0 {
		size = defaultAttemptStoreSize
	}
	return &MemoryAttemptStore{
		failures: expirable.NewLRU[string, failureWindow](size, nil, ttl),
		locks:    expirable.NewLRU[string, time.Time](size, nil, ttl),
		now:      time.Now,
	}
}

func (s *MemoryAttemptStore) IncrFailures(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	fw, ok := s.failures.Get(key)
	if !ok || now.Sub(fw.first) > window {
		fw = failureWindow{first: now}
	}
	fw.count++
	s.failures.Add(key, fw)
	return fw.count, nil
}

func (s *MemoryAttemptStore) Lock(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks.Add(key, s.now().Add(d))
	return nil
}

func (s *MemoryAttemptStore) LockedFor(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.locks.Get(key)
	if !ok {
		return 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		s.locks.Remove(key)
		return 0, nil
	}
	return remaining, nil
}

func (s *MemoryAttemptStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures.Remove(key)
	s.locks.Remove(key)
	return nil
}

// RedisAttemptStore shares throttling state between instances.
type RedisAttemptStore struct {
	client *redis.Client
	prefix string
}

// NewRedisAttemptStore connects using a redis:// URL.
func NewRedisAttemptStore(redisURL string) (*RedisAttemptStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisAttemptStoreWithClient(redis.NewClient(opts)), nil
}

func NewRedisAttemptStoreWithClient(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client, prefix: "bookcatalog:login:"}
}

func (s *RedisAttemptStore) failKey(key string) string { return s.prefix + "fail:" + key }
func (s *RedisAttemptStore) lockKey(key string) string { return s.prefix + "lock:" + key }

func (s *RedisAttemptStore) IncrFailures(ctx context.Context, key string, window time.Duration) (int, error) {
	k := s.failKey(key)
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("incr login failures: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("expire login failures: %w", err)
		}
	}
	return int(count), nil
}

func (s *RedisAttemptStore) Lock(ctx context.Context, key string, d time.Duration) error {
	if err := s.client.Set(ctx, s.lockKey(key), 1, d).Err(); err != nil {
		return fmt.Errorf("set login lock: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) LockedFor(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.lockKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read login lock: %w", err)
	}
	// PTTL reports -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.failKey(key), s.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) Close() error {
	return s.client.Close()
}

// ThrottleConfig sets the lockout policy. MaxFailures <= 0 disables it.
type ThrottleConfig struct {
	MaxFailures int
	Window      time.Duration
	Lockout     time.Duration
}

// LoginThrottler locks a client key out after too many failed logins.
// Store errors are logged and never block a login. A nil *LoginThrottler
// allows everything.
type LoginThrottler struct {
	store  AttemptStore
	cfg    ThrottleConfig
	logger *zap.Logger
}

func NewLoginThrottler(store AttemptStore, cfg ThrottleConfig, logger *zap.Logger) *LoginThrottler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginThrottler{store: store, cfg: cfg, logger: logger}
}

func (t *LoginThrottler) enabled(key string) bool {
	return t != nil && t.store != nil && t.cfg.MaxFailures > 0 && key != ""
}

// Check returns a TooManyRequests error while key is locked.
func (t *LoginThrottler) Check(ctx context.Context, key string) error {
	if !t.enabled(key) {
		return nil
	}
	remaining, err := t.store.LockedFor(ctx, key)
	if err != nil {
		t.logger.Warn("login throttle check failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if remaining > 0 {
		return errs.TooManyRequests("Too many failed login attempts", retryAfterSeconds(remaining))
	}
	return nil
}

// Failure records a failed login. It returns a TooManyRequests error when
// this failure triggers the lockout.
func (t *LoginThrottler) Failure(ctx context.Context, key string) error {
	if !t.enabled(key) {
		return nil
	}
	count, err := t.store.IncrFailures(ctx, key, t.cfg.Window)
	if err != nil {
		t.logger.Warn("login throttle record failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if count < t.cfg.MaxFailures {
		return nil
	}
	if err := t.store.Lock(ctx, key, t.cfg.Lockout); err != nil {
		t.logger.Warn("login throttle lock failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	t.logger.Info("login locked out", zap.String("key", key), zap.Int("failures", count), zap.Duration("lockout", t.cfg.Lockout))
	return errs.TooManyRequests("Too many failed login attempts", retryAfterSeconds(t.cfg.Lockout))
}

// Success clears the key's failure history.
func (t *LoginThrottler) Success(ctx context.Context, key string) {
	if !t.enabled(key) {
		return
	}
	if err := t.store.Reset(ctx, key); err != nil {
		t.logger.Warn("login throttle reset failed", zap.String("key", key), zap.Error(err))
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
