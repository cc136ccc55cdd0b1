package iam

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miguel-loureiro/BookCatalog/internal/errs"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(c *clock) *MemoryAttemptStore {
	s := NewMemoryAttemptStore(100, time.Hour)
	s.now = c.now
	return s
}

func TestMemoryAttemptStore_WindowResets(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestMemoryStore(c)

	n, err := s.IncrFailures(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c.advance(30 * time.Second)
	n, _ = s.IncrFailures(ctx, "1.2.3.4", time.Minute)
	assert.Equal(t, 2, n)

	c.advance(time.Minute)
	n, _ = s.IncrFailures(ctx, "1.2.3.4", time.Minute)
	assert.Equal(t, 1, n, "a failure after the window starts a new one")

	n, _ = s.IncrFailures(ctx, "5.6.7.8", time.Minute)
	assert.Equal(t, 1, n, "keys are independent")
}

func TestMemoryAttemptStore_Lock(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestMemoryStore(c)

	d, err := s.LockedFor(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, d)

	require.NoError(t, s.Lock(ctx, "k", 10*time.Minute))
	c.advance(4 * time.Minute)
	d, _ = s.LockedFor(ctx, "k")
	assert.Equal(t, 6*time.Minute, d)

	c.advance(6 * time.Minute)
	d, _ = s.LockedFor(ctx, "k")
	assert.Zero(t, d)

	require.NoError(t, s.Lock(ctx, "k", time.Minute))
	_, _ = s.IncrFailures(ctx, "k", time.Minute)
	require.NoError(t, s.Reset(ctx, "k"))
	d, _ = s.LockedFor(ctx, "k")
	assert.Zero(t, d)
	n, _ := s.IncrFailures(ctx, "k", time.Minute)
	assert.Equal(t, 1, n)
}

func TestLoginThrottler_LocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	th := NewLoginThrottler(newTestMemoryStore(c), ThrottleConfig{
		MaxFailures: 3,
		Window:      time.Minute,
		Lockout:     90 * time.Second,
	}, nil)

	require.NoError(t, th.Check(ctx, "ip"))
	require.NoError(t, th.Failure(ctx, "ip"))
	require.NoError(t, th.Failure(ctx, "ip"))

	err := th.Failure(ctx, "ip")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTooManyRequests)
	assert.Equal(t, 90, errs.From(err).RetryAfter)

	err = th.Check(ctx, "ip")
	assert.ErrorIs(t, err, errs.ErrTooManyRequests)
	assert.NoError(t, th.Check(ctx, "other-ip"))

	c.advance(91 * time.Second)
	assert.NoError(t, th.Check(ctx, "ip"))
}

func TestLoginThrottler_SuccessClearsFailures(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	th := NewLoginThrottler(newTestMemoryStore(c), ThrottleConfig{MaxFailures: 2, Window: time.Minute, Lockout: time.Minute}, nil)

	require.NoError(t, th.Failure(ctx, "ip"))
	th.Success(ctx, "ip")
	require.NoError(t, th.Failure(ctx, "ip"), "count restarted after success")
}

func TestLoginThrottler_Disabled(t *testing.T) {
	ctx := context.Background()

	var nilThrottler *LoginThrottler
	assert.NoError(t, nilThrottler.Check(ctx, "ip"))
	assert.NoError(t, nilThrottler.Failure(ctx, "ip"))
	nilThrottler.Success(ctx, "ip")

	off := NewLoginThrottler(NewMemoryAttemptStore(10, time.Minute), ThrottleConfig{}, nil)
	for i := 0; i < 10; i++ {
		assert.NoError(t, off.Failure(ctx, "ip"))
	}

	on := NewLoginThrottler(NewMemoryAttemptStore(10, time.Minute), ThrottleConfig{MaxFailures: 1, Window: time.Minute, Lockout: time.Minute}, nil)
	assert.NoError(t, on.Failure(ctx, ""), "requests without a client key are not tracked")
}

func TestLoginThrottler_StoreErrorsFailOpen(t *testing.T) {
	ctx := context.Background()
	th := NewLoginThrottler(stubAttemptStore{err: errors.New("redis down")},
		ThrottleConfig{MaxFailures: 1, Window: time.Minute, Lockout: time.Minute}, nil)

	assert.NoError(t, th.Check(ctx, "ip"))
	assert.NoError(t, th.Failure(ctx, "ip"))
	th.Success(ctx, "ip")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, 600, retryAfterSeconds(10*time.Minute))
}

func TestRedisAttemptStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisAttemptStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = s.Reset(ctx, key) })

	n, err := s.IncrFailures(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrFailures(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := s.LockedFor(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, d)

	require.NoError(t, s.Lock(ctx, key, time.Minute))
	d, err = s.LockedFor(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, d, 50*time.Second)

	require.NoError(t, s.Reset(ctx, key))
	d, err = s.LockedFor(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestNewRedisAttemptStore_BadURL(t *testing.T) {
	_, err := NewRedisAttemptStore("not a url")
	assert.Error(t, err)
}
