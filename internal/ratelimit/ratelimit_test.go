package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/monstrox/monstro/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "bucket:test", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := bucket.Allow(ctx, "bucket:test", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Equal(t, 3, res.Limit)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)

	var nilBucket *TokenBucket
	res, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.False(t, res.Allowed)
}

func TestLimiterSupportMessagesArePerMember(t *testing.T) {
	_, client := newTestClient(t)
	cfg := config.Config{Support: config.SupportConfig{MessageRate: 0.001, MessageBurst: 1}}
	limiter := NewLimiter(cfg, client)
	ctx := context.Background()

	res, err := limiter.AllowSupportMessage(ctx, "loc1", "m1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowSupportMessage(ctx, "loc1", "m1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.AllowSupportMessage(ctx, "loc1", "m2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterDisabledWithoutBudget(t *testing.T) {
	_, client := newTestClient(t)
	limiter := NewLimiter(config.Config{}, client)

	for i := 0; i < 5; i++ {
		res, err := limiter.AllowLogin(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestLockerLeaseIsExclusive(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "lock:sweep", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	other, err := locker.Acquire(ctx, "lock:sweep", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, lease.Extend(ctx, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL("lock:sweep"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("lock:sweep"))
}

func TestLeaseReleaseLeavesNewHolderAlone(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "lock:sweep", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "lock:sweep", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, fresh)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:sweep"))
	assert.ErrorIs(t, stale.Extend(ctx, time.Minute), ErrLeaseLost)
}

func TestTokenBucketTakeCost(t *testing.T) {
	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()
	budget := Budget{Rate: 1, Burst: 5}

	res, err := bucket.Take(ctx, "bucket:cost", budget, 4)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = bucket.Take(ctx, "bucket:cost", budget, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 2*time.Second, res.RetryAfter, float64(50*time.Millisecond))
}

func TestWithLockReportsHeld(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	err := locker.WithLock(ctx, "lock:job", time.Minute, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "lock:job", time.Minute, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockHeld)
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")

	ran := false
	require.NoError(t, locker.WithLock(ctx, "lock:job", time.Minute, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
