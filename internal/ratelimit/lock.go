package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Both scripts only touch the key while it still carries the holder's token.
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("DEL", KEYS[1])`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
)

var (
	// ErrLockHeld is returned by WithLock when another runner owns the key.
	ErrLockHeld = errors.New("lock_held")
	// ErrLeaseLost means the lease expired and someone else may hold the key.
	ErrLeaseLost = errors.New("lock_lease_lost")
)

// Locker hands out short Redis leases so a sweep runs on one worker at a time.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is one held lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire returns nil without error when the key is already held.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if key == "" || ttl <= 0 {
		return nil, errors.New("lock needs a key and a positive ttl")
	}

	lease := &Lease{client: l.client, key: key, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, key, lease.token, ttl).Result()
	if err != nil || !ok {
		return nil, err
	}
	return lease, nil
}

// Extend pushes the expiry out to ttl from now.
func (le *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, le.client, []string{le.key}, le.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release is a no-op once the lease has expired or moved to another holder.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil {
		return nil
	}
	return unlockScript.Run(ctx, le.client, []string{le.key}, le.token).Err()
}

// WithLock runs fn while holding key. The lease is renewed at half its ttl
// for long runs, and released on a fresh context so a cancelled run still
// frees it.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if lease == nil {
		return ErrLockHeld
	}

	runCtx, cancel := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		tick := time.NewTicker(ttl / 2)
		defer tick.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-tick.C:
				if lease.Extend(runCtx, ttl) != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		<-renewed
		releaseCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = lease.Release(releaseCtx)
	}()
	return fn(runCtx)
}
