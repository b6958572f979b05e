package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// State lives in a hash as milli-tokens plus the last refill time in ms.
// Everything is integer math so Redis never truncates a fractional refill.
//
// KEYS[1] bucket key
// ARGV    refill per ms (milli-tokens), capacity (milli-tokens), cost (milli-tokens), ttl ms
// returns {allowed, remaining milli-tokens, wait ms}
const takeScript = `
local per_ms = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local level = cap
local state = redis.call("HMGET", KEYS[1], "m", "at")
if state[1] then
  local elapsed = math.max(0, now - tonumber(state[2]))
  level = math.min(cap, tonumber(state[1]) + math.floor(elapsed * per_ms))
end

local ok = 0
local wait = 0
if level >= cost then
  ok = 1
  level = level - cost
elseif per_ms > 0 then
  wait = math.ceil((cost - level) / per_ms)
end

redis.call("HSET", KEYS[1], "m", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {ok, level, wait}
`

const milli = 1000

var (
	errNoBucket    = errors.New("rate limiter not configured")
	errEmptyKey    = errors.New("rate limiter key is empty")
	errBadBudget   = errors.New("rate limiter needs a positive rate and burst")
	errBadResponse = errors.New("invalid rate limit script response")
)

// Budget is a refill rate in tokens per second and a bucket capacity.
type Budget struct {
	Rate  float64
	Burst int
}

func (b Budget) valid() bool {
	return b.Rate > 0 && b.Burst > 0
}

// idle is how long an untouched bucket takes to refill completely, doubled.
// After that the key carries no information and may expire.
func (b Budget) idle() time.Duration {
	d := time.Duration(math.Ceil(2*float64(b.Burst)/b.Rate)) * time.Second
	if d < time.Second {
		return time.Second
	}
	return d
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket is a Redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	take   *redis.Script
	now    func() time.Time
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, take: redis.NewScript(takeScript), now: time.Now}
}

// Allow spends one token at key. rate is tokens per second.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	return t.Take(ctx, key, Budget{Rate: rate, Burst: burst}, 1)
}

// Take spends cost tokens at key, or none when the bucket holds fewer.
func (t *TokenBucket) Take(ctx context.Context, key string, budget Budget, cost int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: budget.Burst}
	switch {
	case t == nil || t.client == nil:
		return denied, errNoBucket
	case key == "":
		return denied, errEmptyKey
	case !budget.valid() || cost <= 0:
		return denied, errBadBudget
	}

	out, err := t.take.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(budget.Rate, 'f', -1, 64), // milli-tokens per ms == tokens per second
		budget.Burst*milli,
		cost*milli,
		budget.idle().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, err
	}
	if len(out) != 3 {
		return denied, errBadResponse
	}

	wait := time.Duration(out[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    out[0] == 1,
		Limit:      budget.Burst,
		Remaining:  int(out[1] / milli),
		ResetTime:  t.now().Add(wait),
		RetryAfter: wait,
	}, nil
}
