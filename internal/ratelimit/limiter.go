package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/monstrox/monstro/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keySupportMember = "ratelimit:support:%s:%s"
	keyLoginAttempt  = "ratelimit:login:%s"
)

// ErrRateLimited is returned when a bucket has no tokens left.
var ErrRateLimited = errors.New("rate_limited")

// Limiter applies the per-member chatbot and per-client login budgets.
type Limiter struct {
	bucket *TokenBucket

	supportRate  float64
	supportBurst int
	loginRate    float64
	loginBurst   int
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	return &Limiter{
		bucket:       NewTokenBucket(client),
		supportRate:  cfg.Support.MessageRate,
		supportBurst: cfg.Support.MessageBurst,
		loginRate:    cfg.Auth.LoginRate,
		loginBurst:   cfg.Auth.LoginBurst,
	}
}

func (l *Limiter) enabled(rate float64, burst int) bool {
	return l != nil && l.bucket != nil && rate > 0 && burst > 0
}

// AllowSupportMessage spends one chatbot message token for the member at a location.
func (l *Limiter) AllowSupportMessage(ctx context.Context, locationID, memberID string) (*RateLimitResult, error) {
	if !l.enabled(l.supportRate, l.supportBurst) {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keySupportMember, strings.TrimSpace(locationID), strings.TrimSpace(memberID))
	return l.bucket.Allow(ctx, key, l.supportRate, l.supportBurst)
}

// AllowLogin spends one login token for a client identifier (IP or email).
func (l *Limiter) AllowLogin(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.enabled(l.loginRate, l.loginBurst) {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLoginAttempt, strings.ToLower(strings.TrimSpace(clientKey)))
	return l.bucket.Allow(ctx, key, l.loginRate, l.loginBurst)
}
