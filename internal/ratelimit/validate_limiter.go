package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/farebox/internal/config"
)

const keyValidateOperator = "validate:operator:%s"

// ValidateLimiter throttles redemption attempts per operator device. Code
// guessing gets expensive while honest scan bursts stay under the limit.
type ValidateLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewValidateLimiter(cfg config.Config) (*ValidateLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ValidateRate <= 0 || limitCfg.ValidateBurst <= 0 {
		return nil, errors.New("validate rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &ValidateLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.ValidateRate,
		burst:   limitCfg.ValidateBurst,
	}, nil
}

func (l *ValidateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ValidateLimiter) Allow(ctx context.Context, operatorID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyValidateOperator, operatorID), l.rate, l.burst)
}
