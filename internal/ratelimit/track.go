package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/scalehq/entitlements/internal/config"
	"go.uber.org/fx"
)

const keyTrackUser = "usage:track:user:%s"

// TrackLimiter bounds per-user burst traffic on the track endpoint. It is
// an abuse guard in front of the monthly quota, not part of it; a nil
// limiter (rate limiting disabled) allows everything.
type TrackLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewTrackLimiter(cfg config.Config) (*TrackLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.TrackRate <= 0 || limitCfg.TrackBurst <= 0 {
		return nil, errors.New("track rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &TrackLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.TrackRate,
		burst:   limitCfg.TrackBurst,
	}, nil
}

func (l *TrackLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *TrackLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyTrackUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewTrackLimiter),
)
