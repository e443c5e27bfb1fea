package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/benny-conn/limiters"
	"github.com/go-redis/redis/v8"

	"github.com/mikeydub/go-union/service/logger"
	gredis "github.com/mikeydub/go-union/service/redis"
)

// KeyRateLimiter is a token bucket per key, with bucket state kept in redis so every instance
// of the service shares it
type KeyRateLimiter struct {
	rateDuration time.Duration
	rateAmount   int64
	reg          *limiters.Registry
	red          *redis.Client
	cache        *gredis.Cache
	clock        *limiters.SystemClock
	logger       *limiters.StdLogger
}

// NewKeyRateLimiter allows rateAmount requests per key every period
func NewKeyRateLimiter(rateAmount int64, every time.Duration, cache *gredis.Cache) *KeyRateLimiter {
	return &KeyRateLimiter{
		rateDuration: every,
		rateAmount:   rateAmount,
		reg:          limiters.NewRegistry(),
		red:          cache.Client(),
		cache:        cache,
		clock:        limiters.NewSystemClock(),
		logger:       limiters.NewStdLogger(),
	}
}

// ForKey reports whether key may continue, and if not how long until it may
func (i *KeyRateLimiter) ForKey(ctx context.Context, key string) (bool, time.Duration, error) {
	bucket := i.reg.GetOrCreate(key, func() interface{} {
		backend := limiters.NewTokenBucketRedis(i.red, i.cache.PrefixedKey("limiter:"+key), i.rateDuration*time.Duration(i.rateAmount), false)
		return limiters.NewTokenBucket(i.rateAmount, i.rateDuration, lockNoop{limiters.NewLockNoop()}, backend, i.clock, i.logger)
	}, i.rateDuration*time.Duration(i.rateAmount), i.clock.Now())

	w, err := bucket.(*limiters.TokenBucket).Limit(ctx)
	if err == limiters.ErrLimitExhausted {
		return false, w, nil
	} else if err != nil {
		logger.For(ctx).WithError(err).Error("rate limiter failed")
		return false, 0, fmt.Errorf("rate limiting err: %s", err)
	}

	return true, 0, nil
}

// lockNoop adapts limiters.LockNoop, whose Unlock lacks the context parameter that
// limiters.DistLocker requires in v0.0.2
type lockNoop struct{ *limiters.LockNoop }

func (l lockNoop) Unlock(context.Context) error { return l.LockNoop.Unlock() }
