package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// WindowCounter counts hits in a fixed window. *cache.RedisCache implements it.
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter is a per-caller fixed-window limiter. It counts in Redis when a
// counter is configured and falls back to process memory otherwise, or when
// Redis errors.
type RateLimiter struct {
	name    string
	limit   int
	window  time.Duration
	counter WindowCounter

	mu    sync.Mutex
	local map[string]*requestInfo
	now   func() time.Time
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

func NewRateLimiter(name string, limit int, window time.Duration, counter WindowCounter) *RateLimiter {
	return &RateLimiter{
		name:    name,
		limit:   limit,
		window:  window,
		counter: counter,
		local:   make(map[string]*requestInfo),
		now:     time.Now,
	}
}

// Handler limits by authenticated user, or by IP before authentication.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if identity, ok := IdentityFrom(c); ok {
			key = identity.ID
		}

		count, resetAt := rl.hit(c.UserContext(), key)
		remaining := rl.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if int(count) > rl.limit {
			retryAfter := int(resetAt.Sub(rl.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return apperr.RateLimited(retryAfter)
		}
		return c.Next()
	}
}

func (rl *RateLimiter) hit(ctx context.Context, key string) (int64, time.Time) {
	if rl.counter != nil {
		now := rl.now()
		bucket := now.Truncate(rl.window)
		redisKey := "ratelimit:" + rl.name + ":" + key + ":" + strconv.FormatInt(bucket.Unix(), 10)
		count, err := rl.counter.IncrementWindow(ctx, redisKey, rl.window)
		if err == nil {
			return count, bucket.Add(rl.window)
		}
		logger.WithError(err).Warn("rate limit counter unavailable, using local window")
	}
	return rl.hitLocal(key)
}

func (rl *RateLimiter) hitLocal(key string) (int64, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info, ok := rl.local[key]
	if !ok || now.After(info.expiresAt) {
		info = &requestInfo{expiresAt: now.Add(rl.window)}
		rl.local[key] = info
		rl.cleanupLocked(now)
	}
	info.count++
	return int64(info.count), info.expiresAt
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, info := range rl.local {
		if now.After(info.expiresAt) {
			delete(rl.local, key)
		}
	}
}
