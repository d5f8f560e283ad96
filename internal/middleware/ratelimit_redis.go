// ratelimit_redis.go provides the Redis-backed variant of the rate limiter,
// using the GCRA implementation from redis_rate. Counters live in Redis, so
// the limit holds across replicas; a Redis outage fails open, since dropping
// legitimate gate traffic is worse than briefly losing the limit.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces a shared per-key rate limit through Redis
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	config  RateLimitConfig
}

// NewRedisRateLimiter creates a Redis-backed rate limiter sharing the
// RateLimitConfig shape with the in-process limiter.
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		config:  config,
	}
}

// RedisRateLimitMiddleware creates a Gin middleware that rate limits requests
// against the shared Redis counters.
func RedisRateLimitMiddleware(limiter *RedisRateLimiter) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   limiter.config.RequestsPerMinute,
		Burst:  limiter.config.BurstSize,
		Period: time.Minute,
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + getRateLimitKey(c)

		res, err := limiter.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// Fail open on Redis errors
			slog.Warn("redis rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds() + 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
