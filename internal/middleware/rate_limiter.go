package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Counting window
	BlockTime   time.Duration // How long an IP stays blocked after exceeding the limit
}

// RateLimiter provides IP-based fixed window limiting backed by Redis
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	config RateLimiterConfig
}

// NewRateLimiter creates a limiter whose keys are namespaced by prefix
func NewRateLimiter(redisClient *redis.Client, prefix string, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		prefix: prefix,
		config: config,
	}
}

// Middleware returns a Gin middleware function for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Fail open: an unavailable Redis must not lock users out of auth
			logger.Log.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests, please try again later",
				"kind":        "rate_limited",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CheckLimit counts a request for ip. Exceeding the limit blocks the ip for BlockTime.
// Returns: (allowed, retryAfter, error)
func (rl *RateLimiter) CheckLimit(ctx context.Context, ip string) (bool, time.Duration, error) {
	blockKey := fmt.Sprintf("ratelimit:%s:block:%s", rl.prefix, ip)
	countKey := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, ip)

	ttl, err := rl.redis.TTL(ctx, blockKey).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl > 0 {
		return false, ttl, nil
	}

	count, err := rl.redis.Incr(ctx, countKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, countKey, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count > int64(rl.config.MaxRequests) {
		block := rl.config.BlockTime
		if block <= 0 {
			block = rl.config.Window
		}
		if err := rl.redis.Set(ctx, blockKey, 1, block).Err(); err != nil {
			return false, 0, err
		}
		logger.Log.Warn("Rate limit exceeded",
			zap.String("scope", rl.prefix),
			zap.String("ip", ip),
			zap.Duration("blocked_for", block),
		)
		return false, block, nil
	}

	return true, 0, nil
}
