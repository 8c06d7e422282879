package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kataras/iris/v12"
)

// RateLimiter counts requests per key in fixed redis-backed windows. It is
// constructed once in main and handed to the routes that need it instead of
// being reached through a global.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow increments the counter for key and reports whether the request is
// within the window's limit. Redis being unreachable fails open so an outage
// does not take payment intake down with it.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Println("⚠️ rate limiter redis error:", err)
		return true
	}
	if count == 1 {
		rl.client.Expire(ctx, redisKey, rl.window)
	}

	return count <= int64(rl.limit)
}

// Middleware rejects requests over the limit keyed by client IP.
func (rl *RateLimiter) Middleware(ctx iris.Context) {
	if !rl.Allow(ctx.Request().Context(), clientIP(ctx)) {
		JSONError(ctx, iris.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}
	ctx.Next()
}
