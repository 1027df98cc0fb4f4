package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/utils"
)

// RateLimitMiddleware limits requests per IP + endpoint using redis
// INCR/EXPIRE counters. Redis failures fail open so an outage degrades
// protection, not availability.
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" || c.FullPath() == "/ready" {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()
		allow(c, rdb, key, cfg.RateLimitReqs, cfg.RateLimitWindow)
	}
}

// RoleBasedRateLimit grants higher tiers a larger budget. Must run after
// authentication.
func RoleBasedRateLimit(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)

		limit := cfg.RateLimitReqs
		switch role {
		case models.RoleAdmin:
			limit = cfg.RateLimitReqs * 10
		case models.RoleManager:
			limit = cfg.RateLimitReqs * 4
		case models.RoleEditor:
			limit = cfg.RateLimitReqs * 2
		}

		key := "ratelimit:" + role + ":" + c.ClientIP() + ":" + c.FullPath()
		allow(c, rdb, key, limit, cfg.RateLimitWindow)
	}
}

func allow(c *gin.Context, rdb *redis.Client, key string, limit, windowSeconds int) {
	ctx := context.Background()
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		c.Next()
		return
	}

	if count == 1 {
		rdb.Expire(ctx, key, time.Duration(windowSeconds)*time.Second)
	}

	if count > int64(limit) {
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("X-RateLimit-Reset", strconv.FormatInt(
			time.Now().Add(time.Duration(windowSeconds)*time.Second).Unix(), 10))

		utils.RespondWithError(c, http.StatusTooManyRequests,
			"rate_limit_exceeded",
			"Too many requests. Please try again later.",
			gin.H{
				"retry_after": windowSeconds,
				"limit":       limit,
			})
		c.Abort()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
	c.Next()
}
