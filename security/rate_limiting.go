package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// ScanRateLimit caps scan attempts per gate device per minute. A stolen or
// brute-forcing device burns through its budget long before it can probe the
// signature space.
func (r *RateLimiter) ScanRateLimit(perMinute int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("scanlimit:%s", c.RealIP())

			count, err := r.redis.Incr(c.Request().Context(), key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(c.Request().Context(), key, time.Minute)
				}
				if count > int64(perMinute) {
					return c.JSON(429, map[string]string{
						"error": "Rate limit exceeded. Please try again later.",
					})
				}
			}

			return next(c)
		}
	}
}

// AntiBotMiddleware rejects obvious scripted clients before they reach the
// scan endpoint.
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userAgent := c.Request().Header.Get("User-Agent")
			if r.isSuspiciousUserAgent(userAgent) {
				return c.JSON(403, map[string]string{
					"error": "Access denied",
				})
			}

			return next(c)
		}
	}
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
