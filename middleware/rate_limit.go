package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// tierAllowance scales the base rate for paid subscription tiers.
// Unknown or empty tiers (anonymous callers) get the base rate.
var tierAllowance = map[string]int{
	"starter":      2,
	"professional": 5,
	"enterprise":   10,
}

// RateLimiter counts requests per caller within a fixed window.
// Authenticated callers are keyed by user ID so clients behind a
// shared NAT do not drain each other's allowance; anonymous callers
// are keyed by client IP.
type RateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	lastReset time.Time
	rate      int           // base requests per window
	window    time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
	}
}

// limitFor returns the per-window allowance for a subscription tier.
func (rl *RateLimiter) limitFor(tier string) int {
	if mult, ok := tierAllowance[tier]; ok {
		return rl.rate * mult
	}
	return rl.rate
}

// callerKey identifies the caller for rate accounting.
func callerKey(c *gin.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// allow records one request for key and reports whether it fits
// within limit. The window resets lazily on first use after expiry.
func (rl *RateLimiter) allow(key string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) > rl.window {
		rl.counts = make(map[string]int)
		rl.lastReset = time.Now()
	}

	if rl.counts[key] >= limit {
		return false
	}
	rl.counts[key]++
	return true
}

// RateLimit limits requests per authenticated user, or per client IP
// before authentication. Attach it after AuthMiddleware on protected
// groups so the user ID and tier are available.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		key := callerKey(c)
		limit := limiter.limitFor(GetTier(c))

		if !limiter.allow(key, limit) {
			slog.Warn("rate limit exceeded",
				"caller", key,
				"limit", limit,
				"request_id", GetRequestID(c),
			)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
