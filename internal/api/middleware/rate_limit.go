package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a simple sliding-window limiter keyed by an arbitrary
// identifier (here, client IP — this domain has no per-user dimension,
// per spec.md §1's multi-tenant-isolation non-goal).
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.RWMutex
	window   time.Duration
	maxReqs  int
	logger   *slog.Logger
}

func NewRateLimiter(maxReqs int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		logger:   logger,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	validRequests := make([]time.Time, 0, len(rl.requests[identifier]))
	for _, req := range rl.requests[identifier] {
		if req.After(cutoff) {
			validRequests = append(validRequests, req)
		}
	}

	if len(validRequests) >= rl.maxReqs {
		rl.requests[identifier] = validRequests
		return false
	}

	validRequests = append(validRequests, now)
	rl.requests[identifier] = validRequests
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for identifier, requests := range rl.requests {
			validRequests := make([]time.Time, 0, len(requests))
			for _, req := range requests {
				if req.After(cutoff) {
					validRequests = append(validRequests, req)
				}
			}
			if len(validRequests) == 0 {
				delete(rl.requests, identifier)
			} else {
				rl.requests[identifier] = validRequests
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit limits requests per client IP within window.
func RateLimit(maxReqs int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	limiter := NewRateLimiter(maxReqs, window, logger)

	return func(c *gin.Context) {
		identifier := c.ClientIP()

		if !limiter.Allow(identifier) {
			logger.Warn("rate limit exceeded", "ip", identifier, "max_requests", maxReqs, "window", window)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// QueueRateLimit bounds read/lifecycle operations on existing queues.
func QueueRateLimit(logger *slog.Logger) gin.HandlerFunc {
	return RateLimit(120, time.Hour, logger)
}

// QueueCreationRateLimit bounds queue creation specifically, more
// restrictive since it is the most expensive operation (it spins up task
// records for potentially many tasks at once).
func QueueCreationRateLimit(logger *slog.Logger) gin.HandlerFunc {
	return RateLimit(30, time.Hour, logger)
}

// QueueRateLimitForTest and QueueCreationRateLimitForTest are permissive
// variants for integration tests, matching the teacher's test-mode presets.
func QueueRateLimitForTest(logger *slog.Logger) gin.HandlerFunc {
	return RateLimit(10000, time.Hour, logger)
}

func QueueCreationRateLimitForTest(logger *slog.Logger) gin.HandlerFunc {
	return RateLimit(10000, time.Hour, logger)
}
