// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a scoped, in-memory token-bucket rate limiter.
// Each scope (e.g. the API as a whole, or the report-generation endpoint on
// its own) carries an independent budget, so an expensive aggregation run
// cannot drain the tokens that cheap dashboard reads live off.
//
// Buckets are keyed by scope plus caller identity (user ID when known,
// client IP otherwise) and use golang.org/x/time/rate underneath. Idle
// buckets are swept periodically to bound memory.
//
// The limiter is process-local. Horizontally scaled deployments need a
// shared store (e.g. Redis) to enforce a global budget; this one is meant
// for edge-level abuse control on a single instance.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// sweepEvery is how often the limiter scans for idle buckets.
const sweepEvery = time.Minute

// bucketIdleTTL is how long a bucket may sit unused before eviction.
const bucketIdleTTL = 10 * time.Minute

// keyFunc maps a request to the caller identity used for bucket lookup.
// Implementations must return a stable string for the life of a request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP identifies callers by the "userID" context value when an
// identity middleware has set one, and by client IP otherwise. The prefixes
// keep the two namespaces from colliding.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket pairs a token bucket with its last-use timestamp for the sweeper.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out per-scope, per-identity token buckets. Safe for
// concurrent use.
type RateLimiter struct {
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

// NewRateLimiter constructs a limiter that identifies callers via keyFn.
// Budgets are attached per scope with Scope.
func NewRateLimiter(keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		nextSweep: time.Now().Add(sweepEvery),
	}
}

// take reserves one token from the bucket for key within scope, creating
// the bucket on first sight. It also runs the idle sweep when due; the
// sweep happens before the lookup so a stale bucket is evicted (and its
// tokens reset) rather than refreshed.
func (rl *RateLimiter) take(scope, key string, rps float64, burst int) bool {
	now := time.Now()
	id := scope + "|" + key

	rl.mu.Lock()
	if now.After(rl.nextSweep) {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.nextSweep = now.Add(sweepEvery)
	}

	b, ok := rl.buckets[id]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rps), burst)}
		rl.buckets[id] = b
	}
	b.lastSeen = now
	lim := b.lim
	rl.mu.Unlock()

	return lim.Allow()
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay of previously completed work. Replays are served without
// consuming tokens; re-reading a stored report costs next to nothing.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Scope returns middleware enforcing an independent token budget for the
// routes it is installed on. rps is the refill rate per second; burst
// values below 1 are coerced to 1.
//
// Rejections answer 429 with a Retry-After hint and the standard error
// envelope:
//
//	{ "request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded" }
func (rl *RateLimiter) Scope(name string, rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.take(name, rl.keyFn(c), rps, burst) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
