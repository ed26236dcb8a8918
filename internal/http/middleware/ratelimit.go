package middleware

// Per-client token buckets in front of the routes. Buckets live in process
// memory and idle ones are swept every sweepEvery lookups; a multi-replica
// deployment needs a shared limiter instead.

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-errorcatcher/internal/reqctx"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = 5000
)

// keyFunc maps a request to the identity its bucket is stored under.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by gin's ClientIP, so the engine's trusted
// proxy settings decide which address counts.
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
	idleTTL time.Duration

	exempt map[string]struct{}
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: bucketIdleTTL,
		exempt:  make(map[string]struct{}),
	}
}

// Exempt excludes registered route paths (gin FullPath) from limiting.
// Call it before serving traffic.
func (rl *RateLimiter) Exempt(paths ...string) *RateLimiter {
	for _, p := range paths {
		rl.exempt[p] = struct{}{}
	}
	return rl
}

// limiterFor returns the bucket for key, creating it on first use. The
// sweep runs before the lookup so a stale bucket for key is replaced too.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.sweepLocked(now)
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.idleTTL {
			delete(rl.buckets, k)
		}
	}
}

// Handler enforces the limits. A rejected request gets 429 with
// Retry-After: 1 and a JSON body carrying request_id, code and message.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := rl.exempt[c.FullPath()]; skip {
			c.Next()
			return
		}
		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		rid := reqctx.RequestID(c.Request.Context())
		if rid == "" {
			rid = c.Writer.Header().Get(requestIDHeader)
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": rid,
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
