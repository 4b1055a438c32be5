package daemon

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements a per-key token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	burst    int           // max tokens (bucket size)
	idle     time.Duration // buckets untouched this long are dropped
	lastGC   time.Time
	now      func() time.Time
}

type bucket struct {
	tokens    int
	lastCheck time.Time
}

// NewRateLimiter allows rate requests per interval per key, with bursts of
// up to burst requests.
func NewRateLimiter(rate int, interval time.Duration, burst int) *RateLimiter {
	if burst < rate {
		burst = rate
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		burst:    burst,
		idle:     5 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed and consumes one token if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.gc(now)

	b, exists := rl.buckets[key]
	if !exists {
		// New bucket starts full
		rl.buckets[key] = &bucket{tokens: rl.burst - 1, lastCheck: now}
		return true
	}

	if refill := int(now.Sub(b.lastCheck)/rl.interval) * rl.rate; refill > 0 {
		b.tokens = min(b.tokens+refill, rl.burst)
		b.lastCheck = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, exists := rl.buckets[key]; exists {
		return b.tokens
	}
	return rl.burst
}

// gc drops stale buckets at most once per idle period. Callers hold mu.
func (rl *RateLimiter) gc(now time.Time) {
	if now.Sub(rl.lastGC) < rl.idle {
		return
	}
	rl.lastGC = now
	cutoff := now.Add(-rl.idle)
	for key, b := range rl.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// limited throttles the reasoning-backed flows per user. It must run inside
// withUser so the user ID is resolved.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.flowLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())
		if !s.flowLimiter.Allow(userID) {
			s.logger.Warn("flow rate limit exceeded",
				"user_id", userID,
				"path", r.URL.Path,
				"correlation_id", GetCorrelationID(r.Context()),
			)
			w.Header().Set("Retry-After", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			s.jsonError(w, http.StatusTooManyRequests, "Muitas requisições, tente novamente em instantes", nil)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.flowLimiter.Remaining(userID)))
		next(w, r)
	}
}
