package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles per-connection RPC volume (§5's "per-connection
// RPC rate limit"), keyed by connection id. rpm <= 0 disables limiting
// entirely (the teacher's backward-compat default).
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter allowing rpm requests per minute per
// connection, with burst as the token bucket's initial capacity.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{rpm: rpm, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Enabled reports whether rate limiting is configured on.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether connID may make another request right now,
// lazily creating that connection's bucket on first use.
func (r *RateLimiter) Allow(connID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	lim, ok := r.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[connID] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}

// Forget drops connID's bucket, called when a connection closes.
func (r *RateLimiter) Forget(connID string) {
	r.mu.Lock()
	delete(r.limiters, connID)
	r.mu.Unlock()
}
