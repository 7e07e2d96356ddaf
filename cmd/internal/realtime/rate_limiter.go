package realtime

import (
	"sync"
	"time"
)

// RateLimiter bounds how many envelopes one connection may submit inside a
// sliding window. Admitted event times live in a fixed ring; the oldest slot
// is reclaimed once it ages past the window. One limiter per connection.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	head   int
	count  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter, substituting the gateway defaults
// for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow admits the event at "now" unless the ring already holds a full
// window of newer events. Callers feed wall-clock times in order; the
// read loop is the only producer.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	for r.count > 0 && !r.ring[r.head].After(cut) {
		r.ring[r.head] = time.Time{}
		r.head = (r.head + 1) % len(r.ring)
		r.count--
	}

	if r.count == len(r.ring) {
		return false
	}
	r.ring[(r.head+r.count)%len(r.ring)] = now
	r.count++
	return true
}
