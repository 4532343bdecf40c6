package queue

import (
	"sync"
	"time"
)

// LeaseLimiter caps how fast a dispatcher may pull work from its queue.
// Token bucket: capacity tokens, refilled continuously at rate per window.
type LeaseLimiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewLeaseLimiter allows capacity leases per window, refilling smoothly.
func NewLeaseLimiter(capacity int, window time.Duration) *LeaseLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LeaseLimiter{
		capacity: float64(capacity),
		rate:     float64(capacity) / window.Seconds(),
		tokens:   float64(capacity),
		last:     time.Now(),
		now:      time.Now,
	}
}

// Allow reports whether a lease may proceed right now, consuming a token if so.
func (l *LeaseLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

func (l *LeaseLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}
