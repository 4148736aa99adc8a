package router

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per connection id.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[int]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter allows perSecond messages on average with bursts of burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[int]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether id may send another message now.
func (rl *RateLimiter) Allow(id int) bool {
	rl.mu.Lock()
	limiter, exists := rl.clients[id]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.clients[id] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Forget drops the bucket of a disconnected id.
func (rl *RateLimiter) Forget(id int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, id)
}

// Tracked returns the number of ids with a bucket.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
