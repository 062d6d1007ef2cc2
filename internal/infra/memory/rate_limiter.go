package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// RateLimiter is a per-key token bucket for a single process. A key allows
// limit events per window, with a burst of limit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	now := time.Now()
	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		r.buckets[key] = b
	}
	b.lastUsed = now
	r.mu.Unlock()
	return b.lim.AllowN(now, 1), nil
}

// Sweep drops buckets unused since before cutoff and returns how many went.
func (r *RateLimiter) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, b := range r.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(r.buckets, k)
			n++
		}
	}
	return n
}
