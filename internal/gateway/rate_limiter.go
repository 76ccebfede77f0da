package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Buckets idle longer than this are dropped by the cleanup loop. An idle
// bucket has long since refilled to full, so eviction never grants a
// caller extra budget.
const limiterIdleEviction = time.Hour

// RateLimiter enforces a per-caller request budget. Each caller gets its
// own token bucket sized to the configured limit; tokens refill
// continuously over the period rather than resetting on a boundary.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	rate     rate.Limit
	burst    int
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit requests per caller per period.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		rate:     rate.Limit(float64(limit) / period.Seconds()),
		burst:    limit,
	}
}

// Allow reports whether the caller still has budget for one request.
func (rl *RateLimiter) Allow(callerID string) (bool, error) {
	return rl.get(callerID).Allow(), nil
}

// Reset restores the caller's full budget by discarding its bucket.
func (rl *RateLimiter) Reset(callerID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, callerID)
	return nil
}

func (rl *RateLimiter) get(callerID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[callerID]
	if !ok {
		entry = &callerLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[callerID] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

// removeIdle drops buckets that have not been touched since the cutoff so
// the per-caller map does not grow without bound.
func (rl *RateLimiter) removeIdle(idleFor time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idleFor)
	for callerID, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, callerID)
		}
	}
}

// StartCleanup prunes idle buckets on the given interval.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.removeIdle(limiterIdleEviction)
		}
	}()
}
