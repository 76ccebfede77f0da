package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	limit := 5
	rl := NewRateLimiter(limit, time.Minute)

	callerID := "user-123"

	for i := 0; i < limit; i++ {
		allowed, err := rl.Allow(callerID)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := rl.Allow(callerID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Error("Request should be denied after exceeding limit")
	}
}

func TestRateLimiter_Allow_DifferentCallers(t *testing.T) {
	limit := 3
	rl := NewRateLimiter(limit, time.Minute)

	caller1 := "user-1"
	caller2 := "user-2"

	for i := 0; i < limit; i++ {
		if allowed, _ := rl.Allow(caller1); !allowed {
			t.Errorf("Request %d for caller1 should be allowed", i+1)
		}
	}

	if allowed, _ := rl.Allow(caller1); allowed {
		t.Error("caller1 should be denied after exceeding limit")
	}

	// Budgets are per caller, so caller2 is unaffected
	if allowed, _ := rl.Allow(caller2); !allowed {
		t.Error("caller2 should be allowed")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	limit := 2
	period := 100 * time.Millisecond
	rl := NewRateLimiter(limit, period)

	callerID := "user-123"

	for i := 0; i < limit; i++ {
		if allowed, _ := rl.Allow(callerID); !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if allowed, _ := rl.Allow(callerID); allowed {
		t.Error("Request should be denied after exceeding limit")
	}

	// After a full period the bucket is back at capacity
	time.Sleep(period + 20*time.Millisecond)

	if allowed, _ := rl.Allow(callerID); !allowed {
		t.Error("Request should be allowed after refill")
	}
}

func TestRateLimiter_PartialRefill(t *testing.T) {
	limit := 10
	period := 200 * time.Millisecond
	rl := NewRateLimiter(limit, period)

	callerID := "user-123"

	for i := 0; i < limit; i++ {
		rl.Allow(callerID)
	}

	// Wait three quarters of the period; roughly that share of the budget
	// should be back, but not all of it.
	time.Sleep(period * 3 / 4)

	allowed := 0
	for i := 0; i < limit; i++ {
		if ok, _ := rl.Allow(callerID); ok {
			allowed++
		}
	}

	if allowed == 0 {
		t.Error("Expected some budget back after a partial period")
	}
	if allowed >= limit {
		t.Error("Expected partial refill, not full refill")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limit := 3
	rl := NewRateLimiter(limit, time.Minute)

	callerID := "user-123"

	for i := 0; i < limit; i++ {
		rl.Allow(callerID)
	}

	if allowed, _ := rl.Allow(callerID); allowed {
		t.Error("Request should be denied after exceeding limit")
	}

	if err := rl.Reset(callerID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if allowed, _ := rl.Allow(callerID); !allowed {
		t.Error("Request should be allowed after reset")
	}
}

func TestRateLimiter_RemoveIdle(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	for _, callerID := range []string{"user-1", "user-2", "user-3"} {
		rl.Allow(callerID)
	}

	if len(rl.limiters) != 3 {
		t.Fatalf("Expected 3 buckets, got %d", len(rl.limiters))
	}

	// Backdate one caller past the idle cutoff
	rl.mu.Lock()
	rl.limiters["user-2"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()

	rl.removeIdle(time.Hour)

	if len(rl.limiters) != 2 {
		t.Errorf("Expected idle bucket to be evicted, have %d buckets", len(rl.limiters))
	}
	if _, exists := rl.limiters["user-2"]; exists {
		t.Error("Expected user-2 bucket to be gone")
	}

	// Active callers survive the sweep
	if _, exists := rl.limiters["user-1"]; !exists {
		t.Error("Expected user-1 bucket to survive")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limit := 100
	rl := NewRateLimiter(limit, time.Minute)

	callerID := "user-123"
	goroutines := 10
	perGoroutine := 20

	results := make(chan bool, goroutines*perGoroutine)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < perGoroutine; j++ {
				allowed, _ := rl.Allow(callerID)
				results <- allowed
			}
		}()
	}

	allowedCount := 0
	total := goroutines * perGoroutine
	for i := 0; i < total; i++ {
		if <-results {
			allowedCount++
		}
	}

	if allowedCount > limit {
		t.Errorf("Allowed %d requests, but limit is %d", allowedCount, limit)
	}
	if allowedCount == 0 {
		t.Error("Expected some requests to be allowed")
	}
}
