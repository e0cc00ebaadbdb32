package github

import (
	"sync"
	"time"
)

// Budget is a token bucket guarding the upstream rate-limit allowance.
// Bulk fan-out callers reserve their whole batch up front so a large
// branch population cannot silently drain the hourly API budget.
type Budget struct {
	mu              sync.Mutex
	capacity        float64
	tokens          float64
	refillPerMinute float64
	last            time.Time
	clock           func() time.Time
}

// NewBudget constructs a full bucket. refillPerMinute tokens accrue per
// minute up to capacity. A nil clock defaults to time.Now.
func NewBudget(capacity, refillPerMinute int, clock func() time.Time) *Budget {
	if clock == nil {
		clock = time.Now
	}
	if capacity < 1 {
		capacity = 1
	}
	if refillPerMinute < 1 {
		refillPerMinute = 1
	}
	return &Budget{
		capacity:        float64(capacity),
		tokens:          float64(capacity),
		refillPerMinute: float64(refillPerMinute),
		last:            clock(),
		clock:           clock,
	}
}

// Take atomically consumes n tokens, reporting false (and consuming
// nothing) when fewer than n are available.
func (b *Budget) Take(n int) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	elapsed := now.Sub(b.last)
	if elapsed > 0 {
		b.tokens += elapsed.Minutes() * b.refillPerMinute
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens < float64(n) {
		return false
	}
	b.tokens -= float64(n)
	return true
}
