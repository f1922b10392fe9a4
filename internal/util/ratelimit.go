package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces calls against a per-minute API quota. Each Wait reserves
// the next free slot and sleeps until it arrives, so concurrent callers are
// served in arrival order.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	burst    int
	next     time.Time // earliest time the next reservation may start
}

// NewRateLimiter allows perMinute calls per minute with no burst. A
// non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewBurstLimiter(perMinute, 1)
}

// NewBurstLimiter is NewRateLimiter with up to burst calls let through
// back to back after an idle period.
func NewBurstLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{
		interval: time.Minute / time.Duration(perMinute),
		burst:    max(burst, 1),
	}
}

// reserve returns how long the caller must sleep before its slot.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Idle credit is capped at burst slots.
	if floor := now.Add(-time.Duration(rl.burst-1) * rl.interval); rl.next.Before(floor) {
		rl.next = floor
	}
	slot := rl.next
	rl.next = slot.Add(rl.interval)
	if slot.Before(now) {
		return 0
	}
	return slot.Sub(now)
}

// Wait blocks until the caller's slot or until ctx is done. A cancelled
// wait still consumes its slot.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.interval == 0 {
		return ctx.Err()
	}
	d := rl.reserve(time.Now())
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
