package webhook

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the per-minute delivery cap for subscriptions that
	// do not set one.
	DefaultRateLimit = 60

	defaultRateWindow = time.Minute
	defaultRateTTL    = 5 * time.Minute
)

// RateLimiter counts deliveries per subscription in fixed windows. It is safe
// for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	window  time.Duration
	ttl     time.Duration
}

type rateWindow struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// NewRateLimiter returns a limiter using window-long buckets. Idle entries are
// evicted after ttl.
func NewRateLimiter(window, ttl time.Duration) *RateLimiter {
	if window <= 0 {
		window = defaultRateWindow
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RateLimiter{
		windows: make(map[string]rateWindow),
		window:  window,
		ttl:     ttl,
	}
}

// Allow reports whether subscription may deliver now. Limits <= 0 fall back to
// DefaultRateLimit.
func (rl *RateLimiter) Allow(subscription string, limit int, now time.Time) bool {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.pruneLocked(now)

	state := rl.touchLocked(subscription, now)
	if state.count >= limit {
		rl.windows[subscription] = state
		return false
	}
	state.count++
	rl.windows[subscription] = state
	return true
}

// ResetAt returns when the subscription's current window ends.
func (rl *RateLimiter) ResetAt(subscription string, now time.Time) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	state := rl.touchLocked(subscription, now)
	rl.windows[subscription] = state
	return state.start.Add(rl.window)
}

// Len returns the number of tracked subscriptions.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *RateLimiter) touchLocked(subscription string, now time.Time) rateWindow {
	state := rl.windows[subscription]
	if state.start.IsZero() || now.Sub(state.start) >= rl.window {
		state.start = now
		state.count = 0
	}
	state.lastSeen = now
	return state
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	if rl.ttl == 0 {
		return
	}
	for name, state := range rl.windows {
		if now.Sub(state.lastSeen) > rl.ttl {
			delete(rl.windows, name)
		}
	}
}
