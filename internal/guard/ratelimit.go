package guard

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitedError tells the caller when to come back. The limiter never
// sleeps on the caller's behalf; the API client owns the waiting.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit reached, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Retryable() bool { return true }

// RateLimiter bounds outbound request rate with a fixed window plus a flat
// inter-request delay. Defaults match the marketplace quota: 30 requests
// per 60s window, 100ms apart.
type RateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	delay       time.Duration
	windowStart time.Time
	count       int
	lastRequest time.Time
	now         func() time.Time
}

// NewRateLimiter builds a limiter for maxRequests per window with a flat
// per-request delay.
func NewRateLimiter(maxRequests int, window, delay time.Duration) *RateLimiter {
	return &RateLimiter{
		window:      window,
		maxRequests: maxRequests,
		delay:       delay,
		now:         time.Now,
	}
}

// Acquire claims one request slot. It returns the pacing delay the caller
// must sleep before sending, or RateLimitedError when the window quota is
// exhausted.
func (rl *RateLimiter) Acquire() (time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Fixed window: counter resets on expiry.
	if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rl.window {
		rl.windowStart = now
		rl.count = 0
	}

	if rl.count >= rl.maxRequests {
		retryAfter := rl.window - now.Sub(rl.windowStart)
		return 0, &RateLimitedError{RetryAfter: retryAfter}
	}

	var wait time.Duration
	if !rl.lastRequest.IsZero() {
		if elapsed := now.Sub(rl.lastRequest); elapsed < rl.delay {
			wait = rl.delay - elapsed
		}
	}

	rl.count++
	rl.lastRequest = now.Add(wait)
	return wait, nil
}

// Remaining reports the unused quota in the current window.
func (rl *RateLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.windowStart.IsZero() || rl.now().Sub(rl.windowStart) >= rl.window {
		return rl.maxRequests
	}
	return rl.maxRequests - rl.count
}
