package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter spaces backend requests with a token bucket that refills
// lazily on each acquire, so no background goroutine is needed.
type rateLimiter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	capacity float64
	tokens   float64
}

// newRateLimiter creates a limiter allowing requestsPerMinute sustained
// requests, with bursts up to the same amount.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		last:     time.Now(),
		interval: time.Minute / time.Duration(requestsPerMinute),
		capacity: float64(requestsPerMinute),
		tokens:   float64(requestsPerMinute),
	}
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		wait := rl.acquire()
		if wait <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// acquire takes a token when one is available and returns 0; otherwise it
// returns how long to wait before retrying.
func (rl *rateLimiter) acquire() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += float64(now.Sub(rl.last)) / float64(rl.interval)
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return time.Duration((1 - rl.tokens) * float64(rl.interval))
}
