package agent

import (
	"context"
	"math"
	"sync"
	"time"
)

// Limiter is a token bucket throttling dispatches to the AI backend. A
// full bucket absorbs bursts; sustained traffic drains to the refill rate.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time
}

func NewLimiter(burst int, perMinute float64) *Limiter {
	if burst <= 0 {
		burst = defaultRateBurst
	}
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	return &Limiter{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   perMinute / 60.0,
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.tokens = math.Min(l.burst, l.tokens+now.Sub(l.last).Seconds()*l.rate)
		l.last = now
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
