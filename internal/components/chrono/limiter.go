package chrono

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out requests by at least `interval`, waiting on an API so
// the wait is observable through a Fake. A zero interval never waits.
type Limiter struct {
	clock   API
	limiter *rate.Limiter
}

func NewLimiter(clock API, interval time.Duration) *Limiter {
	return &Limiter{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	now := l.clock.Now()
	delay := l.limiter.ReserveN(now, 1).DelayFrom(now)
	if delay <= 0 {
		return ctx.Err()
	}
	return l.clock.Sleep(ctx, delay)
}
