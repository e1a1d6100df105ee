package arrivals

import (
	"context"
	"time"
)

// rateLimiter is a token bucket shared by the fetch workers. It caps the
// upstream request rate without serializing workers on wall-clock sleeps.
type rateLimiter struct {
	tokens   chan struct{}
	interval time.Duration
}

func newRateLimiter(requestsPerInterval int, interval time.Duration) *rateLimiter {
	tokens := make(chan struct{}, requestsPerInterval)
	for i := 0; i < requestsPerInterval; i++ {
		tokens <- struct{}{}
	}
	return &rateLimiter{tokens: tokens, interval: interval}
}

// refillLoop tops the bucket back up once per interval until the context is
// cancelled.
func (r *rateLimiter) refillLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for len(r.tokens) < cap(r.tokens) {
				select {
				case r.tokens <- struct{}{}:
				default:
				}
			}
		}
	}
}

// wait blocks until a token is available or the context is cancelled.
func (r *rateLimiter) wait(ctx context.Context) error {
	select {
	case <-r.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
