package async

import (
	"context"
	"time"
)

// RetryPolicy bounds a fixed-interval poll.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// CadragePolicy is the poll used for the Phase 0 cadrage note.
var CadragePolicy = RetryPolicy{MaxAttempts: 5, Interval: 1500 * time.Millisecond}

// PollUntil waits Interval then calls fn, up to MaxAttempts times, stopping
// as soon as fn reports done. Errors from fn do not stop the poll; the last
// one is returned when attempts run out. It returns ctx.Err() if ctx ends
// first.
func PollUntil(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (bool, error)) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			lastErr = err
			continue
		}
		if done {
			return true, nil
		}
	}
	return false, lastErr
}
