package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff is the retry policy for one source fetch.
type Backoff struct {
	// Attempts counts the first try. 1 disables retries. Default: 3.
	Attempts int

	// Base is the delay before the first retry. Default: 250ms.
	Base time.Duration

	// Max caps any single delay. Default: 10s.
	Max time.Duration

	// Factor grows the delay per attempt. Default: 2.
	Factor float64

	// Jitter spreads each delay by ±Jitter of itself. Default: 0.2.
	Jitter float64

	// Retryable decides which errors are retried. Default: IsTransient.
	Retryable func(error) bool

	// OnRetry runs before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff returns the policy used for source fetches.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     250 * time.Millisecond,
		Max:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

// WithAttempts returns b with the attempt count replaced when n is positive.
func (b Backoff) WithAttempts(n int) Backoff {
	if n > 0 {
		b.Attempts = n
	}
	return b
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Base <= 0 {
		b.Base = d.Base
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor <= 0 {
		b.Factor = d.Factor
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// delay returns the sleep before retry number attempt (0-based).
func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx ends. The last error is returned.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for functions that produce a value.
func RetryVal[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt == b.Attempts-1 {
			return zero, err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

// LogRetries returns an OnRetry hook that logs each retry of source.
func LogRetries(log *zap.Logger, source string) func(int, error) {
	return func(attempt int, err error) {
		log.Warn("resilience: retrying source fetch",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
