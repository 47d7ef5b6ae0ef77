package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how an operation is retried: up to MaxAttempts tries,
// sleeping InitialDelay * Multiplier^(n-1) between consecutive tries.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2.0}
}

// Permanent marks err as non-retryable: the operation aborts immediately
// and the original error is returned.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op under the policy and returns its first successful result.
// Context cancellation stops the retry loop between attempts.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryWithData(op, policy)
}
