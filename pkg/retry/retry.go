package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a reusable retry policy: a fixed attempt ceiling with
// exponential backoff between attempts. The same policy instance is
// shared by the Voiceflow client and the classifier so the retry
// behavior is tuned in one place.
type Policy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
}

// DefaultPolicy matches the upstream rate-limit guidance: three
// attempts with a doubling delay starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Do runs op, retrying on error until the attempt ceiling is reached
// or ctx is cancelled. The last error is returned when all attempts
// fail. Wrap an error with backoff.Permanent to stop retrying early.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
}

// Permanent marks err as non-retryable for Policy.Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
