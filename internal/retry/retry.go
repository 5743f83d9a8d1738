// Package retry runs an operation under a bounded attempt ceiling with a
// linear backoff (base delay × attempt number) between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Policy bounds a retried operation. Zero values take the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// linearBackOff waits base, 2×base, 3×base, ... between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Do calls op until it succeeds, returns an error rejected by retryable, or
// the attempt ceiling is reached. It returns the number of attempts made and
// the last error. The wait between attempts is interrupted by ctx; op itself
// is not.
func Do(
	ctx context.Context,
	policy Policy,
	retryable func(error) bool,
	op func(attempt int) error,
	notify func(attempt int, err error, wait time.Duration),
) (int, error) {
	policy = policy.withDefaults()

	attempts := 0
	operation := func() error {
		attempts++
		err := op(attempts)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: policy.BaseDelay}, uint64(policy.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, err, wait)
		}
	})
	return attempts, err
}
