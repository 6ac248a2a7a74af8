package booking

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"chairbook/backend/internal/store"
)

// withRetry reruns fn while it fails with store.ErrTransient, up to the policy's attempt budget.
// Any other error stops immediately and is returned unchanged.
func withRetry[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if s.policy.RetryBaseDelay > 0 {
		b.InitialInterval = s.policy.RetryBaseDelay
		b.MaxInterval = 16 * s.policy.RetryBaseDelay
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			s.metrics.ObserveRetry(op)
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, store.ErrTransient) {
			return v, err
		}
		return v, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.policy.RetryAttempts)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return out, err
}
