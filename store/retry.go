package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/condomx/billing-core/coreerr"
)

// RetryPolicy configures WithRetry's exponential backoff (spec §4.1).
// WithRetry is a helper a caller opts into: store/sqlite and
// store/memtest do not wrap their own operations in it, so their
// operations are not retried automatically. Default 3 attempts, starting at
// 1s, factor 2, applied only to Transient errors. Conflict and
// Permanent propagate immediately — retrying a Conflict is the
// distributor's job (it reloads and replans), not the store's.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy matches spec §4.1 exactly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		Multiplier:      2,
	}
}

// WithRetry wraps a store operation with the policy's exponential
// backoff, retrying only on Transient errors.
func WithRetry(ctx context.Context, policy RetryPolicy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.Multiplier = policy.Multiplier
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall-clock

	attempts := 0
	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if !coreerr.IsRetryableAtStore(err) {
			return backoff.Permanent(err)
		}
		if attempts >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
}
