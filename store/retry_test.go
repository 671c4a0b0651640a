package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/store"
)

func TestWithRetryRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := store.WithRetry(context.Background(), store.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 1,
		Multiplier:      1,
	}, func() error {
		attempts++
		if attempts < 2 {
			return coreerr.New(coreerr.Transient, "hiccup")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := store.WithRetry(context.Background(), store.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 1,
		Multiplier:      1,
	}, func() error {
		attempts++
		return coreerr.New(coreerr.Transient, "still down")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryNeverRetriesConflict(t *testing.T) {
	attempts := 0
	err := store.WithRetry(context.Background(), store.DefaultRetryPolicy(), func() error {
		attempts++
		return coreerr.New(coreerr.Conflict, "optimistic lock failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
