package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/store"
)

func TestPoolTryAcquireExhausted(t *testing.T) {
	p := store.NewPool(1)
	h, err := p.TryAcquire()
	require.NoError(t, err)

	_, err = p.TryAcquire()
	assert.Error(t, err)

	h.Release()
	h2, err := p.TryAcquire()
	require.NoError(t, err)
	h2.Release()
}

func TestPoolAcquireBlocksUntilContextDone(t *testing.T) {
	p := store.NewPool(1)
	h, err := p.TryAcquire()
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	assert.Error(t, err)
}
