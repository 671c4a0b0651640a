package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store/memtest"
)

func TestRefreshClientUpdatesStalePenalty(t *testing.T) {
	s := memtest.New(10)
	seedBill(t, s, "acme", "2026-00", money.Money(200000), 0, 0, 0, "2025-08-10", "0.05")

	refresher := billing.NewPenaltyRefresher(s)
	result, err := refresher.RefreshClient(context.Background(), "acme", "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, 1, result.BillsUpdated)

	bill := getBill(t, s, "acme", "2026-00")
	assert.Equal(t, money.Money(31525), bill.Units["U1"].PenaltyAmount)
	assert.Equal(t, "2025-11-10", bill.Units["U1"].LastPenaltyUpdate)
}

func TestRefreshClientIsIdempotent(t *testing.T) {
	s := memtest.New(10)
	seedBill(t, s, "acme", "2026-00", money.Money(200000), 0, 0, 0, "2025-08-10", "0.05")

	refresher := billing.NewPenaltyRefresher(s)
	ctx := context.Background()
	_, err := refresher.RefreshClient(ctx, "acme", "2025-11-10")
	require.NoError(t, err)

	second, err := refresher.RefreshClient(ctx, "acme", "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, 0, second.BillsUpdated)
}

func TestRefreshClientSkipsPaidBills(t *testing.T) {
	s := memtest.New(10)
	seedBill(t, s, "acme", "2026-00", money.Money(200000), 0, money.Money(200000), 0, "2025-08-10", "0.05")

	refresher := billing.NewPenaltyRefresher(s)
	result, err := refresher.RefreshClient(context.Background(), "acme", "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, 0, result.BillsScanned)
}
