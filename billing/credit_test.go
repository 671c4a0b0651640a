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

func fixedClock(t *testing.T, iso string) money.Clock {
	t.Helper()
	c, err := money.NewFixedClock(iso)
	require.NoError(t, err)
	return c
}

func TestApplyChangeAddsHistoryAndBalance(t *testing.T) {
	s := memtest.New(10)
	svc := billing.NewCreditService(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	bal, err := svc.ApplyChange(ctx, "acme", "U1", money.Money(10000), billing.CreditAdded, "tx1", "overpayment")
	require.NoError(t, err)
	assert.Equal(t, money.Money(10000), bal)

	unit, err := svc.GetBalance(ctx, "acme", "U1")
	require.NoError(t, err)
	require.Len(t, unit.History, 1)
	assert.Equal(t, billing.CreditAdded, unit.History[0].Type)
	assert.Equal(t, money.Money(10000), unit.History[0].BalanceAfter)
}

func TestApplyChangeRejectsNegativeBalance(t *testing.T) {
	s := memtest.New(10)
	svc := billing.NewCreditService(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	_, err := svc.ApplyChange(ctx, "acme", "U1", money.Money(-500), billing.CreditUsed, "tx1", "")
	assert.Error(t, err)
}

func TestDeleteEntriesForReversesBalance(t *testing.T) {
	s := memtest.New(10)
	svc := billing.NewCreditService(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	_, err := svc.ApplyChange(ctx, "acme", "U1", money.Money(10000), billing.CreditAdded, "tx1", "")
	require.NoError(t, err)

	deleted, prevBal, newBal, err := svc.DeleteEntriesFor(ctx, "acme", "U1", "tx1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, money.Money(10000), prevBal)
	assert.Equal(t, money.Money(0), newBal)
}

func TestCheckInvariantHoldsAfterApplyChange(t *testing.T) {
	s := memtest.New(10)
	svc := billing.NewCreditService(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	_, err := svc.ApplyChange(ctx, "acme", "U1", money.Money(5000), billing.CreditAdded, "tx1", "")
	require.NoError(t, err)

	mismatches, err := svc.CheckInvariant(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, mismatches, "freshly applied change must satisfy the invariant")
}
