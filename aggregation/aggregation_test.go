package aggregation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/aggregation"
	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
	"github.com/condomx/billing-core/store/memtest"
)

func fixedClock(t *testing.T, iso string) money.Clock {
	t.Helper()
	c, err := money.NewFixedClock(iso)
	require.NoError(t, err)
	return c
}

func seedBill(t *testing.T, s store.Store, clientID, periodID string, charge, paid money.Money, dueDate string) {
	t.Helper()
	entry := billing.UnitBillEntry{CurrentCharge: charge, BasePaid: paid}
	entry.Recompute()
	bill := billing.BillPeriod{
		ClientID: clientID, Module: billing.ModuleWater, PeriodID: periodID,
		BillDate: "2025-08-01", DueDate: dueDate, Generated: true,
		Units: map[string]billing.UnitBillEntry{"U1": entry},
	}
	require.NoError(t, s.Set(context.Background(), store.Path("clients/"+clientID+"/projects/waterBills/bills/"+periodID), bill, store.SetOptions{}))
}

func TestRebuildProjectsAllTwelveMonths(t *testing.T) {
	s := memtest.New(10)
	b := aggregation.NewBuilder(s, fixedClock(t, "2025-09-15"))
	seedBill(t, s, "acme", "2026-00", money.Money(50000), money.Money(20000), "2025-08-11")

	view, err := b.Rebuild(context.Background(), "acme", billing.ModuleWater, 2026)
	require.NoError(t, err)

	assert.Equal(t, "2026-00", view.Months[0].Period)
	unit := view.Months[0].Units["U1"]
	assert.Equal(t, money.Money(50000), unit.TotalAmount)
	assert.Equal(t, money.Money(30000), unit.UnpaidAmount)
	assert.True(t, unit.DaysPastDue > 0)

	// Unbilled months are present but empty.
	assert.Empty(t, view.Months[1].Units)
}

func TestRebuildMonthLeavesOtherMonthsUntouched(t *testing.T) {
	s := memtest.New(10)
	b := aggregation.NewBuilder(s, fixedClock(t, "2025-09-15"))
	seedBill(t, s, "acme", "2026-00", money.Money(50000), money.Money(50000), "2025-08-11")
	seedBill(t, s, "acme", "2026-01", money.Money(60000), 0, "2025-09-11")

	_, err := b.Rebuild(context.Background(), "acme", billing.ModuleWater, 2026)
	require.NoError(t, err)

	// Mutate bill 1 only, then surgically refresh just that month.
	seedBill(t, s, "acme", "2026-01", money.Money(60000), money.Money(60000), "2025-09-11")
	view, err := b.RebuildMonth(context.Background(), "acme", billing.ModuleWater, 2026, 1)
	require.NoError(t, err)

	assert.Equal(t, billing.StatusPaid, view.Months[1].Units["U1"].Status)
	// Month 0 is still the value from the original full rebuild.
	assert.Equal(t, billing.StatusPaid, view.Months[0].Units["U1"].Status)
}

func TestGetReturnsStoredViewWithoutForceRefresh(t *testing.T) {
	s := memtest.New(10)
	b := aggregation.NewBuilder(s, fixedClock(t, "2025-09-15"))
	seedBill(t, s, "acme", "2026-00", money.Money(50000), 0, "2025-08-11")

	_, err := b.Rebuild(context.Background(), "acme", billing.ModuleWater, 2026)
	require.NoError(t, err)

	// Mutate the source bill without rebuilding; Get without forceRefresh
	// should still return the stale cached view (spec §4.8: "safe because
	// the projection is rebuildable", not "always current").
	seedBill(t, s, "acme", "2026-00", money.Money(50000), money.Money(50000), "2025-08-11")
	stale, err := b.Get(context.Background(), "acme", billing.ModuleWater, 2026, false)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusUnpaid, stale.Months[0].Units["U1"].Status)

	fresh, err := b.Get(context.Background(), "acme", billing.ModuleWater, 2026, true)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, fresh.Months[0].Units["U1"].Status)
}

func TestGetRebuildsWhenMissing(t *testing.T) {
	s := memtest.New(10)
	b := aggregation.NewBuilder(s, fixedClock(t, "2025-09-15"))
	seedBill(t, s, "acme", "2026-00", money.Money(50000), 0, "2025-08-11")

	view, err := b.Get(context.Background(), "acme", billing.ModuleWater, 2026, false)
	require.NoError(t, err)
	assert.Equal(t, 2026, view.FiscalYear)
	assert.Equal(t, money.Money(50000), view.Months[0].Units["U1"].TotalAmount)
}
