package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
	"github.com/condomx/billing-core/store/memtest"
)

func seedReading(t *testing.T, s store.Store, clientID string, module billing.Module, periodID string, doc billing.ReadingDocument) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), readingPathFor(clientID, module, periodID), doc, store.SetOptions{}))
}

func readingPathFor(clientID string, module billing.Module, periodID string) store.Path {
	project := "waterBills"
	if module == billing.ModuleHOA {
		project = "hoaDues"
	}
	return store.Path("clients/" + clientID + "/projects/" + project + "/readings/" + periodID)
}

func TestGenerateWaterBillComputesConsumptionCharge(t *testing.T) {
	s := memtest.New(10)
	clock := fixedClock(t, "2026-01-05")
	gen := billing.NewGenerator(s, clock)
	ctx := context.Background()

	prior := int64(100)
	current := int64(150)
	seedReading(t, s, "acme", billing.ModuleWater, "2026-00", billing.ReadingDocument{
		ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00",
		Units: map[string]billing.ReadingEntry{
			"U1": {PriorReading: &prior, CurrentReading: &current},
		},
	})

	bill, err := gen.Generate(ctx, billing.GenerateInput{
		ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00",
		BillDate: "2025-08-01",
		Config:   billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10, Currency: "MXN"},
	})
	require.NoError(t, err)

	unit := bill.Units["U1"]
	assert.Equal(t, int64(50), *unit.Consumption)
	assert.Equal(t, money.Money(50000), unit.CurrentCharge)
	assert.Equal(t, billing.StatusUnpaid, unit.Status)
	assert.Equal(t, "2025-08-11", bill.DueDate)
}

func TestGenerateFlagsNegativeConsumptionForReview(t *testing.T) {
	s := memtest.New(10)
	gen := billing.NewGenerator(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	prior := int64(200)
	current := int64(150)
	seedReading(t, s, "acme", billing.ModuleWater, "2026-00", billing.ReadingDocument{
		ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00",
		Units: map[string]billing.ReadingEntry{
			"U1": {PriorReading: &prior, CurrentReading: &current},
		},
	})

	bill, err := gen.Generate(ctx, billing.GenerateInput{
		ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00",
		BillDate: "2025-08-01",
		Config:   billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10},
	})
	require.NoError(t, err)
	assert.True(t, bill.Units["U1"].NeedsReview)
}

func TestGenerateIsConflictWithoutForce(t *testing.T) {
	s := memtest.New(10)
	gen := billing.NewGenerator(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	current := int64(100)
	seedReading(t, s, "acme", billing.ModuleWater, "2026-00", billing.ReadingDocument{
		Units: map[string]billing.ReadingEntry{"U1": {CurrentReading: &current}},
	})

	cfg := billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10}
	_, err := gen.Generate(ctx, billing.GenerateInput{ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00", BillDate: "2025-08-01", Config: cfg})
	require.NoError(t, err)

	_, err = gen.Generate(ctx, billing.GenerateInput{ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00", BillDate: "2025-08-01", Config: cfg})
	assert.Error(t, err)
}

func TestGenerateForceOverwrites(t *testing.T) {
	s := memtest.New(10)
	gen := billing.NewGenerator(s, fixedClock(t, "2026-01-05"))
	ctx := context.Background()

	current := int64(100)
	seedReading(t, s, "acme", billing.ModuleWater, "2026-00", billing.ReadingDocument{
		Units: map[string]billing.ReadingEntry{"U1": {CurrentReading: &current}},
	})
	cfg := billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10}
	_, err := gen.Generate(ctx, billing.GenerateInput{ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00", BillDate: "2025-08-01", Config: cfg})
	require.NoError(t, err)

	_, err = gen.Generate(ctx, billing.GenerateInput{ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00", BillDate: "2025-08-01", Config: cfg, Force: true})
	assert.NoError(t, err)
}
