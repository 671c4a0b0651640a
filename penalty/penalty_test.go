package penalty_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/penalty"
)

func TestAccruedCompoundsThreeMonthsLate(t *testing.T) {
	in := penalty.Input{
		CurrentCharge: money.Money(200000),
		BasePaid:      0,
		PenaltyPaid:   0,
		DueDate:       "2025-08-10",
		PenaltyRate:   "0.05",
	}
	accrued, err := penalty.Accrued(in, "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, money.Money(31525), accrued)
}

func TestAccruedBackdatedTwoMonthsLate(t *testing.T) {
	in := penalty.Input{
		CurrentCharge: money.Money(200000),
		BasePaid:      0,
		PenaltyPaid:   0,
		DueDate:       "2025-08-10",
		PenaltyRate:   "0.05",
	}
	accrued, err := penalty.Accrued(in, "2025-10-10")
	require.NoError(t, err)
	assert.Equal(t, money.Money(20500), accrued)
}

func TestAccruedStopsOnceBaseFullyPaid(t *testing.T) {
	in := penalty.Input{
		CurrentCharge: money.Money(90000),
		BasePaid:      money.Money(90000),
		PenaltyPaid:   money.Money(1500),
		DueDate:       "2025-08-10",
		PenaltyRate:   "0.05",
	}
	accrued, err := penalty.Accrued(in, "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, money.Money(1500), accrued, "accrual stops once base is fully paid")
}

func TestAccruedStoppedBaseNeverForgivesStoredPenalty(t *testing.T) {
	// Refresh pass re-running after a payment settled the base but
	// only partially paid penalty: the stored figure, not PenaltyPaid
	// alone, is what's still owed.
	in := penalty.Input{
		CurrentCharge:       money.Money(200000),
		BasePaid:            money.Money(200000),
		PenaltyPaid:         money.Money(20500),
		StoredPenaltyAmount: money.Money(31525),
		DueDate:             "2025-08-10",
		PenaltyRate:         "0.05",
	}
	accrued, err := penalty.Accrued(in, "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, money.Money(31525), accrued, "stored penalty must not be forgiven once base is settled")
}

func TestAccruedWithinGraceIsZero(t *testing.T) {
	in := penalty.Input{
		CurrentCharge: money.Money(90000),
		BasePaid:      0,
		PenaltyPaid:   0,
		DueDate:       "2025-08-10",
		PenaltyRate:   "0.05",
	}
	accrued, err := penalty.Accrued(in, "2025-08-20")
	require.NoError(t, err)
	assert.Equal(t, money.Money(0), accrued)
}

func TestAccruedIsDeterministic(t *testing.T) {
	in := penalty.Input{
		CurrentCharge: money.Money(123456),
		BasePaid:      money.Money(1000),
		DueDate:       "2025-01-01",
		PenaltyRate:   "0.03",
	}
	a, err := penalty.Accrued(in, "2025-06-01")
	require.NoError(t, err)
	b, err := penalty.Accrued(in, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
