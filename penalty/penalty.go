/*
Package penalty implements the compound-monthly penalty engine
(spec §4.3): a pure function from a bill's stored base/paid amounts and
its due date to an accrued-penalty amount as of some instant. This
package only computes; the pass that writes recomputed penalties back
to the store is billing.PenaltyRefresher.

Grounded on the teacher's generic/accrual.go (AccrualSchedule as a pure
function of a time range, with a documented deterministic/
non-deterministic split) and money.CompoundFactor for the exponentiation.
The open question recorded in the expanded spec is resolved here:
compounding is monthly, never simple-interest, matching the newest
engine in the original source.
*/
package penalty

import (
	"github.com/shopspring/decimal"

	"github.com/condomx/billing-core/money"
)

// Input is the minimal, store-agnostic view the engine needs. Keeping
// this independent of package billing's document types avoids an
// import cycle (billing calls into penalty, not the reverse) and
// keeps the engine trivially unit-testable against literal numbers,
// matching the spec's scenario-literal style (S3, S4).
type Input struct {
	CurrentCharge money.Money
	BasePaid      money.Money
	PenaltyPaid   money.Money
	// StoredPenaltyAmount is the bill entry's currently persisted
	// PenaltyAmount (spec §4.3 step 1 input "penaltyAmount-stored"):
	// once BasePaid fully covers CurrentCharge, accrual stops and no
	// further time-based recomputation happens, so this is the floor
	// under what's still owed rather than a bare PenaltyPaid.
	StoredPenaltyAmount money.Money
	DueDate             string // ISO date
	PenaltyRate         string // decimal string, e.g. "0.05"
}

// Accrued computes the penalty owed as of asOfDate, per spec §4.3's
// five-step algorithm. It never returns less than PenaltyPaid, and
// once the base is fully paid it never forgives whatever was already
// accrued (StoredPenaltyAmount), so downstream writers can safely
// treat the result as the new PenaltyAmount without checking for a
// backwards step.
func Accrued(in Input, asOfDate string) (money.Money, error) {
	if in.BasePaid >= in.CurrentCharge {
		// Base fully paid: accrual stops, but whatever already accrued
		// remains due until PenaltyPaid catches up. The stored figure
		// is the source of truth here (no time-based recomputation
		// happens in this branch), so it must never be forgiven down
		// to a bare PenaltyPaid.
		return in.StoredPenaltyAmount.Max(in.PenaltyPaid), nil
	}

	due, err := money.ParseISODate(in.DueDate)
	if err != nil {
		return 0, err
	}
	asOf, err := money.ParseISODate(asOfDate)
	if err != nil {
		return 0, err
	}
	monthsLate := money.FullMonthsLate(due, asOf)
	if monthsLate <= 0 {
		return in.PenaltyPaid, nil
	}

	rate, err := decimal.NewFromString(in.PenaltyRate)
	if err != nil {
		return 0, err
	}
	unpaidBase := in.CurrentCharge.Sub(in.BasePaid)
	factor := money.CompoundFactor(rate, monthsLate)
	accrued := money.MulRate(unpaidBase, factor)
	if accrued < in.PenaltyPaid {
		return in.PenaltyPaid, nil
	}
	return accrued, nil
}
