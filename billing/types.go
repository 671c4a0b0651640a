/*
Package billing implements the core state machine: bill generation,
penalty accrual, payment distribution, and credit balance tracking.
Its document shapes are deliberately explicit tagged structs rather
than the loosely-typed record maps the teacher's original source
(pre-generic.go rewrite) used — every reader goes through these types,
and an unexpected shape fails with a Validation error at the store
boundary (coreerr.Validation) instead of being silently coerced.

Grounded on the teacher's generic/types.go (EntityID/PolicyID/TimePoint
newtypes, strict small value types) and generic/ledger.go (bill-like
accumulation over an append-only transaction log), generalized from
time-off balances to money balances.
*/
package billing

import "github.com/condomx/billing-core/money"

// Module distinguishes the two concrete billing lines this core
// serves; the distributor and bill generator treat both uniformly.
type Module string

const (
	ModuleWater Module = "water"
	ModuleHOA   Module = "hoa"
)

// Status derives from paid vs total on a Unit Bill Entry.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// DeriveStatus implements the spec's status derivation rule:
// status=paid iff paidAmount == totalAmount.
func DeriveStatus(paid, total money.Money) Status {
	switch {
	case paid >= total:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// ConfigSnapshot is frozen into every bill period document at
// generation time (spec §4.4); once written it is never mutated, so
// every payment operation can assert it is byte-identical before and
// after (spec §8 "Config freeze" invariant).
type ConfigSnapshot struct {
	RatePerM3       money.Money `json:"ratePerM3,omitempty"` // water only
	DuesAmount      money.Money `json:"duesAmount,omitempty"` // hoa only
	PenaltyRate     string      `json:"penaltyRate"`          // decimal string, e.g. "0.05"
	GraceDays       int         `json:"graceDays"`
	Currency        string      `json:"currency"`
	FiscalStartMonth int        `json:"fiscalStartMonth"`
}

// PaymentAllocation records one allocation of a transaction against a
// single bill's base or penalty bucket.
type PaymentAllocation struct {
	TransactionID string      `json:"transactionId"`
	Base          money.Money `json:"base"`
	Penalty       money.Money `json:"penalty"`
	Timestamp     string      `json:"timestamp"` // ISO date, paymentDate
}

// UnitBillEntry is one unit's line inside a Bill Period Document.
type UnitBillEntry struct {
	PriorReading   *int64 `json:"priorReading,omitempty"`
	CurrentReading *int64 `json:"currentReading,omitempty"`
	Consumption    *int64 `json:"consumption,omitempty"`

	CurrentCharge money.Money `json:"currentCharge"`
	PenaltyAmount money.Money `json:"penaltyAmount"`
	TotalAmount   money.Money `json:"totalAmount"`

	PaidAmount    money.Money `json:"paidAmount"`
	BasePaid      money.Money `json:"basePaid"`
	PenaltyPaid   money.Money `json:"penaltyPaid"`

	Status Status `json:"status"`

	Payments []PaymentAllocation `json:"payments,omitempty"`

	LastPenaltyUpdate string `json:"lastPenaltyUpdate,omitempty"`
	NeedsReview       bool   `json:"needsReview,omitempty"`
}

// Recompute refreshes TotalAmount and Status from the entry's own
// fields. Callers must call this after any field mutation; kept
// separate from the setters so bulk mutation (e.g. penalty refresh)
// can batch several field writes before a single recompute.
func (u *UnitBillEntry) Recompute() {
	u.TotalAmount = u.CurrentCharge.Add(u.PenaltyAmount)
	u.PaidAmount = u.BasePaid.Add(u.PenaltyPaid)
	u.Status = DeriveStatus(u.PaidAmount, u.TotalAmount)
}

// BillPeriod is the Bill Period Document: one per (client, module,
// periodId).
type BillPeriod struct {
	ClientID  string `json:"clientId"`
	Module    Module `json:"module"`
	PeriodID  string `json:"periodId"`
	BillDate  string `json:"billDate"`
	DueDate   string `json:"dueDate"`

	ConfigSnapshot ConfigSnapshot           `json:"configSnapshot"`
	Units          map[string]UnitBillEntry `json:"units"`

	Generated bool `json:"generated"`
}

// Path returns this bill's canonical store path (spec §6.2).
func (b BillPeriod) Path() string {
	return billPath(b.ClientID, b.Module, b.PeriodID)
}

func billPath(clientID string, module Module, periodID string) string {
	projectName := projectName(module)
	return "clients/" + clientID + "/projects/" + projectName + "/bills/" + periodID
}

func readingPath(clientID string, module Module, periodID string) string {
	projectName := projectName(module)
	return "clients/" + clientID + "/projects/" + projectName + "/readings/" + periodID
}

func aggregatedPath(clientID string, module Module, fiscalYear int) string {
	projectName := projectName(module)
	return "clients/" + clientID + "/projects/" + projectName + "/aggregatedData/" + itoa(fiscalYear)
}

func projectName(module Module) string {
	switch module {
	case ModuleWater:
		return "waterBills"
	case ModuleHOA:
		return "hoaDues"
	default:
		return string(module)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ReadingEntry is one unit's meter/roster line for a period. Prior
// and current readings both arrive from the externally sourced import
// (spec §3 "Ownership & lifecycles": reading documents are read-only
// to the billing core), so the generator never has to look up a
// previous period's bill to find the prior reading.
type ReadingEntry struct {
	PriorReading   *int64      `json:"priorReading,omitempty"`
	CurrentReading *int64      `json:"currentReading,omitempty"`
	ServiceCount   int64       `json:"serviceCount,omitempty"` // e.g. car-wash count
	ServiceRate    money.Money `json:"serviceRate,omitempty"`
}

// ReadingDocument is externally sourced (inbound from CLI/import) and
// read-only to the billing core (spec §3 "Ownership & lifecycles").
type ReadingDocument struct {
	ClientID string                  `json:"clientId"`
	Module   Module                  `json:"module"`
	PeriodID string                  `json:"periodId"`
	Units    map[string]ReadingEntry `json:"units"`
}

// Transaction is the Transaction Record (spec §3).
type Transaction struct {
	ID            string       `json:"id"`
	ClientID      string       `json:"clientId"`
	Date          string       `json:"date"` // ISO, noon-anchored
	Amount        money.Money  `json:"amount"`
	Type          string       `json:"type"` // "income" | "expense"
	UnitID        string       `json:"unitId"`
	Module        Module       `json:"module"`
	AccountID     string       `json:"accountId,omitempty"`
	PaymentMethod string       `json:"paymentMethod,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	Allocations   []AllocationRecord `json:"allocations"`
	ReversedAt    string       `json:"reversedAt,omitempty"`
}

// AllocationRecord is one line of a Transaction's allocations list.
type AllocationRecord struct {
	TargetModule string      `json:"targetModule"`
	BillPeriodID string      `json:"billPeriodId,omitempty"`
	CategoryID   string      `json:"categoryId,omitempty"`
	Target       string      `json:"target,omitempty"` // "base" | "penalty" | ""
	Amount       money.Money `json:"amount"`
}
