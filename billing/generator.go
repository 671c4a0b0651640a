/*
Bill Generator (spec §4.4): materializes a new Bill Period Document
from a reading/roster document and the current configuration,
freezing the configuration into the document at generation time.

Grounded on the teacher's factory/policy.go (constructing a frozen
policy snapshot at assignment time) and generic/period.go (period
bookkeeping), generalized from a vacation-policy snapshot to a
billing-config snapshot.
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
)

// GenerateInput bundles the Bill Generator's per-call arguments.
type GenerateInput struct {
	ClientID string
	Module   Module
	PeriodID string
	BillDate string // ISO
	Config   ConfigSnapshot
	Force    bool
}

// Generator implements spec §4.4.
type Generator struct {
	Store store.Store
	Clock money.Clock
	Audit audit.Sink
}

func NewGenerator(s store.Store, clock money.Clock) *Generator {
	return &Generator{Store: s, Clock: clock, Audit: audit.NewStoreSink(s)}
}

// SubmitReadings stores the externally sourced reading/roster document
// for a period (spec §6.1 "Submit readings"). Readings may be
// resubmitted freely up until the period is billed; Generate is what
// enforces the Conflict-if-already-billed rule.
func (g *Generator) SubmitReadings(ctx context.Context, clientID string, module Module, periodID string, units map[string]ReadingEntry) (ReadingDocument, error) {
	doc := ReadingDocument{ClientID: clientID, Module: module, PeriodID: periodID, Units: units}
	if err := g.Store.Set(ctx, store.Path(readingPath(clientID, module, periodID)), doc, store.SetOptions{}); err != nil {
		return ReadingDocument{}, err
	}
	return doc, nil
}

// Generate reads the period's reading document and writes a new Bill
// Period Document, atomically, or fails with Conflict if one already
// exists and Force is false.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (BillPeriod, error) {
	billPath := store.Path(billPath(in.ClientID, in.Module, in.PeriodID))

	var existing BillPeriod
	exists, err := g.Store.Get(ctx, billPath, &existing)
	if err != nil {
		return BillPeriod{}, err
	}
	if exists && !in.Force {
		return BillPeriod{}, store.ConflictError(billPath)
	}

	var reading ReadingDocument
	readingExists, err := g.Store.Get(ctx, store.Path(readingPath(in.ClientID, in.Module, in.PeriodID)), &reading)
	if err != nil {
		return BillPeriod{}, err
	}
	if !readingExists {
		return BillPeriod{}, coreerr.New(coreerr.NotFound, "reading document missing for period "+in.PeriodID)
	}

	dueDate, err := addGraceDays(in.BillDate, in.Config.GraceDays)
	if err != nil {
		return BillPeriod{}, err
	}

	bill := BillPeriod{
		ClientID:       in.ClientID,
		Module:         in.Module,
		PeriodID:       in.PeriodID,
		BillDate:       in.BillDate,
		DueDate:        dueDate,
		ConfigSnapshot: in.Config,
		Units:          map[string]UnitBillEntry{},
		Generated:      true,
	}

	for unitID, r := range reading.Units {
		entry, err := g.buildUnitEntry(in, r)
		if err != nil {
			return BillPeriod{}, err
		}
		bill.Units[unitID] = entry
	}

	if err := g.Store.Set(ctx, billPath, bill, store.SetOptions{}); err != nil {
		return BillPeriod{}, err
	}

	if err := g.Audit.Append(ctx, audit.Entry{
		ID: uuid.NewString(), At: g.Clock.Now().Format(time.RFC3339), ActorID: "system",
		Action: audit.ActionBillGenerated, ClientID: in.ClientID, ProjectID: string(in.Module), PeriodID: in.PeriodID,
		Payload: map[string]any{"unitCount": len(bill.Units)},
	}); err != nil {
		return BillPeriod{}, err
	}
	return bill, nil
}

func (g *Generator) buildUnitEntry(in GenerateInput, r ReadingEntry) (UnitBillEntry, error) {
	entry := UnitBillEntry{Status: StatusUnpaid}

	switch in.Module {
	case ModuleWater:
		if r.CurrentReading == nil {
			return UnitBillEntry{}, coreerr.New(coreerr.Validation, "water reading missing currentReading")
		}
		prior := int64(0)
		if r.PriorReading != nil {
			prior = *r.PriorReading
		}
		entry.PriorReading = &prior
		entry.CurrentReading = r.CurrentReading
		consumption := *r.CurrentReading - prior
		entry.Consumption = &consumption
		if consumption < 0 {
			// Rollover is not auto-handled; flag for operator correction
			// and stop generation for this unit only (spec §4.4).
			entry.NeedsReview = true
			return entry, nil
		}
		// ratePerM3 is already centavos-per-m3, so multiplying by a
		// plain m3 count is ordinary integer multiplication, not a
		// decimal-rate calculation.
		entry.CurrentCharge = in.Config.RatePerM3 * money.Money(consumption)
		if r.ServiceCount > 0 {
			entry.CurrentCharge = entry.CurrentCharge.Add(r.ServiceRate * money.Money(r.ServiceCount))
		}
	case ModuleHOA:
		entry.CurrentCharge = in.Config.DuesAmount
	default:
		return UnitBillEntry{}, coreerr.New(coreerr.Validation, "unknown module")
	}

	entry.Recompute()
	return entry, nil
}

func addGraceDays(billDate string, graceDays int) (string, error) {
	t, err := money.ParseISODate(billDate)
	if err != nil {
		return "", err
	}
	due := t.AddDate(0, 0, graceDays)
	return money.ISODate(due), nil
}
