/*
Penalty Engine refresh pass (spec §4.3 "Refresh pass"): for every
unpaid bill of a client, recompute the persisted penalty as of a given
date and rewrite it only if it changed. Invoked by the nightly
scheduler and, on demand, by read endpoints.

Grounded on the teacher's generic/accrual.go refresh-on-read pattern
(AccrualSchedule.GenerateAccruals recomputed idempotently against the
same inputs) and penalty.Accrued, the pure function this pass wraps in
a store scan.
*/
package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/penalty"
	"github.com/condomx/billing-core/store"
)

// RefreshResult summarizes one pass over a client's bills.
type RefreshResult struct {
	BillsScanned int
	BillsUpdated int
}

// PenaltyRefresher implements spec §4.3's refresh pass.
type PenaltyRefresher struct {
	Store store.Store
	Audit audit.Sink
}

func NewPenaltyRefresher(s store.Store) *PenaltyRefresher {
	return &PenaltyRefresher{Store: s, Audit: audit.NewStoreSink(s)}
}

// ListClientIDs returns every distinct client ID with at least one
// document under "clients/", for callers (the nightly scheduler) that
// need to sweep every client rather than one named client.
func ListClientIDs(ctx context.Context, s store.Store) ([]string, error) {
	listing, err := s.List(ctx, store.Path("clients"), store.ListOptions{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, p := range listing.Paths {
		rest := strings.TrimPrefix(string(p), "clients/")
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			continue
		}
		id := rest[:idx]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RefreshClient recomputes penalty for every unpaid bill across both
// modules for one client, as of asOfDate (an ISO date), writing changed
// bills back one at a time (idempotent for a given asOfDate, per spec).
func (r *PenaltyRefresher) RefreshClient(ctx context.Context, clientID, asOfDate string) (RefreshResult, error) {
	var total RefreshResult
	for _, module := range []Module{ModuleWater, ModuleHOA} {
		res, err := r.refreshModule(ctx, clientID, module, asOfDate)
		if err != nil {
			return total, err
		}
		total.BillsScanned += res.BillsScanned
		total.BillsUpdated += res.BillsUpdated
	}
	return total, nil
}

func (r *PenaltyRefresher) refreshModule(ctx context.Context, clientID string, module Module, asOfDate string) (RefreshResult, error) {
	project := projectName(module)
	collection := store.Path("clients/" + clientID + "/projects/" + project + "/bills")
	listing, err := r.Store.List(ctx, collection, store.ListOptions{})
	if err != nil {
		return RefreshResult{}, err
	}

	var result RefreshResult
	for _, p := range listing.Paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var bill BillPeriod
		exists, err := r.Store.Get(ctx, p, &bill)
		if err != nil {
			return result, err
		}
		if !exists {
			continue
		}

		changed := false
		for unitID, entry := range bill.Units {
			if entry.Status == StatusPaid {
				continue
			}
			result.BillsScanned++

			recomputed, err := penalty.Accrued(penalty.Input{
				CurrentCharge:       entry.CurrentCharge,
				BasePaid:            entry.BasePaid,
				PenaltyPaid:         entry.PenaltyPaid,
				StoredPenaltyAmount: entry.PenaltyAmount,
				DueDate:             bill.DueDate,
				PenaltyRate:         bill.ConfigSnapshot.PenaltyRate,
			}, asOfDate)
			if err != nil {
				return result, err
			}
			if recomputed == entry.PenaltyAmount {
				continue
			}

			entry.PenaltyAmount = recomputed
			entry.LastPenaltyUpdate = asOfDate
			entry.Recompute()
			bill.Units[unitID] = entry
			changed = true
		}

		if changed {
			if err := r.Store.Set(ctx, p, bill, store.SetOptions{}); err != nil {
				return result, err
			}
			result.BillsUpdated++

			at := asOfDate
			if parsed, parseErr := money.ParseISODate(asOfDate); parseErr == nil {
				at = parsed.Format(time.RFC3339)
			}
			if err := r.Audit.Append(ctx, audit.Entry{
				ID: uuid.NewString(), At: at, ActorID: "system",
				Action: audit.ActionPenaltyAccrued, ClientID: clientID, ProjectID: project, PeriodID: bill.PeriodID,
			}); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}
