/*
Package audit provides the append-only audit trail (spec §4.8): every
mutation the billing core makes is recorded as who did what, when, to
which document, alongside the action's own effects.

Adapted from the teacher's generic.AuditLog/AuditEntry (generic/store.go),
which tracks "who did what when" separately from the append-only
transaction ledger. That separation carries over unchanged: Sink here
is independent of the transaction documents under
clients/<clientID>/transactions, so a reconciliation run can
be reconstructed purely from audit entries even if downstream documents
are later corrected by reversal.
*/
package audit

import (
	"context"
	"fmt"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
)

// Action names a recorded event. Named by what happened, not by which
// module triggered it, so a single audit trail can answer "what
// happened to this client on this day" across bill generation,
// payments, penalty refreshes, and scheduler runs.
type Action string

const (
	ActionBillGenerated      Action = "bill_generated"
	ActionPaymentApplied     Action = "payment_applied"
	ActionPaymentReversed    Action = "payment_reversed"
	ActionPenaltyAccrued     Action = "penalty_accrued"
	ActionCreditIssued       Action = "credit_issued"
	ActionCreditConsumed     Action = "credit_consumed"
	ActionManualAdjustment   Action = "manual_adjustment"
	ActionSchedulerRunStart  Action = "scheduler_run_started"
	ActionSchedulerRunFinish Action = "scheduler_run_finished"
	ActionAggregationRebuilt Action = "aggregation_rebuilt"
)

// Entry is one audit record.
type Entry struct {
	ID         string            `json:"id"`
	At         string            `json:"at"` // RFC3339, from a Clock
	ActorID    string            `json:"actorId"`
	Action     Action            `json:"action"`
	ClientID   string            `json:"clientId"`
	ProjectID  string            `json:"projectId,omitempty"`
	PeriodID   string            `json:"periodId,omitempty"`
	Payload    map[string]any    `json:"payload,omitempty"`
}

// Filter narrows Query results. Nil fields are unconstrained.
type Filter struct {
	ClientID *string
	ActorID  *string
	Actions  []Action
	From     *string
	To       *string
}

// Sink is the interface the rest of the billing core depends on.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, clientID string, filter Filter) ([]Entry, error)
}

// StoreSink implements Sink atop store.Store, one entry per path under
// clients/<clientID>/audit/<entryID>.
type StoreSink struct {
	s store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{s: s}
}

func (a *StoreSink) Append(ctx context.Context, entry Entry) error {
	if entry.ClientID == "" {
		return coreerr.New(coreerr.Validation, "audit entry requires a client id")
	}
	if entry.ID == "" {
		return coreerr.New(coreerr.Validation, "audit entry requires an id")
	}
	path := store.Path(fmt.Sprintf("clients/%s/audit/%s", entry.ClientID, entry.ID))
	return a.s.Set(ctx, path, entry, store.SetOptions{})
}

func (a *StoreSink) Query(ctx context.Context, clientID string, filter Filter) ([]Entry, error) {
	collection := store.Path(fmt.Sprintf("clients/%s/audit", clientID))
	var all []Entry
	if err := a.s.Query(ctx, collection, nil, store.QueryOptions{OrderBy: "at"}, &all); err != nil {
		return nil, err
	}

	out := all[:0]
	for _, e := range all {
		if !matches(e, filter) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func matches(e Entry, f Filter) bool {
	if f.ClientID != nil && e.ClientID != *f.ClientID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.At < *f.From {
		return false
	}
	if f.To != nil && e.At > *f.To {
		return false
	}
	return true
}

// MoneyField converts a money.Money into a JSON-safe payload value
// (integer centavos), since audit payloads travel as map[string]any.
func MoneyField(m money.Money) int64 {
	return int64(m)
}
