package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
)

// ReversalResult is returned by Reverse.
type ReversalResult struct {
	TransactionID    string
	EntriesDeleted   int
	NewCreditBalance money.Money
	AlreadyReversed  bool
}

// Reverse undoes a committed payment (spec §4.5.9): subtracts the
// transaction's allocations from the affected bills, recomputes
// status, drops the payment record, and appends a reversal
// credit-history entry mirroring whatever the original payment did to
// the credit balance. Idempotent: a transaction already marked
// reversed returns AlreadyReversed=true without mutating anything
// further.
func (d *Distributor) Reverse(ctx context.Context, clientID, transactionID string) (ReversalResult, error) {
	txPath := store.Path("clients/" + clientID + "/transactions/" + transactionID)
	var tx Transaction
	exists, err := d.Store.Get(ctx, txPath, &tx)
	if err != nil {
		return ReversalResult{}, err
	}
	if !exists {
		return ReversalResult{}, coreerr.New(coreerr.NotFound, "transaction not found: "+transactionID)
	}
	if tx.ReversedAt != "" {
		return ReversalResult{TransactionID: transactionID, AlreadyReversed: true}, nil
	}

	project := projectName(tx.Module)
	batch := d.Store.Batch()

	bills := map[string]*BillPeriod{}
	for _, a := range tx.Allocations {
		if a.BillPeriodID == "" {
			continue // the account-credit line; handled via credit reversal below
		}
		billPath := store.Path("clients/" + clientID + "/projects/" + project + "/bills/" + a.BillPeriodID)
		bill, seen := bills[a.BillPeriodID]
		if !seen {
			bill = &BillPeriod{}
			billExists, err := d.Store.Get(ctx, billPath, bill)
			if err != nil {
				return ReversalResult{}, err
			}
			if !billExists {
				continue
			}
			bills[a.BillPeriodID] = bill
		}
		entry := bill.Units[tx.UnitID]
		switch a.Target {
		case "base":
			entry.BasePaid = entry.BasePaid.Sub(a.Amount)
		case "penalty":
			entry.PenaltyPaid = entry.PenaltyPaid.Sub(a.Amount)
		}
		entry.Payments = removePaymentRecord(entry.Payments, transactionID)
		entry.Recompute()
		bill.Units[tx.UnitID] = entry
		batch.Set(billPath, *bill, store.SetOptions{})
	}

	tx.ReversedAt = d.nowISO()
	batch.Set(txPath, tx, store.SetOptions{})

	if err := batch.Commit(ctx); err != nil {
		return ReversalResult{}, err
	}

	// Mirror image of whatever credit-history entries the original
	// payment appended: credit_used is returned (positive), credit_added
	// is withdrawn (negative) — spec §4.5.9's "amount = +creditUsed −
	// newOverpayment".
	unit, err := d.Credit.GetBalance(ctx, clientID, tx.UnitID)
	if err != nil {
		return ReversalResult{}, err
	}
	var mirror money.Money
	for _, h := range unit.History {
		if h.TransactionID == transactionID {
			mirror = mirror.Sub(h.Amount)
		}
	}

	newBalance := unit.Balance
	if mirror != 0 {
		newBalance, err = d.Credit.ApplyChange(ctx, clientID, tx.UnitID, mirror, CreditReversal, transactionID+"_reversal", "reversal of "+transactionID)
		if err != nil {
			return ReversalResult{}, err
		}
	}

	if err := d.Audit.Append(ctx, audit.Entry{
		ID: uuid.NewString(), At: d.nowISO(), ActorID: "system",
		Action: audit.ActionPaymentReversed, ClientID: clientID, ProjectID: string(tx.Module),
		Payload: map[string]any{"transactionId": transactionID},
	}); err != nil {
		return ReversalResult{}, err
	}

	return ReversalResult{TransactionID: transactionID, EntriesDeleted: 1, NewCreditBalance: newBalance}, nil
}

func (d *Distributor) nowISO() string {
	return d.Clock.Now().Format("2006-01-02T15:04:05Z07:00")
}

func removePaymentRecord(payments []PaymentAllocation, transactionID string) []PaymentAllocation {
	out := payments[:0]
	for _, p := range payments {
		if p.TransactionID == transactionID {
			continue
		}
		out = append(out, p)
	}
	return out
}
