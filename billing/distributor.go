/*
Payment Distributor (spec §4.5): the most algorithmically intricate
component. Applies one payment to a unit's outstanding bills
oldest-first, base-before-penalty, splitting the result between credit
usage and new overpayment, and commits the transaction plus every
mutated bill in one atomic batch. The credit-balance changes (credit
used, new overpayment) are written after that batch commits, as
separate writes outside it.

Grounded on the teacher's generic/ledger.go (append-only allocation
records feeding a derived balance) and generic/request.go (explicit
plan objects validated before commit, replacing the exception-driven
control flow the design notes call out), generalized from single-policy
day allocation to multi-bill money allocation across base/penalty
buckets.
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/penalty"
	"github.com/condomx/billing-core/store"
)

const maxPaymentCommitAttempts = 3

// PaymentInput bundles the Payment Distributor's per-call arguments
// (spec §4.5.1).
type PaymentInput struct {
	ClientID      string
	UnitID        string
	Module        Module
	Amount        money.Money
	PaymentDate   string // ISO; may be backdated
	AccountID     string
	PaymentMethod string
	Notes         string
}

// PaymentResult is returned after a successful commit.
type PaymentResult struct {
	TransactionID    string
	Allocations      []AllocationRecord
	NewCreditBalance money.Money
}

// Distributor implements spec §4.5.
type Distributor struct {
	Store  store.Store
	Clock  money.Clock
	Credit *CreditService
	Audit  audit.Sink
}

func NewDistributor(s store.Store, clock money.Clock, credit *CreditService) *Distributor {
	return &Distributor{Store: s, Clock: clock, Credit: credit, Audit: audit.NewStoreSink(s)}
}

// billView is the distributor's working copy of one unpaid bill: the
// path it lives at, the persisted entry, and the virtual (as-of
// paymentDate) owed amounts used only for allocation math.
type billView struct {
	path                store.Path
	periodID            string
	bill                BillPeriod
	entry               UnitBillEntry
	virtualOwedBase     money.Money
	virtualOwedPenalty  money.Money
	virtualPenaltyTotal money.Money // penalty.Accrued as of paymentDate, not "now"
}

func (d *Distributor) loadUnpaidBills(ctx context.Context, clientID string, module Module, unitID, paymentDate string) ([]billView, error) {
	project := projectName(module)
	collection := store.Path("clients/" + clientID + "/projects/" + project + "/bills")
	listing, err := d.Store.List(ctx, collection, store.ListOptions{})
	if err != nil {
		return nil, err
	}

	var views []billView
	for _, p := range listing.Paths {
		var bill BillPeriod
		exists, err := d.Store.Get(ctx, p, &bill)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		entry, ok := bill.Units[unitID]
		if !ok || entry.Status == StatusPaid {
			continue
		}

		virtualPenalty := entry.PenaltyAmount
		vp, err := penalty.Accrued(penalty.Input{
			CurrentCharge:       entry.CurrentCharge,
			BasePaid:            entry.BasePaid,
			PenaltyPaid:         entry.PenaltyPaid,
			StoredPenaltyAmount: entry.PenaltyAmount,
			DueDate:             bill.DueDate,
			PenaltyRate:         bill.ConfigSnapshot.PenaltyRate,
		}, paymentDate)
		if err == nil {
			virtualPenalty = vp
		}

		views = append(views, billView{
			path:                p,
			periodID:            bill.PeriodID,
			bill:                bill,
			entry:               entry,
			virtualOwedBase:     entry.CurrentCharge.Sub(entry.BasePaid),
			virtualOwedPenalty:  virtualPenalty.Sub(entry.PenaltyPaid),
			virtualPenaltyTotal: virtualPenalty,
		})
	}

	sort.Slice(views, func(i, j int) bool { return views[i].periodID < views[j].periodID })
	return views, nil
}

// Distribute applies in.Amount to the unit's outstanding bills and
// commits the result atomically, retrying on Conflict up to
// maxPaymentCommitAttempts times, re-loading bills and credit on each
// attempt (spec §4.5.8).
func (d *Distributor) Distribute(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if in.Amount <= 0 {
		return PaymentResult{}, coreerr.New(coreerr.Validation, "payment amount must be positive")
	}

	var lastErr error
	for attempt := 0; attempt < maxPaymentCommitAttempts; attempt++ {
		result, err := d.attemptOnce(ctx, in)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !coreerr.Is(err, coreerr.Conflict) {
			return PaymentResult{}, err
		}
	}
	return PaymentResult{}, coreerr.Wrap(coreerr.Conflict, "payment conflict after retries", lastErr)
}

func (d *Distributor) attemptOnce(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	views, err := d.loadUnpaidBills(ctx, in.ClientID, in.Module, in.UnitID, in.PaymentDate)
	if err != nil {
		return PaymentResult{}, err
	}
	credit, err := d.Credit.GetBalance(ctx, in.ClientID, in.UnitID)
	if err != nil {
		return PaymentResult{}, err
	}

	var totalBillsDue money.Money
	for _, v := range views {
		totalBillsDue = totalBillsDue.Add(v.virtualOwedBase).Add(v.virtualOwedPenalty)
	}

	var creditUsed, newOverpayment money.Money
	if in.Amount >= totalBillsDue {
		newOverpayment = in.Amount.Sub(totalBillsDue)
	} else {
		shortfall := totalBillsDue.Sub(in.Amount)
		creditUsed = shortfall.Min(credit.Balance)
	}
	newCreditBalance := (credit.Balance.Add(in.Amount).Sub(totalBillsDue)).Max(0)

	transactionID := uuid.NewString()
	pool := in.Amount.Add(credit.Balance)
	var allocations []AllocationRecord
	var mutatedBills []billView

	for i := range views {
		v := &views[i]
		if pool <= 0 {
			break
		}
		applyBase := v.virtualOwedBase.Min(pool)
		if applyBase > 0 {
			v.entry.BasePaid = v.entry.BasePaid.Add(applyBase)
			pool = pool.Sub(applyBase)
			allocations = append(allocations, AllocationRecord{
				TargetModule: string(in.Module), BillPeriodID: v.periodID, Target: "base", Amount: applyBase,
			})
		}
		applyPenalty := v.virtualOwedPenalty.Min(pool)
		if applyPenalty > 0 {
			v.entry.PenaltyPaid = v.entry.PenaltyPaid.Add(applyPenalty)
			pool = pool.Sub(applyPenalty)
			allocations = append(allocations, AllocationRecord{
				TargetModule: string(in.Module), BillPeriodID: v.periodID, Target: "penalty", Amount: applyPenalty,
			})
		}
		if applyBase > 0 || applyPenalty > 0 {
			v.entry.Payments = append(v.entry.Payments, PaymentAllocation{
				TransactionID: transactionID, Base: applyBase, Penalty: applyPenalty, Timestamp: in.PaymentDate,
			})
			// A backdated payment is checked against the virtual (as-of
			// paymentDate) penalty, which can be lower than the stored,
			// still-compounding PenaltyAmount. Once this payment fully
			// settles both buckets as of paymentDate, cap the stored
			// PenaltyAmount down to what was actually owed then, so
			// Recompute derives paid == total instead of leaving a
			// phantom balance against a penalty that never really
			// continued accruing past settlement.
			if v.entry.BasePaid >= v.entry.CurrentCharge && v.entry.PenaltyPaid >= v.virtualPenaltyTotal {
				v.entry.PenaltyAmount = v.virtualPenaltyTotal
			}
			v.entry.Recompute()
			mutatedBills = append(mutatedBills, *v)
		}
	}

	if creditUsed > 0 {
		allocations = append(allocations, AllocationRecord{CategoryID: "account-credit", Amount: creditUsed.Neg()})
	}
	if newOverpayment > 0 {
		allocations = append(allocations, AllocationRecord{CategoryID: "account-credit", Amount: newOverpayment})
	}

	if err := validateAllocationSum(allocations, in.Amount); err != nil {
		return PaymentResult{}, err
	}

	tx := Transaction{
		ID: transactionID, ClientID: in.ClientID, Date: in.PaymentDate, Amount: in.Amount,
		Type: "income", UnitID: in.UnitID, Module: in.Module,
		AccountID: in.AccountID, PaymentMethod: in.PaymentMethod, Notes: in.Notes,
		Allocations: allocations,
	}

	batch := d.Store.Batch()
	batch.Set(store.Path("clients/"+in.ClientID+"/transactions/"+transactionID), tx, store.SetOptions{})
	for _, v := range mutatedBills {
		v.bill.Units[in.UnitID] = v.entry
		batch.Set(v.path, v.bill, store.SetOptions{})
	}
	if err := batch.Commit(ctx); err != nil {
		return PaymentResult{}, err
	}

	// Credit history/balance mutation is applied after the batch
	// commits, mirroring the teacher's separation of ledger append
	// from balance projection; ApplyChange itself is a single
	// document write, already atomic.
	if creditUsed > 0 {
		billNames := billNamesOf(mutatedBills)
		if _, err := d.Credit.ApplyChange(ctx, in.ClientID, in.UnitID, creditUsed.Neg(), CreditUsed, transactionID, "applied to "+billNames); err != nil {
			return PaymentResult{}, err
		}
	}
	if newOverpayment > 0 {
		if _, err := d.Credit.ApplyChange(ctx, in.ClientID, in.UnitID, newOverpayment, CreditAdded, transactionID, "overpayment"); err != nil {
			return PaymentResult{}, err
		}
	}

	if err := d.Audit.Append(ctx, audit.Entry{
		ID: uuid.NewString(), At: d.Clock.Now().Format(time.RFC3339), ActorID: "system",
		Action: audit.ActionPaymentApplied, ClientID: in.ClientID, ProjectID: string(in.Module),
		Payload: map[string]any{"transactionId": transactionID, "amount": audit.MoneyField(in.Amount), "unitId": in.UnitID},
	}); err != nil {
		return PaymentResult{}, err
	}

	return PaymentResult{TransactionID: transactionID, Allocations: allocations, NewCreditBalance: newCreditBalance}, nil
}

func billNamesOf(views []billView) string {
	var names string
	for i, v := range views {
		if i > 0 {
			names += ", "
		}
		names += v.periodID
	}
	return names
}

func validateAllocationSum(allocations []AllocationRecord, amount money.Money) error {
	var sum money.Money
	for _, a := range allocations {
		sum = sum.Add(a.Amount)
	}
	if sum != amount {
		return coreerr.New(coreerr.Permanent, coreerr.GenericMessage)
	}
	return nil
}
