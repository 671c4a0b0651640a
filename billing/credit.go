/*
Credit Balance Service (spec §4.6): owns the single per-client credit
document, appending history entries and maintaining the running
balance per unit.

Grounded on the teacher's generic/balance.go (balance derived from an
append-only transaction log, plus a reconciliation check comparing
derived vs stored balance), generalized from a time-off day-balance to
a signed money balance with an explicit history array rather than
recomputing from the full transaction log on every read (the spec
calls for O(1) balance reads with history kept for audit, not as the
source of truth for the running number).
*/
package billing

import (
	"context"
	"fmt"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
)

// CreditHistoryType enumerates the kinds of credit-history entries.
type CreditHistoryType string

const (
	CreditStartingBalance CreditHistoryType = "starting_balance"
	CreditAdded           CreditHistoryType = "credit_added"
	CreditUsed            CreditHistoryType = "credit_used"
	CreditReversal        CreditHistoryType = "reversal"
)

// CreditHistoryEntry is one append-only entry in a unit's credit
// history.
type CreditHistoryEntry struct {
	ID            string            `json:"id"`
	Timestamp     string            `json:"timestamp"`
	Amount        money.Money       `json:"amount"` // signed
	Type          CreditHistoryType `json:"type"`
	TransactionID string            `json:"transactionId,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	BalanceAfter  money.Money       `json:"balanceAfter"`
}

// UnitCredit is one unit's slice of the Credit Balance Record.
type UnitCredit struct {
	Balance    money.Money           `json:"creditBalance"`
	LastChange string                `json:"lastChange,omitempty"`
	History    []CreditHistoryEntry `json:"history"`
}

// CreditBalanceDoc is the Credit Balance Record: one document per
// client, holding every unit (spec §3).
type CreditBalanceDoc struct {
	ClientID string                `json:"clientId"`
	Units    map[string]UnitCredit `json:"units"`
}

func creditPath(clientID string) store.Path {
	return store.Path(fmt.Sprintf("clients/%s/units/creditBalances", clientID))
}

// CreditService implements spec §4.6.
type CreditService struct {
	Store store.Store
	Clock money.Clock
}

func NewCreditService(s store.Store, clock money.Clock) *CreditService {
	return &CreditService{Store: s, Clock: clock}
}

// GetBalance returns a unit's balance and history, a zero-value
// UnitCredit if the client has no credit document yet.
func (c *CreditService) GetBalance(ctx context.Context, clientID, unitID string) (UnitCredit, error) {
	var doc CreditBalanceDoc
	exists, err := c.Store.Get(ctx, creditPath(clientID), &doc)
	if err != nil {
		return UnitCredit{}, err
	}
	if !exists || doc.Units == nil {
		return UnitCredit{}, nil
	}
	return doc.Units[unitID], nil
}

// ApplyChange appends a history entry and updates the running balance
// for one unit, atomically with respect to the rest of that unit's
// record. amount is signed: positive for additions, negative for
// usage. Rejects any change that would drive the balance negative.
func (c *CreditService) ApplyChange(ctx context.Context, clientID, unitID string, amount money.Money, kind CreditHistoryType, transactionID, notes string) (money.Money, error) {
	if amount == 0 {
		return 0, coreerr.New(coreerr.Validation, "credit change amount must be nonzero")
	}
	if kind != CreditStartingBalance && transactionID == "" {
		return 0, coreerr.New(coreerr.Validation, "credit change requires a transaction id")
	}

	var doc CreditBalanceDoc
	exists, err := c.Store.Get(ctx, creditPath(clientID), &doc)
	if err != nil {
		return 0, err
	}
	if !exists {
		doc = CreditBalanceDoc{ClientID: clientID, Units: map[string]UnitCredit{}}
	}
	if doc.Units == nil {
		doc.Units = map[string]UnitCredit{}
	}

	unit := doc.Units[unitID]
	newBalance := unit.Balance.Add(amount)
	if newBalance.IsNegative() {
		return 0, coreerr.New(coreerr.Validation, "credit change would drive balance negative")
	}

	now := money.ISODate(c.Clock.Now())
	entry := CreditHistoryEntry{
		ID:            transactionID + ":" + now + ":" + itoa64(int64(len(unit.History))),
		Timestamp:     now,
		Amount:        amount,
		Type:          kind,
		TransactionID: transactionID,
		Notes:         notes,
		BalanceAfter:  newBalance,
	}
	unit.Balance = newBalance
	unit.LastChange = now
	unit.History = append(unit.History, entry)
	doc.Units[unitID] = unit

	if err := c.Store.Set(ctx, creditPath(clientID), doc, store.SetOptions{}); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DeleteEntriesFor removes every history entry carrying
// transactionID, recomputing the balance as if they had never
// happened. Used by payment reversal (spec §4.5.9); it does not
// itself append a reversal entry — callers append that separately via
// ApplyChange so the reversal shows up as its own history line.
func (c *CreditService) DeleteEntriesFor(ctx context.Context, clientID, unitID, transactionID string) (entriesDeleted int, previousBalance, newBalance money.Money, err error) {
	var doc CreditBalanceDoc
	exists, err := c.Store.Get(ctx, creditPath(clientID), &doc)
	if err != nil || !exists {
		return 0, 0, 0, err
	}
	unit := doc.Units[unitID]
	previousBalance = unit.Balance

	kept := unit.History[:0]
	var removedSum money.Money
	for _, e := range unit.History {
		if e.TransactionID == transactionID {
			entriesDeleted++
			removedSum = removedSum.Add(e.Amount)
			continue
		}
		kept = append(kept, e)
	}
	unit.History = kept
	unit.Balance = unit.Balance.Sub(removedSum)
	newBalance = unit.Balance
	doc.Units[unitID] = unit

	if entriesDeleted > 0 {
		if err := c.Store.Set(ctx, creditPath(clientID), doc, store.SetOptions{}); err != nil {
			return 0, 0, 0, err
		}
	}
	return entriesDeleted, previousBalance, newBalance, nil
}

// CheckInvariant recomputes sum(history.amount) for every unit and
// compares it to the stored balance, per spec §4.6's on-demand
// invariant check. Mismatches are reported, never auto-corrected.
type InvariantMismatch struct {
	UnitID         string
	StoredBalance  money.Money
	ComputedBalance money.Money
}

func (c *CreditService) CheckInvariant(ctx context.Context, clientID string) ([]InvariantMismatch, error) {
	var doc CreditBalanceDoc
	exists, err := c.Store.Get(ctx, creditPath(clientID), &doc)
	if err != nil || !exists {
		return nil, err
	}
	var mismatches []InvariantMismatch
	for unitID, unit := range doc.Units {
		var sum money.Money
		for _, e := range unit.History {
			sum = sum.Add(e.Amount)
		}
		if sum != unit.Balance {
			mismatches = append(mismatches, InvariantMismatch{
				UnitID: unitID, StoredBalance: unit.Balance, ComputedBalance: sum,
			})
		}
	}
	return mismatches, nil
}

func itoa64(n int64) string {
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
