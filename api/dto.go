/*
dto.go - request/response shapes for the billing core's thin HTTP
surface (spec §6.1). No auth/multi-tenant middleware is implemented
here (out of scope per spec §1); every handler trusts clientId as
given in the path.
*/
package api

import (
	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/money"
)

// ErrorResponse is the JSON body written on any handler error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SubmitReadingsRequest is the body for POST .../readings/{periodId}.
type SubmitReadingsRequest struct {
	Units map[string]billing.ReadingEntry `json:"units"`
}

// GenerateBillRequest is the body for POST .../bills/{periodId}.
type GenerateBillRequest struct {
	Module   billing.Module         `json:"module"`
	BillDate string                 `json:"billDate"`
	Config   billing.ConfigSnapshot `json:"config"`
	Force    bool                   `json:"force"`
}

// RecordPaymentRequest is the body for POST .../payments.
type RecordPaymentRequest struct {
	UnitID        string         `json:"unitId"`
	Module        billing.Module `json:"module"`
	Amount        money.Money    `json:"amount"`
	PaymentDate   string         `json:"paymentDate"`
	AccountID     string         `json:"accountId"`
	PaymentMethod string         `json:"paymentMethod"`
	Notes         string         `json:"notes"`
	// ReceiptEmail, if set, triggers a best-effort receipt email (spec
	// §6.3); a failure here never fails the payment itself.
	ReceiptEmail string `json:"receiptEmail,omitempty"`
}

// RecordPaymentResponse mirrors spec §6.1's Record Payment result.
type RecordPaymentResponse struct {
	TransactionID    string                     `json:"transactionId"`
	Allocations      []billing.AllocationRecord `json:"allocations"`
	NewCreditBalance money.Money                `json:"newCreditBalance"`
}

// CreditBalanceResponse is the Get Credit Balance result.
type CreditBalanceResponse struct {
	Balance money.Money                  `json:"balance"`
	History []billing.CreditHistoryEntry `json:"history"`
}
