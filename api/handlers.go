/*
handlers.go - HTTP API handlers for the billing core

PURPOSE:
  Exposes the six operations of spec §6.1 as thin chi handlers. No
  auth/multi-tenant mounting (out of scope per spec §1) — every route
  takes clientId from the path and trusts it.

ERROR HANDLING:
  coreerr.Kind maps to HTTP status:
    Validation -> 400, NotFound -> 404, Conflict -> 409,
    Transient/Permanent -> 500, PartialFailure -> 207.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router wiring
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/condomx/billing-core/aggregation"
	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/notify"
)

// Handler holds every dependency the six endpoints need.
type Handler struct {
	Generator   *billing.Generator
	Distributor *billing.Distributor
	Credit      *billing.CreditService
	Aggregator  *aggregation.Builder
	Notify      *notify.BestEffortSink // nil disables receipt email entirely
}

func NewHandler(gen *billing.Generator, dist *billing.Distributor, credit *billing.CreditService, agg *aggregation.Builder) *Handler {
	return &Handler{Generator: gen, Distributor: dist, Credit: credit, Aggregator: agg}
}

// SubmitReadings stores a reading document for a period (spec §6.1).
// Conflict if the period is already billed is enforced by the Bill
// Generator at generation time, not here (readings may legitimately be
// resubmitted before billing).
func (h *Handler) SubmitReadings(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	periodID := chi.URLParam(r, "periodId")
	module := billing.Module(r.URL.Query().Get("module"))
	if module == "" {
		module = billing.ModuleWater
	}

	var req SubmitReadingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}

	doc, err := h.Generator.SubmitReadings(r.Context(), clientID, module, periodID, req.Units)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GenerateBill materializes a Bill Period Document (spec §6.1).
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	periodID := chi.URLParam(r, "periodId")

	var req GenerateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}

	bill, err := h.Generator.Generate(r.Context(), billing.GenerateInput{
		ClientID: clientID, Module: req.Module, PeriodID: periodID,
		BillDate: req.BillDate, Config: req.Config, Force: req.Force,
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// RecordPayment applies a payment (spec §6.1).
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}

	result, err := h.Distributor.Distribute(r.Context(), billing.PaymentInput{
		ClientID: clientID, UnitID: req.UnitID, Module: req.Module,
		Amount: req.Amount, PaymentDate: req.PaymentDate,
		AccountID: req.AccountID, PaymentMethod: req.PaymentMethod, Notes: req.Notes,
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}

	if req.ReceiptEmail != "" && h.Notify != nil {
		h.Notify.SendReceipt(r.Context(), notify.Receipt{
			To:      req.ReceiptEmail,
			Subject: fmt.Sprintf("Payment received: %s", result.TransactionID),
			HTML:    fmt.Sprintf("<p>We received your payment of %d centavos. Thank you.</p>", req.Amount),
		})
	}

	writeJSON(w, http.StatusOK, RecordPaymentResponse{
		TransactionID: result.TransactionID, Allocations: result.Allocations, NewCreditBalance: result.NewCreditBalance,
	})
}

// DeletePayment reverses a transaction (spec §6.1).
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	transactionID := chi.URLParam(r, "transactionId")

	result, err := h.Distributor.Reverse(r.Context(), clientID, transactionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAggregatedData returns the fiscal-year projection (spec §6.1).
func (h *Handler) GetAggregatedData(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	module := billing.Module(r.URL.Query().Get("module"))
	if module == "" {
		module = billing.ModuleWater
	}
	fiscalYear := intQueryParam(r, "fiscalYear")
	forceRefresh := r.URL.Query().Get("forceRefresh") == "true"

	view, err := h.Aggregator.Get(r.Context(), clientID, module, fiscalYear, forceRefresh)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetCreditBalance returns a unit's credit balance and history (spec §6.1).
func (h *Handler) GetCreditBalance(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	unitID := chi.URLParam(r, "unitId")

	unit, err := h.Credit.GetBalance(r.Context(), clientID, unitID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditBalanceResponse{Balance: unit.Balance, History: unit.History})
}

func intQueryParam(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	n := 0
	neg := false
	for i, c := range raw {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case coreerr.Is(err, coreerr.Validation):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	case coreerr.Is(err, coreerr.NotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case coreerr.Is(err, coreerr.Conflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case coreerr.Is(err, coreerr.PartialFailure):
		writeError(w, http.StatusMultiStatus, "partial failure", err)
	default:
		writeError(w, http.StatusInternalServerError, coreerr.GenericMessage, err)
	}
}
