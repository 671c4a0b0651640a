package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/aggregation"
	"github.com/condomx/billing-core/api"
	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/notify"
	"github.com/condomx/billing-core/store"
	"github.com/condomx/billing-core/store/memtest"
	"github.com/rs/zerolog"
)

type recordingSink struct {
	sent []notify.Receipt
}

func (r *recordingSink) SendReceipt(_ context.Context, rec notify.Receipt) error {
	r.sent = append(r.sent, rec)
	return nil
}

func newTestHandler(t *testing.T) (*api.Handler, store.Store) {
	t.Helper()
	s := memtest.New(10)
	clock, err := money.NewFixedClock("2025-08-05")
	require.NoError(t, err)

	gen := billing.NewGenerator(s, clock)
	credit := billing.NewCreditService(s, clock)
	dist := billing.NewDistributor(s, clock, credit)
	agg := aggregation.NewBuilder(s, clock)
	return api.NewHandler(gen, dist, credit, agg), s
}

func TestSubmitReadingsAndGenerateBillEndToEnd(t *testing.T) {
	h, _ := newTestHandler(t)
	router := api.NewRouter(h)

	prior := int64(100)
	current := int64(150)
	readingBody, _ := json.Marshal(api.SubmitReadingsRequest{
		Units: map[string]billing.ReadingEntry{"U1": {PriorReading: &prior, CurrentReading: &current}},
	})
	req := httptest.NewRequest(http.MethodPost, "/clients/acme/readings/2026-00?module=water", bytes.NewReader(readingBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	genBody, _ := json.Marshal(api.GenerateBillRequest{
		Module: billing.ModuleWater, BillDate: "2025-08-01",
		Config: billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10},
	})
	req = httptest.NewRequest(http.MethodPost, "/clients/acme/bills/2026-00", bytes.NewReader(genBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var bill billing.BillPeriod
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bill))
	assert.Equal(t, money.Money(50000), bill.Units["U1"].CurrentCharge)
}

func TestGenerateBillConflictWithoutForceReturns409(t *testing.T) {
	h, s := newTestHandler(t)
	router := api.NewRouter(h)
	ctx := context.Background()

	current := int64(100)
	require.NoError(t, s.Set(ctx, "clients/acme/projects/waterBills/readings/2026-00", billing.ReadingDocument{
		Units: map[string]billing.ReadingEntry{"U1": {CurrentReading: &current}},
	}, store.SetOptions{}))

	cfg := billing.ConfigSnapshot{RatePerM3: money.Money(1000), GraceDays: 10}
	body, _ := json.Marshal(api.GenerateBillRequest{Module: billing.ModuleWater, BillDate: "2025-08-01", Config: cfg})

	req := httptest.NewRequest(http.MethodPost, "/clients/acme/bills/2026-00", bytes.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/clients/acme/bills/2026-00", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecordPaymentAndGetCreditBalance(t *testing.T) {
	h, s := newTestHandler(t)
	sink := &recordingSink{}
	h.Notify = &notify.BestEffortSink{Sink: sink, Logger: zerolog.Nop()}
	router := api.NewRouter(h)
	ctx := context.Background()

	entry := billing.UnitBillEntry{CurrentCharge: money.Money(90000)}
	entry.Recompute()
	bill := billing.BillPeriod{
		ClientID: "acme", Module: billing.ModuleWater, PeriodID: "2026-00",
		DueDate: "2025-08-05", Generated: true,
		ConfigSnapshot: billing.ConfigSnapshot{PenaltyRate: "0.05"},
		Units:          map[string]billing.UnitBillEntry{"U1": entry},
	}
	require.NoError(t, s.Set(ctx, "clients/acme/projects/waterBills/bills/2026-00", bill, store.SetOptions{}))

	payBody, _ := json.Marshal(api.RecordPaymentRequest{
		UnitID: "U1", Module: billing.ModuleWater, Amount: money.Money(100000), PaymentDate: "2025-08-05",
		ReceiptEmail: "owner@example.com",
	})
	req := httptest.NewRequest(http.MethodPost, "/clients/acme/payments", bytes.NewReader(payBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payResp api.RecordPaymentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payResp))
	assert.Equal(t, money.Money(10000), payResp.NewCreditBalance)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "owner@example.com", sink.sent[0].To)

	req = httptest.NewRequest(http.MethodGet, "/clients/acme/units/U1/credit", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var creditResp api.CreditBalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&creditResp))
	assert.Equal(t, money.Money(10000), creditResp.Balance)
}

func TestGetAggregatedDataNotFoundBecomesEmptyProjection(t *testing.T) {
	h, _ := newTestHandler(t)
	router := api.NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/clients/acme/aggregated?module=water&fiscalYear=2026", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var view aggregation.AggregatedView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 2026, view.FiscalYear)
}
