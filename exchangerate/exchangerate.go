/*
Package exchangerate implements the nightly scheduler's exchange-rate
task (spec §4.7 step 3, §6.3): call an external rate provider, persist
the day's rate document, and leave the billing core's hot path
untouched (spec §6.3: "the billing core does not read rates on the hot
path").

Grounded on vidinfra-flexprice, the only pack repo that dials outbound
HTTP with retry semantics, via github.com/hashicorp/go-retryablehttp;
the teacher makes no outbound calls at all.
*/
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/store"
)

// Provider is an opaque external rate collaborator (spec §6.3: "treated
// as an opaque collaborator").
type Provider interface {
	FetchRate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// HTTPProvider is a contract-only stub client: it knows how to shape
// the request and parse a {"rate": "..."} response, but the concrete
// base URL/provider is a deployment detail supplied via config.
type HTTPProvider struct {
	BaseURL string
	Client  *retryablehttp.Client
}

// NewHTTPProvider builds an HTTPProvider with retryablehttp's default
// exponential backoff, quieted to avoid the library's default stderr
// logging in test and production alike.
func NewHTTPProvider(baseURL string, timeout time.Duration, maxRetries int) *HTTPProvider {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &HTTPProvider{BaseURL: baseURL, Client: client}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

func (p *HTTPProvider) FetchRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/rates/%s/%s", p.BaseURL, base, quote)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, coreerr.Wrap(coreerr.Permanent, "exchangerate: build request failed", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return decimal.Zero, coreerr.Wrap(coreerr.Transient, "exchangerate: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, coreerr.New(coreerr.Transient, fmt.Sprintf("exchangerate: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, coreerr.Wrap(coreerr.Transient, "exchangerate: read body failed", err)
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, coreerr.Wrap(coreerr.Permanent, "exchangerate: malformed response", err)
	}

	rate, err := decimal.NewFromString(parsed.Rate)
	if err != nil {
		return decimal.Zero, coreerr.Wrap(coreerr.Permanent, "exchangerate: unparsable rate", err)
	}
	return rate, nil
}

// RateDocument is the persisted day's-rate document (spec §4.7: "persist
// the day's rate document").
type RateDocument struct {
	Date  string `json:"date"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Rate  string `json:"rate"`
}

// Task fetches and persists the day's rate.
type Task struct {
	Store    store.Store
	Provider Provider
	Base     string
	Quote    string
}

func NewTask(s store.Store, provider Provider, base, quote string) *Task {
	return &Task{Store: s, Provider: provider, Base: base, Quote: quote}
}

// Run fetches the current rate and writes it to
// /system/exchangeRates/{date}.
func (t *Task) Run(ctx context.Context, date string) (RateDocument, error) {
	rate, err := t.Provider.FetchRate(ctx, t.Base, t.Quote)
	if err != nil {
		return RateDocument{}, err
	}

	doc := RateDocument{Date: date, Base: t.Base, Quote: t.Quote, Rate: rate.String()}
	path := store.Path("system/exchangeRates/" + date)
	if err := t.Store.Set(ctx, path, doc, store.SetOptions{}); err != nil {
		return RateDocument{}, err
	}
	return doc, nil
}
