// Package jupiter is the quote/order gateway: Ultra swaps, Trigger limit
// orders, the token directory and USD prices.
package jupiter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/httpx"
)

const (
	DefaultUltraURL   = "https://lite-api.jup.ag/ultra/v1"
	DefaultTriggerURL = "https://lite-api.jup.ag/trigger/v1"
	DefaultTokensURL  = "https://lite-api.jup.ag/tokens/v2"
	DefaultPriceURL   = "https://lite-api.jup.ag/price/v3"
)

// Endpoints overrides base URLs; empty fields use the lite-api defaults.
type Endpoints struct {
	Ultra   string
	Trigger string
	Tokens  string
	Price   string
}

type Client struct {
	http   *httpx.Client
	submit *httpx.Client
	urls   Endpoints
	apiKey string
}

// New wires a gateway. Submissions (execute) never retry; reads use the
// client's retry budget.
func New(httpClient *httpx.Client, apiKey string, urls Endpoints) *Client {
	if urls.Ultra == "" {
		urls.Ultra = DefaultUltraURL
	}
	if urls.Trigger == "" {
		urls.Trigger = DefaultTriggerURL
	}
	if urls.Tokens == "" {
		urls.Tokens = DefaultTokensURL
	}
	if urls.Price == "" {
		urls.Price = DefaultPriceURL
	}
	return &Client{
		http:   httpClient,
		submit: httpClient.WithRetries(0),
		urls:   urls,
		apiKey: strings.TrimSpace(apiKey),
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.apiKey}
}

func (c *Client) get(ctx context.Context, base, path string, vals url.Values, out any) error {
	endpoint := strings.TrimRight(base, "/") + path
	if len(vals) > 0 {
		endpoint += "?" + vals.Encode()
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, c.headers(), out)
	return err
}

func (c *Client) post(ctx context.Context, hc *httpx.Client, base, path string, body, out any) error {
	endpoint := strings.TrimRight(base, "/") + path
	_, err := httpx.DoBodyJSON(ctx, hc, http.MethodPost, endpoint, body, c.headers(), out)
	return err
}

// Execution is the outcome of submitting a signed transaction.
type Execution struct {
	Status    string `json:"status"`
	Signature string `json:"signature"`
	Code      int    `json:"code"`
	Error     string `json:"error"`
}

// OK reports a Success status.
func (e Execution) OK() bool { return e.Status == "Success" }

func (e Execution) failure(op string) error {
	msg := strings.TrimSpace(e.Error)
	if msg == "" {
		msg = fmt.Sprintf("%s failed with status %q", op, e.Status)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	return errs.New(errs.CodeUpstream, msg)
}
