// Package helius queries the priority fee oracle.
package helius

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/httpx"
)

const DefaultURL = "https://mainnet.helius-rpc.com"

type Client struct {
	http     *httpx.Client
	endpoint string
}

// New builds a client for baseURL (DefaultURL when empty) with the api key
// passed as a query parameter.
func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/"
	if apiKey != "" {
		endpoint += "?" + url.Values{"api-key": {apiKey}}.Encode()
	}
	return &Client{http: httpClient, endpoint: endpoint}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type feeParams struct {
	Transaction string     `json:"transaction"`
	Options     feeOptions `json:"options"`
}

type feeOptions struct {
	Recommended         bool   `json:"recommended"`
	TransactionEncoding string `json:"transactionEncoding"`
}

type rpcResponse struct {
	Result *struct {
		PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PriorityFee returns the recommended micro-lamports per compute unit for a
// base64 encoded transaction.
func (c *Client) PriorityFee(ctx context.Context, txBase64 string) (float64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  "getPriorityFeeEstimate",
		Params: []any{feeParams{
			Transaction: txBase64,
			Options:     feeOptions{Recommended: true, TransactionEncoding: "base64"},
		}},
	}
	var out rpcResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.endpoint, req, nil, &out); err != nil {
		return 0, err
	}
	if out.Error != nil {
		return 0, errs.Newf(errs.CodeUpstream, "priority fee estimate: %s", out.Error.Message)
	}
	if out.Result == nil || out.Result.PriorityFeeEstimate <= 0 {
		return 0, errs.New(errs.CodeUnavailable, "priority fee estimate missing")
	}
	return out.Result.PriorityFeeEstimate, nil
}
