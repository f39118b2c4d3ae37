package jupiter

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/errs"
)

// OrderRequest asks Ultra for a swap quote with an unsigned transaction.
type OrderRequest struct {
	InputMint  string
	OutputMint string
	// Amount is in input base units.
	Amount string
	Taker  string
}

// Order is an Ultra quote. Transaction is base64 and unsigned.
type Order struct {
	RequestID    string `json:"requestId"`
	Transaction  string `json:"transaction"`
	InAmount     string `json:"inAmount"`
	OutAmount    string `json:"outAmount"`
	SlippageBps  int    `json:"slippageBps"`
	Router       string `json:"router"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Order requests a swap quote. An order without a transaction is an error.
func (c *Client) Order(ctx context.Context, req OrderRequest) (Order, error) {
	vals := url.Values{}
	vals.Set("inputMint", req.InputMint)
	vals.Set("outputMint", req.OutputMint)
	vals.Set("amount", req.Amount)
	if req.Taker != "" {
		vals.Set("taker", req.Taker)
	}

	var out Order
	if err := c.get(ctx, c.urls.Ultra, "/order", vals, &out); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(out.Transaction) == "" {
		msg := strings.TrimSpace(out.ErrorMessage)
		if msg == "" {
			msg = "no transaction returned"
		}
		return Order{}, errs.Newf(errs.CodeUpstream, "failed to get order: %s", msg)
	}
	logger.Debug(ctx, "gw.jupiter", "ultra.order",
		slog.String("input_mint", req.InputMint),
		slog.String("output_mint", req.OutputMint),
		slog.String("base_units", req.Amount),
		slog.String("request_id", out.RequestID),
	)
	return out, nil
}

// Execute submits a signed Ultra transaction. Non-Success statuses are errors.
func (c *Client) Execute(ctx context.Context, signedTx, requestID string) (Execution, error) {
	body := map[string]string{
		"signedTransaction": signedTx,
		"requestId":         requestID,
	}
	var out Execution
	if err := c.post(ctx, c.submit, c.urls.Ultra, "/execute", body, &out); err != nil {
		return Execution{}, err
	}
	if !out.OK() {
		return out, out.failure("swap execution")
	}
	return out, nil
}

// TokenAccount is one token account reported by holdings.
type TokenAccount struct {
	Account        string `json:"account"`
	Amount         string `json:"amount"`
	UIAmountString string `json:"uiAmountString"`
	Decimals       uint8  `json:"decimals"`
	ProgramID      string `json:"programId"`
}

// Holdings is a wallet's native balance and token accounts keyed by mint.
type Holdings struct {
	Amount         string                    `json:"amount"`
	UIAmountString string                    `json:"uiAmountString"`
	Tokens         map[string][]TokenAccount `json:"tokens"`
}

// Holdings fetches balances for address.
func (c *Client) Holdings(ctx context.Context, address string) (Holdings, error) {
	var out Holdings
	if err := c.get(ctx, c.urls.Ultra, "/holdings/"+url.PathEscape(address), nil, &out); err != nil {
		return Holdings{}, err
	}
	return out, nil
}
