package jupiter

import (
	"context"
	"net/url"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
)

// CreateOrderRequest describes a limit order. Amounts are base units.
type CreateOrderRequest struct {
	InputMint    string
	OutputMint   string
	Maker        string
	MakingAmount string
	TakingAmount string
}

// Prepared is an unsigned transaction awaiting signature and execute.
type Prepared struct {
	RequestID   string `json:"requestId"`
	Transaction string `json:"transaction"`
	Order       string `json:"order,omitempty"`
}

type createOrderBody struct {
	InputMint        string            `json:"inputMint"`
	OutputMint       string            `json:"outputMint"`
	Maker            string            `json:"maker"`
	Payer            string            `json:"payer"`
	Params           map[string]string `json:"params"`
	WrapAndUnwrapSol bool              `json:"wrapAndUnwrapSol"`
}

// CreateOrder prepares a trigger order; the maker also pays.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Prepared, error) {
	body := createOrderBody{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		Maker:      req.Maker,
		Payer:      req.Maker,
		Params: map[string]string{
			"makingAmount": req.MakingAmount,
			"takingAmount": req.TakingAmount,
		},
		WrapAndUnwrapSol: true,
	}
	var out Prepared
	if err := c.post(ctx, c.submit, c.urls.Trigger, "/createOrder", body, &out); err != nil {
		return Prepared{}, err
	}
	if strings.TrimSpace(out.Transaction) == "" {
		return Prepared{}, errs.New(errs.CodeUpstream, "create order returned no transaction")
	}
	return out, nil
}

// ExecuteTrigger submits a signed createOrder or cancelOrder transaction.
func (c *Client) ExecuteTrigger(ctx context.Context, signedTx, requestID string) (Execution, error) {
	body := map[string]string{
		"signedTransaction": signedTx,
		"requestId":         requestID,
	}
	var out Execution
	if err := c.post(ctx, c.submit, c.urls.Trigger, "/execute", body, &out); err != nil {
		return Execution{}, err
	}
	if !out.OK() {
		return out, out.failure("order execution")
	}
	return out, nil
}

// CancelOrder prepares the cancellation of one order.
func (c *Client) CancelOrder(ctx context.Context, maker, orderKey string) (Prepared, error) {
	body := map[string]string{
		"maker": maker,
		"order": orderKey,
	}
	var out Prepared
	if err := c.post(ctx, c.submit, c.urls.Trigger, "/cancelOrder", body, &out); err != nil {
		return Prepared{}, err
	}
	if strings.TrimSpace(out.Transaction) == "" {
		return Prepared{}, errs.New(errs.CodeUpstream, "cancel order returned no transaction")
	}
	return out, nil
}

// TriggerOrder is an open or historical limit order.
type TriggerOrder struct {
	OrderKey              string `json:"orderKey"`
	InputMint             string `json:"inputMint"`
	OutputMint            string `json:"outputMint"`
	MakingAmount          string `json:"makingAmount"`
	TakingAmount          string `json:"takingAmount"`
	RemainingMakingAmount string `json:"remainingMakingAmount"`
	Status                string `json:"status"`
	CreatedAt             string `json:"createdAt"`
}

type triggerOrdersResponse struct {
	Orders     []TriggerOrder `json:"orders"`
	TotalPages int            `json:"totalPages"`
	Page       int            `json:"page"`
}

// ActiveOrders lists the first page of active orders for user.
func (c *Client) ActiveOrders(ctx context.Context, user string) ([]TriggerOrder, error) {
	vals := url.Values{}
	vals.Set("user", user)
	vals.Set("orderStatus", "active")
	vals.Set("page", "1")
	var out triggerOrdersResponse
	if err := c.get(ctx, c.urls.Trigger, "/getTriggerOrders", vals, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}
