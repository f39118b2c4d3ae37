package flow

import (
	"context"
	"math/big"
	"testing"

	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/session"
)

func TestShowHoldingsValuesBalances(t *testing.T) {
	h := newHarness(t)
	h.trading.setPrice(session.NativeMint, big.NewRat(100, 1))
	h.trading.setPrice(usdcMint, big.NewRat(1, 1))

	if err := h.eng.ShowHoldings(context.Background(), callback(chat.DataHoldings)); err != nil {
		t.Fatalf("holdings: %v", err)
	}
	m := h.chat.last(t)
	requireText(t, m, "SOL: 1.5 ($150.00)")
	requireText(t, m, "USDC: 100 ($100.00)")
	requireText(t, m, "Total: $250.00")
}

func TestShowHoldingsMissingPriceCountsAsZero(t *testing.T) {
	h := newHarness(t)
	h.trading.setPrice(session.NativeMint, big.NewRat(100, 1))

	if err := h.eng.ShowHoldings(context.Background(), callback(chat.DataHoldings)); err != nil {
		t.Fatalf("holdings: %v", err)
	}
	m := h.chat.last(t)
	requireText(t, m, "USDC: 100 ($0.00)")
	requireText(t, m, "Total: $150.00")
}

func TestShowOrdersOffersCancel(t *testing.T) {
	h := newHarness(t)
	h.trading.orders = []jupiter.TriggerOrder{{
		OrderKey:     "order-9",
		InputMint:    usdcMint,
		OutputMint:   jupMint,
		MakingAmount: "10000000",
		TakingAmount: "9803921",
	}}

	if err := h.eng.ShowOrders(context.Background(), callback(chat.DataOrders)); err != nil {
		t.Fatalf("orders: %v", err)
	}
	m := h.chat.last(t)
	requireText(t, m, "Pay: 10 USDC")
	requireText(t, m, "Receive: 9.803921 JUP")
	if m.kb[0][0].Data != chat.PrefixCancelOrder+"order-9" {
		t.Fatalf("unexpected keyboard %+v", m.kb)
	}
}

func TestCancelOrderSignsAndExecutes(t *testing.T) {
	h := newHarness(t)
	if err := h.eng.CancelOrder(context.Background(), callback(chat.PrefixCancelOrder+"order-9"), "order-9"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(h.trading.cancelled) != 1 || h.trading.cancelled[0] != "order-9" {
		t.Fatalf("cancelled = %v", h.trading.cancelled)
	}
	if len(h.custody.signed) != 1 {
		t.Fatal("cancel transaction must be signed")
	}
	requireText(t, h.chat.last(t), "Order cancelled")
	if _, ok := h.state(t); ok {
		t.Fatal("cancel must not create a session")
	}
}
