package flow

import (
	"context"
	"math/big"
	"testing"

	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"
)

func startLimit(t *testing.T, h *harness, direction string) {
	t.Helper()
	if err := h.eng.StartLimitOrder(context.Background(), callback(chat.DataTradeLimit)); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.send(t, callback(direction))
	h.send(t, callback(usdcMint))
	h.send(t, text("JUP"))
	if got := h.step(t); got != session.StepEnterPrice {
		t.Fatalf("step = %s", got)
	}
}

func TestLimitOrderEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.trading.setPrice(jupMint, big.NewRat(1, 1))
	h.trading.setPrice(usdcMint, big.NewRat(1, 1))
	startLimit(t, h, chat.DataLimitBuy)

	h.send(t, text("$2"))
	if got := h.step(t); got != session.StepEnterPrice {
		t.Fatalf("guard rejection must keep the step, got %s", got)
	}
	requireText(t, h.chat.last(t), "above market")

	h.send(t, text("tomorrow"))
	if got := h.step(t); got != session.StepEnterPrice {
		t.Fatalf("bad syntax must keep the step, got %s", got)
	}

	h.send(t, text("+2%"))
	st, _ := h.state(t)
	lo, ok := st.LimitOrder()
	if !ok || lo.Step != session.StepEnterAmount {
		t.Fatalf("unexpected flow %+v", st.Active)
	}
	if lo.TriggerPrice != "51/50" || lo.SnapshotPrice != "1" {
		t.Fatalf("trigger=%s snapshot=%s", lo.TriggerPrice, lo.SnapshotPrice)
	}

	h.send(t, text("1"))
	if got := h.step(t); got != session.StepEnterAmount {
		t.Fatalf("notional below minimum must keep the step, got %s", got)
	}
	requireText(t, h.chat.last(t), "minimum")

	h.send(t, text("10"))
	h.requireCleared(t)

	if len(h.trading.created) != 1 {
		t.Fatalf("expected one order, got %d", len(h.trading.created))
	}
	req := h.trading.created[0]
	// taking = floor(10 / 1.02 * 10^6) = floor(9803921.56...)
	if req.MakingAmount != "10000000" || req.TakingAmount != "9803921" {
		t.Fatalf("making=%s taking=%s", req.MakingAmount, req.TakingAmount)
	}
	if req.InputMint != usdcMint || req.OutputMint != jupMint || req.Maker != walletKey.String() {
		t.Fatalf("unexpected order %+v", req)
	}
	requireText(t, h.chat.last(t), "order-1")
}

func TestLimitSellGuardBoundary(t *testing.T) {
	h := newHarness(t)
	h.trading.setPrice(jupMint, big.NewRat(100, 1))
	startLimit(t, h, chat.DataLimitSell)

	h.send(t, text("94.9999999"))
	if got := h.step(t); got != session.StepEnterPrice {
		t.Fatalf("sell below the band must be rejected, got %s", got)
	}
	h.send(t, text("95"))
	if got := h.step(t); got != session.StepEnterAmount {
		t.Fatalf("sell at the band edge must be accepted, got %s", got)
	}
}

func TestLimitPercentageWithoutMarketRetries(t *testing.T) {
	h := newHarness(t)
	startLimit(t, h, chat.DataLimitBuy)

	h.send(t, text("-5%"))
	if got := h.step(t); got != session.StepEnterPrice {
		t.Fatalf("step = %s", got)
	}
	requireText(t, h.chat.last(t), "unavailable")
}

func TestLimitMinNotionalSkippedWithoutPrice(t *testing.T) {
	h := newHarness(t)
	h.trading.setPrice(jupMint, big.NewRat(1, 1))
	startLimit(t, h, chat.DataLimitBuy)
	h.send(t, text("1"))
	if got := h.step(t); got != session.StepEnterAmount {
		t.Fatalf("step = %s", got)
	}

	h.send(t, text("1"))
	h.requireCleared(t)
	if len(h.trading.created) != 1 {
		t.Fatal("order should be created when the input price is unavailable")
	}
}

func TestLimitAmounts(t *testing.T) {
	amt := amount.Amount{UI: rat(t, "2.5")}
	making, taking, err := limitAmounts("3/2", amt, 6, 9)
	if err != nil {
		t.Fatalf("limitAmounts: %v", err)
	}
	// 2.5 / 1.5 = 1.666666666.. -> 1666666666 at 9 decimals
	if making.String() != "2500000" || taking.String() != "1666666666" {
		t.Fatalf("making=%s taking=%s", making, taking)
	}
	if _, _, err := limitAmounts("1000000000000", amount.Amount{UI: rat(t, "0.000001")}, 6, 6); err == nil {
		t.Fatal("expected zero taking amount to be rejected")
	}
}
