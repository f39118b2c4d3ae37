package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"
)

const (
	maxHoldingsShown = 10
	maxOrdersShown   = 5
)

func infoKeyboard() chat.Keyboard {
	return chat.Rows(
		chat.Btn("🔄 Refresh", chat.DataHoldings),
		backButton(chat.DataInfo),
	)
}

// ShowHoldings renders the wallet's balances with USD values. Missing
// prices count as zero.
func (e *Engine) ShowHoldings(ctx context.Context, ev chat.Event) error {
	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	refs, err := e.portfolio(ctx, wallet.Address)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💼 Holdings of %s\n\n", chat.Code(wallet.Address))
	if len(refs) == 0 {
		b.WriteString("No tokens found in your wallet.")
		return e.show(ctx, ev.ChatID, ev.Message, b.String(), infoKeyboard())
	}

	mints := make([]string, 0, len(refs))
	for _, ref := range refs {
		mints = append(mints, ref.Mint)
	}
	prices, err := e.trading.Prices(ctx, mints)
	if err != nil {
		logger.Warn(ctx, "flow", "holdings.prices",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		prices = nil
	}

	total := new(big.Rat)
	for i, ref := range refs {
		value := usdValue(ref, prices)
		total.Add(total, value)
		if i >= maxHoldingsShown {
			continue
		}
		fmt.Fprintf(&b, "• %s: %s (%s)\n", chat.Escape(ref.Symbol),
			amount.FormatRatPrec(ref.Balance(), 4), usd(value))
	}
	if extra := len(refs) - maxHoldingsShown; extra > 0 {
		fmt.Fprintf(&b, "...and %d more\n", extra)
	}
	fmt.Fprintf(&b, "\nTotal: %s", usd(total))
	return e.show(ctx, ev.ChatID, ev.Message, b.String(), infoKeyboard())
}

func usdValue(ref session.TokenRef, prices map[string]*big.Rat) *big.Rat {
	p, ok := prices[ref.Mint]
	if !ok || p == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Mul(ref.Balance(), p)
}

func usd(v *big.Rat) string { return "$" + v.FloatString(2) }

// ShowOrders lists active limit orders, each with a cancel button.
func (e *Engine) ShowOrders(ctx context.Context, ev chat.Event) error {
	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	orders, err := e.trading.ActiveOrders(ctx, wallet.Address)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	if len(orders) == 0 {
		return e.show(ctx, ev.ChatID, ev.Message, "📋 You have no active limit orders.",
			chat.Rows(backButton(chat.DataInfo)))
	}

	var (
		b  strings.Builder
		kb chat.Keyboard
	)
	fmt.Fprintf(&b, "📋 Active limit orders (%d)\n\n", len(orders))
	for i, o := range orders {
		if i >= maxOrdersShown {
			fmt.Fprintf(&b, "...and %d more\n", len(orders)-maxOrdersShown)
			break
		}
		in := e.labelFor(ctx, o.InputMint)
		out := e.labelFor(ctx, o.OutputMint)
		fmt.Fprintf(&b, "%d. %s → %s\n   Pay: %s %s\n   Receive: %s %s\n   Order: %s\n",
			i+1, in.label, out.label,
			e.orderAmount(o.MakingAmount, in), in.label,
			e.orderAmount(o.TakingAmount, out), out.label,
			chat.Code(o.OrderKey))
		kb = append(kb, []chat.Button{chat.Btn(fmt.Sprintf("❌ Cancel #%d", i+1), chat.PrefixCancelOrder+o.OrderKey)})
	}
	kb = kb.Append([]chat.Button{backButton(chat.DataInfo)})
	return e.show(ctx, ev.ChatID, ev.Message, b.String(), kb)
}

type tokenLabel struct {
	label    string
	decimals uint8
	known    bool
}

func (e *Engine) labelFor(ctx context.Context, mint string) tokenLabel {
	if mint == session.NativeMint {
		return tokenLabel{label: "SOL", decimals: session.NativeDecimals, known: true}
	}
	if tok, ok := e.lookup(ctx, mint); ok {
		return tokenLabel{label: chat.Escape(tok.Symbol), decimals: tok.Decimals, known: true}
	}
	return tokenLabel{label: chat.ShortAddress(mint)}
}

// orderAmount renders trigger order amounts, which the API reports either
// as base units or already scaled.
func (e *Engine) orderAmount(raw string, tok tokenLabel) string {
	if base, ok := amount.ParseBaseUnits(raw); ok && tok.known {
		return amount.FormatRatPrec(amount.FromBaseUnits(base, tok.decimals), 6)
	}
	return raw
}

// CancelOrder cancels orderKey: cancel transaction, custody signature,
// trigger execute. It never touches session state.
func (e *Engine) CancelOrder(ctx context.Context, ev chat.Event, orderKey string) error {
	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	prepared, err := e.trading.CancelOrder(ctx, wallet.Address, orderKey)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	signed, err := e.custody.SignTransaction(ctx, wallet.ID, prepared.Transaction)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	exec, err := e.trading.ExecuteTrigger(ctx, signed, prepared.RequestID)
	if err != nil {
		return e.infoError(ctx, ev, err)
	}
	logger.Info(ctx, "flow.limit", "limit.cancelled",
		slog.String("order_key", orderKey),
		slog.String("signature", exec.Signature),
	)
	text := fmt.Sprintf("✅ Order cancelled.\n\nOrder: %s\nSignature: %s", chat.Code(orderKey), chat.Code(exec.Signature))
	return e.show(ctx, ev.ChatID, ev.Message, text, chat.Rows(
		chat.Btn("📋 Orders", chat.DataOrders),
		backButton(chat.DataInfo),
	))
}

func (e *Engine) infoError(ctx context.Context, ev chat.Event, err error) error {
	logger.Warn(ctx, "flow", "info.fail",
		slog.String("err", err.Error()),
	)
	return e.show(ctx, ev.ChatID, ev.Message, failureText(err), chat.Rows(backButton(chat.DataInfo)))
}
