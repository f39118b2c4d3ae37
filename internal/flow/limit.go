package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/pricing"
	"github.com/m3rciful/tradebot/internal/session"
)

// StartLimitOrder opens a limit order on the message ev was attached to.
func (e *Engine) StartLimitOrder(ctx context.Context, ev chat.Event) error {
	f := &session.LimitOrderFlow{Step: session.StepSelectDirection, Message: ev.Message}
	if err := e.start(ctx, ev.ChatID, f); err != nil {
		return err
	}
	return e.renderLimit(ctx, ev.ChatID, f, "")
}

func (e *Engine) handleLimit(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	switch {
	case f.Step == session.StepSelectDirection && ev.IsCallback():
		return e.limitDirection(ctx, ev, f)
	case f.Step == session.StepSelectInput && ev.IsCallback():
		return e.limitInput(ctx, ev, f)
	case f.Step == session.StepEnterOutput && !ev.IsCallback():
		return e.limitOutput(ctx, ev, f)
	case f.Step == session.StepEnterPrice && !ev.IsCallback():
		return e.limitPrice(ctx, ev, f)
	case f.Step == session.StepEnterAmount && !ev.IsCallback():
		return e.limitAmount(ctx, ev, f)
	}
	ignored(ctx, f, ev)
	return nil
}

func (e *Engine) renderLimit(ctx context.Context, chatID int64, f *session.LimitOrderFlow, warning string) error {
	var (
		text string
		kb   chat.Keyboard
		back = chat.Rows(backButton(chat.DataBackToTrade))
	)
	switch f.Step {
	case session.StepSelectDirection:
		text = "📈 Limit order\n\nDo you want to buy or sell?"
		kb = chat.Keyboard{
			{chat.Btn("🟢 Buy", chat.DataLimitBuy), chat.Btn("🔴 Sell", chat.DataLimitSell)},
			{backButton(chat.DataBackToTrade)},
		}
	case session.StepSelectInput:
		refs, err := e.walletTokens(ctx, chatID)
		if err != nil {
			return e.fail(ctx, chatID, f, err)
		}
		text = fmt.Sprintf("📈 Limit %s\n\nSelect the token you want to pay with:", f.Direction)
		kb = tokenKeyboard(refs, chat.DataBackToTrade)
	case session.StepEnterOutput:
		text = fmt.Sprintf("✅ Paying with: %s\n%s\n\n📝 Send the symbol or address of the token to %s:", symbol(f.Input), balanceLine(f.Input), f.Direction)
		kb = back
	case session.StepEnterPrice:
		market := "unavailable"
		if p := e.marketPrice(ctx, f.Output.Mint); p != nil {
			market = pricing.FormatPrice(p)
		}
		text = fmt.Sprintf("📈 Limit %s %s with %s\nCurrent %s price: %s\n\nEnter the trigger price:\n• absolute: 150.50 or $150.50\n• relative to market: +5%% or -5%%",
			f.Direction, symbol(f.Output), symbol(f.Input), symbol(f.Output), market)
		kb = back
	case session.StepEnterAmount:
		trigger, _ := new(big.Rat).SetString(f.TriggerPrice)
		text = fmt.Sprintf("🎯 Trigger price: %s per %s\n%s\n\nEnter the amount of %s to spend:",
			pricing.FormatPrice(trigger), symbol(f.Output), balanceLine(f.Input), symbol(f.Input))
		kb = back
	case session.StepSubmitting:
		text = fmt.Sprintf("⏳ Creating limit order for %s %s...", f.Amount, symbol(f.Input))
	}
	return e.show(ctx, chatID, f.Message, withWarning(warning, text), kb)
}

func (e *Engine) limitDirection(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	var dir pricing.Direction
	switch ev.Data {
	case chat.DataLimitBuy:
		dir = pricing.Buy
	case chat.DataLimitSell:
		dir = pricing.Sell
	default:
		ignored(ctx, f, ev)
		return nil
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectDirection, func(s *session.LimitOrderFlow) error {
		s.Direction = dir
		s.Step = session.StepSelectInput
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, func(w string) error { return e.renderLimit(ctx, ev.ChatID, f, w) })
	}
	return e.renderLimit(ctx, ev.ChatID, next, "")
}

func (e *Engine) limitInput(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	rerender := func(w string) error { return e.renderLimit(ctx, ev.ChatID, f, w) }

	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.fail(ctx, ev.ChatID, f, err)
	}
	ref, err := e.holding(ctx, wallet.Address, ev.Data)
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectInput, func(s *session.LimitOrderFlow) error {
		s.Input = &ref
		s.Step = session.StepEnterOutput
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderLimit(ctx, ev.ChatID, next, "")
}

func (e *Engine) limitOutput(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	rerender := func(w string) error { return e.renderLimit(ctx, ev.ChatID, f, w) }

	out, err := e.resolveToken(ctx, ev.Text)
	if err == nil && f.Input != nil && out.Same(*f.Input) {
		err = errs.New(errs.CodeValidation, "Output token must differ from the input token")
	}
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepEnterOutput, func(s *session.LimitOrderFlow) error {
		s.Output = &out
		s.Step = session.StepEnterPrice
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderLimit(ctx, ev.ChatID, next, "")
}

// limitPrice resolves the trigger. Percentage input is resolved against a
// snapshot read here; the guard then runs against a second, fresh read.
func (e *Engine) limitPrice(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	rerender := func(w string) error { return e.renderLimit(ctx, ev.ChatID, f, w) }

	resolved, guardPrice, err := e.resolveTrigger(ctx, f, ev.Text)
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	logger.Info(ctx, "flow.limit", "limit.price",
		slog.String("output_mint", f.Output.Mint),
		slog.String("trigger_price", resolved.Trigger.FloatString(8)),
		slog.String("snapshot_price", ratString(resolved.Market)),
		slog.String("guard_price", ratString(guardPrice)),
	)

	next, err := advance(ctx, e.store, ev.ChatID, session.StepEnterPrice, func(s *session.LimitOrderFlow) error {
		s.PriceText = ev.Text
		s.PriceKind = resolved.Kind
		s.TriggerPrice = resolved.Trigger.RatString()
		if resolved.Market != nil {
			s.SnapshotPrice = resolved.Market.RatString()
		}
		s.Step = session.StepEnterAmount
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderLimit(ctx, ev.ChatID, next, "")
}

func (e *Engine) resolveTrigger(ctx context.Context, f *session.LimitOrderFlow, text string) (pricing.Resolved, *big.Rat, error) {
	in, err := pricing.Parse(text)
	if err != nil {
		return pricing.Resolved{}, nil, err
	}
	var snapshot *big.Rat
	if in.NeedsMarket() {
		snapshot = e.marketPrice(ctx, f.Output.Mint)
	}
	resolved, err := pricing.Resolve(in, snapshot)
	if err != nil {
		return pricing.Resolved{}, nil, err
	}
	fresh := e.marketPrice(ctx, f.Output.Mint)
	if err := pricing.Guard(f.Direction, resolved.Trigger, fresh); err != nil {
		return pricing.Resolved{}, fresh, err
	}
	return resolved, fresh, nil
}

func (e *Engine) limitAmount(ctx context.Context, ev chat.Event, f *session.LimitOrderFlow) error {
	rerender := func(w string) error { return e.renderLimit(ctx, ev.ChatID, f, w) }

	amt, err := amount.Manual(ev.Text, f.Input.Balance(), f.Input.Decimals)
	if err == nil {
		_, _, err = limitAmounts(f.TriggerPrice, amt, f.Input.Decimals, f.Output.Decimals)
	}
	if err == nil {
		err = pricing.CheckMinNotional(amt.UI, e.marketPrice(ctx, f.Input.Mint))
	}
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}

	next, err := advance(ctx, e.store, ev.ChatID, session.StepEnterAmount, func(s *session.LimitOrderFlow) error {
		s.Amount = amt.String()
		s.Step = session.StepSubmitting
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	if err := e.renderLimit(ctx, ev.ChatID, next, ""); err != nil {
		logger.Warn(ctx, "flow.limit", "render", slog.String("err", err.Error()))
	}
	return e.submitLimit(ctx, ev.ChatID, next)
}

// limitAmounts returns makingAmount = floor(ui * 10^inDec) and
// takingAmount = floor(ui / trigger * 10^outDec).
func limitAmounts(trigger string, amt amount.Amount, inDec, outDec uint8) (making, taking *big.Int, err error) {
	price, ok := new(big.Rat).SetString(trigger)
	if !ok || price.Sign() <= 0 {
		return nil, nil, errs.New(errs.CodeInternal, "trigger price missing")
	}
	making = amount.ToBaseUnits(amt.UI, inDec)
	taking = amount.ToBaseUnits(new(big.Rat).Quo(amt.UI, price), outDec)
	if making.Sign() == 0 || taking.Sign() == 0 {
		return nil, nil, errs.New(errs.CodeValidation, "Amount is too small for this trigger price")
	}
	return making, taking, nil
}

// submitLimit creates, signs and executes the order. A partially created
// order must not be duplicated, so nothing is retried.
func (e *Engine) submitLimit(ctx context.Context, chatID int64, f *session.LimitOrderFlow) error {
	start := time.Now()
	amt, err := amount.ParseUI(f.Amount)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	making, taking, err := limitAmounts(f.TriggerPrice, amount.Amount{UI: amt}, f.Input.Decimals, f.Output.Decimals)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	wallet, err := e.custody.GetOrCreateWallet(ctx, chatID)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	prepared, err := e.trading.CreateOrder(ctx, jupiter.CreateOrderRequest{
		InputMint:    f.Input.Mint,
		OutputMint:   f.Output.Mint,
		Maker:        wallet.Address,
		MakingAmount: making.String(),
		TakingAmount: taking.String(),
	})
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	signed, err := e.custody.SignTransaction(ctx, wallet.ID, prepared.Transaction)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	exec, err := e.trading.ExecuteTrigger(ctx, signed, prepared.RequestID)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}

	logger.Info(ctx, "flow.limit", "limit.created",
		slog.String("input_mint", f.Input.Mint),
		slog.String("output_mint", f.Output.Mint),
		slog.String("amount", making.String()),
		slog.String("trigger_price", f.TriggerPrice),
		slog.String("order_key", prepared.Order),
		slog.String("signature", exec.Signature),
		slog.Duration("duration", logger.Took(start)),
	)

	trigger, _ := new(big.Rat).SetString(f.TriggerPrice)
	text := fmt.Sprintf("✅ Limit order created!\n\nPay: %s %s\nReceive: %s %s\nTrigger: %s\n\nOrder: %s\nSignature: %s",
		f.Amount, symbol(f.Input),
		amount.FormatBase(taking, f.Output.Decimals), symbol(f.Output),
		pricing.FormatPrice(trigger),
		chat.Code(prepared.Order), chat.Code(exec.Signature))
	return e.finish(ctx, chatID, f, text)
}

func ratString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.FloatString(8)
}
