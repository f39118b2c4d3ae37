package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/session"
)

// StartSwap opens a swap on the message ev was attached to, discarding any
// other flow.
func (e *Engine) StartSwap(ctx context.Context, ev chat.Event) error {
	f := &session.SwapFlow{Step: session.StepSelectInput, Message: ev.Message}
	if err := e.start(ctx, ev.ChatID, f); err != nil {
		return err
	}
	return e.renderSwap(ctx, ev.ChatID, f, "")
}

func (e *Engine) handleSwap(ctx context.Context, ev chat.Event, f *session.SwapFlow) error {
	switch {
	case f.Step == session.StepSelectInput && ev.IsCallback():
		return e.swapInput(ctx, ev, f)
	case f.Step == session.StepEnterOutput && !ev.IsCallback():
		return e.swapOutput(ctx, ev, f)
	case f.Step == session.StepSelectAmount:
		return e.swapAmount(ctx, ev, f)
	}
	ignored(ctx, f, ev)
	return nil
}

func (e *Engine) renderSwap(ctx context.Context, chatID int64, f *session.SwapFlow, warning string) error {
	var (
		text string
		kb   chat.Keyboard
	)
	switch f.Step {
	case session.StepSelectInput:
		refs, err := e.walletTokens(ctx, chatID)
		if err != nil {
			return e.fail(ctx, chatID, f, err)
		}
		text = "📊 Select the token you want to swap FROM:"
		kb = tokenKeyboard(refs, chat.DataBackToTrade)
	case session.StepEnterOutput:
		text = fmt.Sprintf("✅ Input token: %s\n\n📝 Send the symbol or address of the token you want to swap TO:\n\n(Example: SOL, USDC, or a mint address)", symbol(f.Input))
		kb = chat.Rows(backButton(chat.DataBackToTrade))
	case session.StepSelectAmount:
		text = fmt.Sprintf("🔄 Swap %s → %s\n%s\n\nChoose an amount or type it:", symbol(f.Input), symbol(f.Output), balanceLine(f.Input))
		kb = percentKeyboard(chat.PrefixSwapPercent, chat.DataBackToTrade)
	case session.StepSubmitting:
		text = fmt.Sprintf("⏳ Swapping %s %s → %s...", f.Amount, symbol(f.Input), symbol(f.Output))
	}
	return e.show(ctx, chatID, f.Message, withWarning(warning, text), kb)
}

func (e *Engine) swapInput(ctx context.Context, ev chat.Event, f *session.SwapFlow) error {
	rerender := func(w string) error { return e.renderSwap(ctx, ev.ChatID, f, w) }

	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.fail(ctx, ev.ChatID, f, err)
	}
	ref, err := e.holding(ctx, wallet.Address, ev.Data)
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectInput, func(s *session.SwapFlow) error {
		s.Input = &ref
		s.Step = session.StepEnterOutput
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderSwap(ctx, ev.ChatID, next, "")
}

func (e *Engine) swapOutput(ctx context.Context, ev chat.Event, f *session.SwapFlow) error {
	rerender := func(w string) error { return e.renderSwap(ctx, ev.ChatID, f, w) }

	out, err := e.resolveToken(ctx, ev.Text)
	if err == nil && f.Input != nil && out.Same(*f.Input) {
		err = errs.New(errs.CodeValidation, "Output token must differ from the input token")
	}
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepEnterOutput, func(s *session.SwapFlow) error {
		s.Output = &out
		s.Step = session.StepSelectAmount
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderSwap(ctx, ev.ChatID, next, "")
}

func (e *Engine) swapAmount(ctx context.Context, ev chat.Event, f *session.SwapFlow) error {
	rerender := func(w string) error { return e.renderSwap(ctx, ev.ChatID, f, w) }

	var (
		amt amount.Amount
		err error
	)
	if ev.IsCallback() {
		pct, ok := chat.Percent(ev.Data, chat.PrefixSwapPercent)
		if !ok {
			ignored(ctx, f, ev)
			return nil
		}
		amt, err = amount.Percent(f.Input.Balance(), f.Input.RawAmount, pct, f.Input.Decimals)
	} else {
		amt, err = amount.Manual(ev.Text, f.Input.Balance(), f.Input.Decimals)
	}
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}

	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectAmount, func(s *session.SwapFlow) error {
		s.Amount = amt.String()
		s.BaseAmount = amt.Base.String()
		s.Step = session.StepSubmitting
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	if err := e.renderSwap(ctx, ev.ChatID, next, ""); err != nil {
		logger.Warn(ctx, "flow.swap", "render", slog.String("err", err.Error()))
	}
	return e.submitSwap(ctx, ev.ChatID, next)
}

// submitSwap quotes, signs and executes. A stale quote cannot be resubmitted,
// so any failure ends the flow.
func (e *Engine) submitSwap(ctx context.Context, chatID int64, f *session.SwapFlow) error {
	start := time.Now()
	wallet, err := e.custody.GetOrCreateWallet(ctx, chatID)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	order, err := e.trading.Order(ctx, jupiter.OrderRequest{
		InputMint:  f.Input.Mint,
		OutputMint: f.Output.Mint,
		Amount:     f.BaseAmount,
		Taker:      wallet.Address,
	})
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	signed, err := e.custody.SignTransaction(ctx, wallet.ID, order.Transaction)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}
	exec, err := e.trading.Execute(ctx, signed, order.RequestID)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}

	logger.Info(ctx, "flow.swap", "swap.executed",
		slog.String("input_mint", f.Input.Mint),
		slog.String("output_mint", f.Output.Mint),
		slog.String("base_units", f.BaseAmount),
		slog.String("request_id", order.RequestID),
		slog.String("signature", exec.Signature),
		slog.Duration("duration", logger.Took(start)),
	)

	text := fmt.Sprintf("✅ Swap executed!\n\nSold: %s %s", f.Amount, symbol(f.Input))
	if out, ok := amount.ParseBaseUnits(order.OutAmount); ok {
		text += fmt.Sprintf("\nReceived: ~%s %s", amount.FormatBase(out, f.Output.Decimals), symbol(f.Output))
	}
	text += "\n\nSignature: " + chat.Code(exec.Signature)
	return e.finish(ctx, chatID, f, text)
}

// walletTokens lists the chat wallet's nonzero holdings; an empty wallet is
// terminal for the flows that need a source token.
func (e *Engine) walletTokens(ctx context.Context, chatID int64) ([]session.TokenRef, error) {
	wallet, err := e.custody.GetOrCreateWallet(ctx, chatID)
	if err != nil {
		return nil, err
	}
	refs, err := e.portfolio(ctx, wallet.Address)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, errs.New(errs.CodeNotFound, "No tokens found in your wallet.")
	}
	return refs, nil
}

func ignored(ctx context.Context, f session.Flow, ev chat.Event) {
	logger.Debug(ctx, component(f.Kind()), "flow.ignored",
		slog.String("step", string(f.Current())),
		slog.Bool("callback", ev.IsCallback()),
	)
}
