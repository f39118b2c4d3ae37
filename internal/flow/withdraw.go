package flow

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/estimator"
	"github.com/m3rciful/tradebot/internal/session"
)

// StartWithdraw opens a withdrawal on the message ev was attached to.
func (e *Engine) StartWithdraw(ctx context.Context, ev chat.Event) error {
	f := &session.WithdrawFlow{Step: session.StepEnterAddress, Message: ev.Message}
	if err := e.start(ctx, ev.ChatID, f); err != nil {
		return err
	}
	return e.renderWithdraw(ctx, ev.ChatID, f, "")
}

func (e *Engine) handleWithdraw(ctx context.Context, ev chat.Event, f *session.WithdrawFlow) error {
	switch {
	case f.Step == session.StepEnterAddress && !ev.IsCallback():
		return e.withdrawAddress(ctx, ev, f)
	case f.Step == session.StepSelectToken && ev.IsCallback():
		return e.withdrawToken(ctx, ev, f)
	case f.Step == session.StepSelectAmount:
		return e.withdrawAmount(ctx, ev, f)
	}
	ignored(ctx, f, ev)
	return nil
}

func (e *Engine) renderWithdraw(ctx context.Context, chatID int64, f *session.WithdrawFlow, warning string) error {
	var (
		text string
		kb   chat.Keyboard
	)
	switch f.Step {
	case session.StepEnterAddress:
		text = "💸 Withdraw\n\n📝 Send the recipient's Solana address:"
		kb = chat.Rows(backButton(chat.DataBackMain))
	case session.StepSelectToken:
		refs, err := e.walletTokens(ctx, chatID)
		if err != nil {
			return e.fail(ctx, chatID, f, err)
		}
		text = fmt.Sprintf("💸 Recipient: %s\n\nSelect the token to withdraw:", chat.Code(f.Recipient))
		kb = tokenKeyboard(refs, chat.DataBackMain)
	case session.StepSelectAmount:
		text = fmt.Sprintf("💸 Withdraw %s to %s\n%s\n\nChoose an amount or type it:",
			symbol(f.Token), chat.Code(chat.ShortAddress(f.Recipient)), balanceLine(f.Token))
		kb = percentKeyboard(chat.PrefixWithdrawPercent, chat.DataBackMain)
	case session.StepSubmitting:
		text = fmt.Sprintf("⏳ Sending %s %s to %s and waiting for confirmation...",
			f.Amount, symbol(f.Token), chat.Code(chat.ShortAddress(f.Recipient)))
	}
	return e.show(ctx, chatID, f.Message, withWarning(warning, text), kb)
}

func (e *Engine) withdrawAddress(ctx context.Context, ev chat.Event, f *session.WithdrawFlow) error {
	rerender := func(w string) error { return e.renderWithdraw(ctx, ev.ChatID, f, w) }

	recipient, err := parseRecipient(ev.Text)
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepEnterAddress, func(s *session.WithdrawFlow) error {
		s.Recipient = recipient.String()
		s.Step = session.StepSelectToken
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderWithdraw(ctx, ev.ChatID, next, "")
}

func parseRecipient(text string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(text))
	if err != nil || pk.IsZero() {
		return solana.PublicKey{}, errs.New(errs.CodeValidation, "Invalid Solana address, send a base58 account address")
	}
	return pk, nil
}

func (e *Engine) withdrawToken(ctx context.Context, ev chat.Event, f *session.WithdrawFlow) error {
	rerender := func(w string) error { return e.renderWithdraw(ctx, ev.ChatID, f, w) }

	wallet, err := e.custody.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		return e.fail(ctx, ev.ChatID, f, err)
	}
	ref, err := e.holding(ctx, wallet.Address, ev.Data)
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectToken, func(s *session.WithdrawFlow) error {
		s.Token = &ref
		s.Step = session.StepSelectAmount
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	return e.renderWithdraw(ctx, ev.ChatID, next, "")
}

func (e *Engine) withdrawAmount(ctx context.Context, ev chat.Event, f *session.WithdrawFlow) error {
	rerender := func(w string) error { return e.renderWithdraw(ctx, ev.ChatID, f, w) }

	var (
		amt amount.Amount
		err error
	)
	if ev.IsCallback() {
		pct, ok := chat.Percent(ev.Data, chat.PrefixWithdrawPercent)
		if !ok {
			ignored(ctx, f, ev)
			return nil
		}
		// Withdrawals always floor, 100% included.
		amt, err = amount.Percent(f.Token.Balance(), "", pct, f.Token.Decimals)
		if err == nil {
			amt.UI = amount.FromBaseUnits(amt.Base, f.Token.Decimals)
			if amt.Base.Sign() == 0 {
				err = errs.New(errs.CodeValidation, "Amount rounds to zero")
			}
		}
	} else {
		amt, err = amount.Manual(ev.Text, f.Token.Balance(), f.Token.Decimals)
	}
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}

	next, err := advance(ctx, e.store, ev.ChatID, session.StepSelectAmount, func(s *session.WithdrawFlow) error {
		s.Amount = amt.String()
		s.BaseAmount = amt.Base.String()
		s.Step = session.StepSubmitting
		return nil
	})
	if err != nil {
		return e.settle(ctx, ev.ChatID, f, err, rerender)
	}
	if err := e.renderWithdraw(ctx, ev.ChatID, next, ""); err != nil {
		logger.Warn(ctx, "flow.withdraw", "render", slog.String("err", err.Error()))
	}
	return e.submitWithdraw(ctx, ev.ChatID, next)
}

// submitWithdraw builds the transfer locally, budgets it, signs it through
// custody, sends it to the ledger and waits for confirmation. Every exit
// clears the session.
func (e *Engine) submitWithdraw(ctx context.Context, chatID int64, f *session.WithdrawFlow) error {
	start := time.Now()
	sig, err := e.sendWithdraw(ctx, chatID, f)
	if err != nil {
		return e.fail(ctx, chatID, f, err)
	}

	logger.Info(ctx, "flow.withdraw", "withdraw.confirmed",
		slog.String("mint", f.Token.Mint),
		slog.String("base_units", f.BaseAmount),
		slog.String("signature", sig.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	text := fmt.Sprintf("✅ Withdrawal confirmed!\n\nSent: %s %s\nTo: %s\n\nSignature: %s",
		f.Amount, symbol(f.Token), chat.Code(f.Recipient), chat.Code(sig.String()))
	return e.finish(ctx, chatID, f, text)
}

func (e *Engine) sendWithdraw(ctx context.Context, chatID int64, f *session.WithdrawFlow) (solana.Signature, error) {
	wallet, err := e.custody.GetOrCreateWallet(ctx, chatID)
	if err != nil {
		return solana.Signature{}, err
	}
	from, err := solana.PublicKeyFromBase58(wallet.Address)
	if err != nil {
		return solana.Signature{}, errs.Wrap(errs.CodeInternal, "invalid wallet address", err)
	}
	to, err := parseRecipient(f.Recipient)
	if err != nil {
		return solana.Signature{}, err
	}
	base, ok := amount.ParseBaseUnits(f.BaseAmount)
	if !ok {
		return solana.Signature{}, errs.New(errs.CodeInternal, "withdraw amount missing")
	}

	ixs, err := e.transferInstructions(ctx, from, to, *f.Token, base)
	if err != nil {
		return solana.Signature{}, err
	}
	blockhash, err := e.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	est, err := e.estimator.Prepare(ctx, estimator.Request{
		Instructions: ixs,
		Payer:        from,
		Blockhash:    blockhash,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	signed, err := e.custody.SignTransaction(ctx, wallet.ID, est.Base64)
	if err != nil {
		return solana.Signature{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		return solana.Signature{}, errs.Wrap(errs.CodeUpstream, "custody returned a malformed transaction", err)
	}
	sig, err := e.ledger.SendRaw(ctx, raw)
	if err != nil {
		return solana.Signature{}, err
	}
	logger.Info(ctx, "flow.withdraw", "withdraw.sent",
		slog.String("signature", sig.String()),
		slog.Uint64("units", uint64(est.Units)),
		slog.Uint64("cu_price", est.MicroLamports),
	)
	if err := e.ledger.Confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}
