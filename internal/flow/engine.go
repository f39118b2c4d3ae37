// Package flow implements the Swap, LimitOrder and Withdraw conversations.
//
// Every transition runs inside session.Store.Update and first checks that
// the stored flow is still at the step the input was meant for, so stale
// or duplicated input is dropped instead of moving a flow backward. Input
// errors (errs.Retryable) re-render the current step; anything else clears
// the session and reports the error on the flow's message.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/estimator"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/gateway/privy"
	"github.com/m3rciful/tradebot/internal/session"
)

// Custody resolves and signs with the chat's managed wallet.
type Custody interface {
	GetOrCreateWallet(ctx context.Context, chatID int64) (privy.Wallet, error)
	SignTransaction(ctx context.Context, walletID, txBase64 string) (string, error)
}

// Trading is the quote, order and market data provider.
type Trading interface {
	Holdings(ctx context.Context, address string) (jupiter.Holdings, error)
	Order(ctx context.Context, req jupiter.OrderRequest) (jupiter.Order, error)
	Execute(ctx context.Context, signedTx, requestID string) (jupiter.Execution, error)
	CreateOrder(ctx context.Context, req jupiter.CreateOrderRequest) (jupiter.Prepared, error)
	ExecuteTrigger(ctx context.Context, signedTx, requestID string) (jupiter.Execution, error)
	CancelOrder(ctx context.Context, maker, orderKey string) (jupiter.Prepared, error)
	ActiveOrders(ctx context.Context, user string) ([]jupiter.TriggerOrder, error)
	Price(ctx context.Context, mint string) (*big.Rat, error)
	Prices(ctx context.Context, mints []string) (map[string]*big.Rat, error)
}

// Directory resolves a symbol or mint to token metadata.
type Directory interface {
	Resolve(ctx context.Context, query string) (jupiter.Token, bool, error)
}

// Ledger is the subset of the RPC node used for direct transfers.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountOwner(ctx context.Context, account solana.PublicKey) (solana.PublicKey, error)
	SendRaw(ctx context.Context, raw []byte) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) error
}

// Estimator budgets compute for locally built transactions.
type Estimator interface {
	Prepare(ctx context.Context, req estimator.Request) (estimator.Estimate, error)
}

// Recorder counts flow outcomes; nil is allowed.
type Recorder interface {
	FlowOutcome(flow, outcome string)
}

type Deps struct {
	Store     session.Store
	Chat      chat.Messenger
	Custody   Custody
	Trading   Trading
	Directory Directory
	Ledger    Ledger
	Estimator Estimator
	Metrics   Recorder
}

type Engine struct {
	store     session.Store
	chat      chat.Messenger
	custody   Custody
	trading   Trading
	directory Directory
	ledger    Ledger
	estimator Estimator
	metrics   Recorder
}

func New(d Deps) *Engine {
	return &Engine{
		store:     d.Store,
		chat:      d.Chat,
		custody:   d.Custody,
		trading:   d.Trading,
		directory: d.Directory,
		ledger:    d.Ledger,
		estimator: d.Estimator,
		metrics:   d.Metrics,
	}
}

// errStale marks input addressed to a step the flow has already left.
var errStale = errors.New("flow: stale input")

// Handle feeds ev to the active flow of st. It reports false when st has no
// active flow.
func (e *Engine) Handle(ctx context.Context, ev chat.Event, st session.State) (bool, error) {
	if st.Active != nil {
		ctx = logger.WithFlow(ctx, string(st.Active.Kind()))
	}
	switch f := st.Active.(type) {
	case *session.SwapFlow:
		return true, e.handleSwap(ctx, ev, f)
	case *session.LimitOrderFlow:
		return true, e.handleLimit(ctx, ev, f)
	case *session.WithdrawFlow:
		return true, e.handleWithdraw(ctx, ev, f)
	}
	return false, nil
}

// Cancel clears the active flow of chatID. A flow whose submission has
// started keeps running; Cancel leaves it and returns session.ErrSubmitting.
func (e *Engine) Cancel(ctx context.Context, chatID int64) (bool, error) {
	var cancelled session.Flow
	_, err := e.store.Update(ctx, chatID, func(s *session.State) error {
		switch {
		case s.Active == nil:
			return errStale
		case s.Submitting():
			return session.ErrSubmitting
		}
		cancelled = s.Active
		s.Clear()
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		return false, nil
	case err != nil:
		return false, err
	}
	ctx = logger.WithFlow(ctx, string(cancelled.Kind()))
	logger.Info(ctx, component(cancelled.Kind()), "flow.cancel",
		slog.String("step", string(cancelled.Current())),
	)
	e.outcome(ctx, cancelled.Kind(), "cancelled")
	return true, nil
}

// start replaces whatever flow chatID has with f, unless that flow is
// already submitting.
func (e *Engine) start(ctx context.Context, chatID int64, f session.Flow) error {
	ctx = logger.WithFlow(ctx, string(f.Kind()))
	_, err := e.store.Update(ctx, chatID, func(s *session.State) error {
		if s.Submitting() {
			return session.ErrSubmitting
		}
		s.ChatID = chatID
		s.Start(f)
		return nil
	})
	if err == nil {
		logger.Info(ctx, component(f.Kind()), "flow.start",
			slog.String("step", string(f.Current())),
		)
	}
	return err
}

// advance applies fn to the active flow if it is an F still at step want.
func advance[F session.Flow](ctx context.Context, store session.Store, chatID int64, want session.Step, fn func(F) error) (F, error) {
	var out F
	_, err := store.Update(ctx, chatID, func(s *session.State) error {
		f, ok := s.Active.(F)
		if !ok || f.Current() != want {
			return errStale
		}
		if err := fn(f); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		var zero F
		return zero, err
	}
	return out, nil
}

// settle routes a step error: stale input is dropped, retryable errors
// re-render the step with a warning, everything else ends the flow.
func (e *Engine) settle(ctx context.Context, chatID int64, f session.Flow, err error, rerender func(warning string) error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStale):
		logger.Debug(ctx, component(f.Kind()), "flow.stale",
			slog.String("step", string(f.Current())),
		)
		return nil
	case errs.Retryable(err):
		logger.Info(ctx, component(f.Kind()), "flow.retry",
			slog.String("step", string(f.Current())),
			slog.String("err_code", errs.CodeOf(err).String()),
			slog.String("err", err.Error()),
		)
		return rerender(err.Error())
	}
	return e.fail(ctx, chatID, f, err)
}

// release clears the session if f is still its active flow: same kind,
// step and message. A newer flow started meanwhile is left alone.
func (e *Engine) release(ctx context.Context, chatID int64, f session.Flow) {
	_, err := e.store.Update(ctx, chatID, func(s *session.State) error {
		cur := s.Active
		if cur == nil || cur.Kind() != f.Kind() || cur.Current() != f.Current() || cur.Prompt() != f.Prompt() {
			return errStale
		}
		s.Clear()
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		logger.Debug(ctx, "session", "session.release.skip",
			slog.String("flow", string(f.Kind())),
			slog.String("step", string(f.Current())),
		)
	case err != nil:
		logger.Error(ctx, "session", "session.release",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

// fail clears the session and reports err on the flow's message.
func (e *Engine) fail(ctx context.Context, chatID int64, f session.Flow, err error) error {
	e.release(ctx, chatID, f)
	e.outcome(ctx, f.Kind(), "failure")
	logger.Warn(ctx, component(f.Kind()), "flow.fail",
		slog.String("step", string(f.Current())),
		slog.String("err_code", errs.CodeOf(err).String()),
		slog.String("err", err.Error()),
	)
	return e.show(ctx, chatID, f.Prompt(), failureText(err), successKeyboard())
}

// finish clears the session after a successful submission.
func (e *Engine) finish(ctx context.Context, chatID int64, f session.Flow, text string) error {
	e.release(ctx, chatID, f)
	e.outcome(ctx, f.Kind(), "success")
	return e.show(ctx, chatID, f.Prompt(), text, successKeyboard())
}

// show edits the flow's message, sending a new one when there is none.
func (e *Engine) show(ctx context.Context, chatID int64, ref session.MessageRef, text string, kb chat.Keyboard) error {
	if ref.IsZero() {
		return e.chat.Send(ctx, chatID, text, kb)
	}
	return e.chat.Edit(ctx, ref, text, kb)
}

// outcome records how a flow ended, in the metrics and as flow.end.
func (e *Engine) outcome(ctx context.Context, k session.Kind, outcome string) {
	logger.Info(ctx, component(k), "flow.end", slog.String("outcome", outcome))
	if e.metrics != nil {
		e.metrics.FlowOutcome(string(k), outcome)
	}
}

func component(k session.Kind) string {
	switch k {
	case session.KindSwap:
		return "flow.swap"
	case session.KindLimitOrder:
		return "flow.limit"
	case session.KindWithdraw:
		return "flow.withdraw"
	}
	return "flow"
}

func withWarning(warning, text string) string {
	if warning == "" {
		return text
	}
	return "⚠️ " + chat.Escape(warning) + "\n\n" + text
}
