// Package router dispatches inbound chat events. An active flow owns every
// event except the global navigation callbacks and the bot commands; with no
// flow active, callbacks drive the stateless menus.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/gateway/privy"
	"github.com/m3rciful/tradebot/internal/session"
)

// Flows is the flow engine as seen by the router.
type Flows interface {
	Handle(ctx context.Context, ev chat.Event, st session.State) (bool, error)
	Cancel(ctx context.Context, chatID int64) (bool, error)
	StartSwap(ctx context.Context, ev chat.Event) error
	StartLimitOrder(ctx context.Context, ev chat.Event) error
	StartWithdraw(ctx context.Context, ev chat.Event) error
	ShowHoldings(ctx context.Context, ev chat.Event) error
	ShowOrders(ctx context.Context, ev chat.Event) error
	CancelOrder(ctx context.Context, ev chat.Event, orderKey string) error
}

type Wallets interface {
	GetOrCreateWallet(ctx context.Context, chatID int64) (privy.Wallet, error)
}

// Recorder counts inbound updates by kind; nil is allowed.
type Recorder interface {
	Update(kind string)
}

// Commands handled by Dispatch.
const (
	CommandStart  = "start"
	CommandMenu   = "menu"
	CommandCancel = "cancel"
)

type Router struct {
	store   session.Store
	flows   Flows
	chat    chat.Messenger
	wallets Wallets
	metrics Recorder
}

func New(store session.Store, flows Flows, messenger chat.Messenger, wallets Wallets, metrics Recorder) *Router {
	return &Router{
		store:   store,
		flows:   flows,
		chat:    messenger,
		wallets: wallets,
		metrics: metrics,
	}
}

// Dispatch loads the session and handles one inbound event.
func (r *Router) Dispatch(ctx context.Context, ev chat.Event) error {
	st, _, err := r.store.Get(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("router: load session: %w", err)
	}
	return r.DispatchState(ctx, ev, st)
}

// DispatchState handles ev against st, the session already loaded for it.
func (r *Router) DispatchState(ctx context.Context, ev chat.Event, st session.State) error {
	err := r.dispatch(ctx, ev, st)
	if errors.Is(err, session.ErrSubmitting) {
		return r.chat.Send(ctx, ev.ChatID, busyText, nil)
	}
	return err
}

func (r *Router) dispatch(ctx context.Context, ev chat.Event, st session.State) error {
	if cmd, ok := ev.Command(); ok {
		if handled, err := r.command(ctx, ev, cmd, st); handled {
			return err
		}
	}
	r.count(ev)

	if ev.IsCallback() && chat.IsGlobalNav(ev.Data) {
		// A submitting flow keeps running; navigation itself is stateless.
		if _, err := r.abandon(ctx, ev, st); err != nil && !errors.Is(err, session.ErrSubmitting) {
			return err
		}
		return r.navigate(ctx, ev)
	}

	if handled, err := r.flows.Handle(ctx, ev, st); handled {
		return err
	}

	if !ev.IsCallback() {
		logger.Debug(ctx, "tg", "router.text.idle")
		return nil
	}
	return r.navigate(ctx, ev)
}

// abandon cancels the active flow of st, if any.
func (r *Router) abandon(ctx context.Context, ev chat.Event, st session.State) (bool, error) {
	if st.Active == nil {
		return false, nil
	}
	return r.flows.Cancel(ctx, ev.ChatID)
}

// command runs a bot command. Every command abandons the active flow unless
// its submission has already started.
func (r *Router) command(ctx context.Context, ev chat.Event, cmd string, st session.State) (bool, error) {
	switch cmd {
	case CommandStart, CommandMenu, CommandCancel:
	default:
		return false, nil
	}
	if r.metrics != nil {
		r.metrics.Update("command")
	}

	cancelled, err := r.abandon(ctx, ev, st)
	submitting := errors.Is(err, session.ErrSubmitting)
	if err != nil && !submitting {
		return true, err
	}

	switch cmd {
	case CommandStart:
		return true, r.start(ctx, ev)
	case CommandCancel:
		text := "Nothing to cancel."
		switch {
		case submitting:
			text = busyText
		case cancelled:
			text = "❌ Operation cancelled."
		}
		return true, r.chat.Send(ctx, ev.ChatID, text+"\n\n"+mainMenuText, mainMenu())
	}
	return true, r.chat.Send(ctx, ev.ChatID, mainMenuText, mainMenu())
}

func (r *Router) start(ctx context.Context, ev chat.Event) error {
	wallet, err := r.wallets.GetOrCreateWallet(ctx, ev.ChatID)
	if err != nil {
		logger.Warn(ctx, "tg", "router.start.wallet",
			slog.String("status", "fail"),
			slog.String("err_code", errs.CodeOf(err).String()),
			slog.String("err", err.Error()),
		)
		if serr := r.chat.Send(ctx, ev.ChatID, "❌ "+chat.Escape(err.Error()), nil); serr != nil {
			return serr
		}
		return err
	}
	text := fmt.Sprintf("👋 Welcome!\n\nYour wallet: %s\n\n%s",
		chat.Code(chat.ShortAddress(wallet.Address)), mainMenuText)
	return r.chat.Send(ctx, ev.ChatID, text, mainMenu())
}

// navigate handles menu callbacks when no flow claims the event.
func (r *Router) navigate(ctx context.Context, ev chat.Event) error {
	switch ev.Data {
	case chat.DataTrade, chat.DataBackToTrade:
		return r.show(ctx, ev, tradeMenuText, tradeMenu())
	case chat.DataInfo:
		return r.show(ctx, ev, infoMenuText, infoMenu())
	case chat.DataBackMain, chat.DataNewOperation:
		return r.show(ctx, ev, mainMenuText, mainMenu())
	case chat.DataTradeSwap:
		return r.flows.StartSwap(ctx, ev)
	case chat.DataTradeLimit:
		return r.flows.StartLimitOrder(ctx, ev)
	case chat.DataWithdraw:
		return r.flows.StartWithdraw(ctx, ev)
	case chat.DataHoldings:
		return r.flows.ShowHoldings(ctx, ev)
	case chat.DataOrders:
		return r.flows.ShowOrders(ctx, ev)
	}
	if key, ok := strings.CutPrefix(ev.Data, chat.PrefixCancelOrder); ok && key != "" {
		return r.flows.CancelOrder(ctx, ev, key)
	}
	logger.Debug(ctx, "tg", "router.callback.unknown",
		slog.String("cb_key", ev.Data),
	)
	return nil
}

// show edits the message the button belongs to.
func (r *Router) show(ctx context.Context, ev chat.Event, text string, kb chat.Keyboard) error {
	if ev.Message.IsZero() {
		return r.chat.Send(ctx, ev.ChatID, text, kb)
	}
	return r.chat.Edit(ctx, ev.Message, text, kb)
}

func (r *Router) count(ev chat.Event) {
	if r.metrics == nil {
		return
	}
	if ev.IsCallback() {
		r.metrics.Update("callback")
		return
	}
	r.metrics.Update("text")
}
