// Package bot adapts the telebot runtime to the router: updates become
// chat.Events and router output goes back through Messenger.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/tradebot/core/buildinfo"
	"github.com/m3rciful/tradebot/core/logger"
	tg "github.com/m3rciful/tradebot/core/telegram"
	tghelpers "github.com/m3rciful/tradebot/core/telegram/helpers"
	"github.com/m3rciful/tradebot/core/telegram/middleware"
	tgrouter "github.com/m3rciful/tradebot/core/telegram/router"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"

	tele "gopkg.in/telebot.v4"
)

// Dispatcher consumes chat events. DispatchState takes the session already
// loaded for the update.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event) error
	DispatchState(ctx context.Context, ev chat.Event, st session.State) error
}

// sessionKey holds the session Active loaded, so Handle does not read it twice.
const sessionKey = "session"

type Adapter struct {
	router    Dispatcher
	store     session.Store
	messenger *Messenger
}

func NewAdapter(router Dispatcher, store session.Store, messenger *Messenger) *Adapter {
	return &Adapter{router: router, store: store, messenger: messenger}
}

// Fixed callback keys get their own handler names in the summaries; flow
// inputs such as mints and percentages reach Handle through the fallback.
var callbackKeys = []string{
	chat.DataTrade, chat.DataInfo, chat.DataWithdraw,
	chat.DataBackMain, chat.DataBackToTrade,
	chat.DataTradeSwap, chat.DataTradeLimit,
	chat.DataHoldings, chat.DataOrders, chat.DataNewOperation,
	chat.DataLimitBuy, chat.DataLimitSell,
}

// Registry declares the bot's commands and callbacks.
func (a *Adapter) Registry() (*tg.Registry, error) {
	reg := tg.NewRegistry()
	errs := []error{
		reg.RegisterCommand("/start", tg.Command{Handler: a.Handle, Description: "Open your wallet and the main menu"}),
		reg.RegisterCommand("/menu", tg.Command{Handler: a.Handle, Description: "Show the main menu"}),
		reg.RegisterCommand("/cancel", tg.Command{Handler: a.Handle, Description: "Cancel the current operation"}),
		reg.RegisterCommand("/status", tg.Command{Handler: a.status, Description: "Runtime status", AdminOnly: true, Hidden: true}),
	}
	for _, key := range callbackKeys {
		errs = append(errs, reg.RegisterCallback(key, a.Handle))
	}
	reg.SetCallbackNotFound(a.Handle)
	reg.SetTextFallback(a.Handle)
	return reg, errors.Join(errs...)
}

// Routes wires commands, callbacks and text through the shared route builders.
func (a *Adapter) Routes(reg *tg.Registry, adminID int64) []tg.Route {
	routes := tgrouter.CommandRoutes(reg, tgrouter.CommandRouteOptions{AdminID: adminID})
	routes = append(routes, tgrouter.CallbackRoute(reg, tgrouter.CallbackOptions{}))
	return append(routes, tgrouter.TextRoutes(a, reg, tgrouter.TextOptions{})...)
}

// Active reports whether the chat has a flow in progress and keeps the
// loaded session for Handle.
func (a *Adapter) Active(c tele.Context) bool {
	if c.Chat() == nil {
		return false
	}
	ctx := tghelpers.BuildContext(c)
	st, _, err := a.store.Get(ctx, c.Chat().ID)
	if err != nil {
		logger.Warn(ctx, "session", "session.get",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return false
	}
	c.Set(sessionKey, st)
	return st.Active != nil
}

// Handle converts the update and dispatches it.
func (a *Adapter) Handle(c tele.Context) error {
	ev, ok := Event(c)
	if !ok {
		return nil
	}
	ctx := middleware.WithCounters(tghelpers.BuildContext(c), middleware.CountersOf(c))
	if st, ok := c.Get(sessionKey).(session.State); ok {
		return a.router.DispatchState(ctx, ev, st)
	}
	return a.router.Dispatch(ctx, ev)
}

func (a *Adapter) status(c tele.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "version: %s\ncommit: %s\n", buildinfo.Version, buildinfo.Commit)
	if buildinfo.Date != "" {
		fmt.Fprintf(&b, "built: %s\n", buildinfo.Date)
	}
	fmt.Fprintf(&b, "send errors: %d", a.messenger.SendErrors())
	return tghelpers.SendText(c, b.String())
}

// Event converts a message or callback update. Updates without a chat are
// dropped.
func Event(c tele.Context) (chat.Event, bool) {
	ch := c.Chat()
	if ch == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{ChatID: ch.ID}
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
	}
	if cb := c.Callback(); cb != nil {
		if cb.ID == "" {
			return chat.Event{}, false
		}
		ev.CallbackID = cb.ID
		ev.Data = cb.Data
		if cb.Message != nil {
			ev.Message = ref(cb.Message, ch.ID)
		}
		return ev, true
	}
	msg := c.Message()
	if msg == nil {
		return chat.Event{}, false
	}
	ev.Text = strings.TrimSpace(msg.Text)
	ev.Message = ref(msg, ch.ID)
	return ev, true
}

func ref(m *tele.Message, chatID int64) session.MessageRef {
	if m.Chat != nil {
		chatID = m.Chat.ID
	}
	return session.MessageRef{ChatID: chatID, MessageID: m.ID}
}
