// Package router builds the telebot routes for commands, callbacks and
// text from a telegram.Registry. The global middleware chain set up by
// telegram.RunTelegram applies to every route.
package router

import (
	"context"
	"log/slog"
	"slices"

	"github.com/m3rciful/tradebot/core/logger"
	tg "github.com/m3rciful/tradebot/core/telegram"
	tghelpers "github.com/m3rciful/tradebot/core/telegram/helpers"
	"github.com/m3rciful/tradebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the admin gate.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command, sorted by name.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)

	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		cmd := cmds[name]
		h := cmd.Handler
		if cmd.AdminOnly {
			h = admin(h)
		}
		label := handlerName("", name)
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  func(c tele.Context) error { return summarize(c, label, h) },
		})
	}
	logger.Info(context.Background(), "tg.wire", "routes.commands", slog.Int("count", len(routes)))
	return routes
}

// CallbackOptions sets the last-resort handler for unknown callback keys.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every callback query and routes it by key. Keys
// nobody registered go to the registry's not-found handler.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			cb := c.Callback()
			if cb == nil {
				return nil
			}
			_ = c.Respond()

			key, _ := middleware.SplitCallback(cb)
			name := handlerName("callback", key)
			extras := []slog.Attr{slog.String("cb_key", logger.Clip(key, 64))}
			if h, ok := reg.GetCallback(key); ok {
				return summarize(c, name, h, extras...)
			}
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			if fallback == nil {
				skipped(tghelpers.BuildContext(c), name)
				return nil
			}
			return summarize(c, "callback.dynamic", fallback, extras...)
		},
	}
}

// Conversations reports whether a chat is inside a multi-step flow and
// consumes its input when it is.
type Conversations interface {
	Active(c tele.Context) bool
	Handle(c tele.Context) error
}

// TextOptions sets the handler for text nobody else takes.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes routes plain text: an active flow gets it first, then
// registry commands typed without a menu tap, then the fallbacks.
func TextRoutes(conv Conversations, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		if conv != nil && conv.Active(c) {
			return summarize(c, "flow", conv.Handle)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return summarize(c, handlerName("", key), cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return summarize(c, "text", fb)
			}
		}
		if opts.UnknownText != nil {
			return summarize(c, "text.unknown", opts.UnknownText)
		}
		skipped(tghelpers.BuildContext(c), "text.unknown")
		return nil
	}
	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
