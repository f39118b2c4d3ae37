package helpers

import (
	"context"

	"github.com/m3rciful/tradebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxKey is where the per-update logging context lives on tele.Context.
const ctxKey = "tradebot.ctx"

// StoreContext remembers ctx on c for later handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the logging context of the update in c, creating
// and storing it on first use. It carries the rid and the update, user and
// chat ids.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	ctx := context.Background()
	if c == nil {
		return ctx
	}

	updateID := c.Update().ID
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx = logger.WithUpdateMeta(logger.WithRID(ctx, rid), updateID, userID, chatID)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update's context with the handler serving it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
