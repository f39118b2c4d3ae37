// Package helpers carries per-update state for handlers: the logging
// context and the shared outbound queue.
package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var queue atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs the queue SendText uses; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) { queue.Store(d) }

// SendText queues a plain-text reply to the chat of c behind the chat's
// earlier messages. A full or closed queue falls back to sending inline.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := make([]any, 0, 1)
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	run := func() error { return c.Send(text, args...) }

	d := queue.Load()
	chat := c.Chat()
	if d == nil || chat == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, chat.ID, sender.ActionSend, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("op", string(sender.ActionSend)),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}
