package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	tghelpers "github.com/m3rciful/tradebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware sets the update's rid and logging context and emits a
// sampled update.received debug line. It runs once per update from the
// global chain.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("update_start", time.Now())
		ctx := tghelpers.BuildContext(c)
		c.Set("rid", logger.RIDFrom(ctx))

		if logger.SampleDebug() {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs,
			slog.String("username", logger.Clip(user.Username, 64)),
			slog.String("lang", user.LanguageCode),
		)
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := SplitCallback(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.Clip(key, 128)),
			slog.String("payload", logger.Clip(payload, 256)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.String("payload", logger.Clip(c.Text(), 256)))
	}
	return attrs
}

// SplitCallback returns the routing key and payload of cb. Data built by
// telebot starts with \f and separates the two with '|'.
func SplitCallback(cb *tele.Callback) (key, payload string) {
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	key, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(key), payload
}
