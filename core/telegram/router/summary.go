package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/core/netutil"
	tghelpers "github.com/m3rciful/tradebot/core/telegram/helpers"
	"github.com/m3rciful/tradebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summarize runs fn as handler name and logs one handler.handled line with
// the messages it produced and how it ended.
func summarize(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := fn(c)

	msgs, kb := middleware.GetCounters(c)
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("outcome", "ok"),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs[0] = slog.String("status", "fail")
		attrs[1] = slog.String("outcome", "fail")
		attrs = append(attrs,
			slog.String("err", logger.Clip(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.Log(ctx, level, "tg", "handler.handled", append(attrs, extras...)...)
	return err
}

// skipped logs an update nobody handled.
func skipped(ctx context.Context, name string) {
	logger.Info(ctx, "tg", "handler.handled",
		slog.String("status", "skip"),
		slog.String("outcome", "ok"),
		slog.String("handler", name),
	)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(kind, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	key = strings.ReplaceAll(key, " ", "_")
	if key == "" {
		key = "unknown"
	}
	if kind == "" {
		return key
	}
	return kind + "." + key
}

// errorCode prefers a Code() string anywhere in the chain, then the
// transport failure kind.
func errorCode(err error) string {
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		if code := strings.TrimSpace(coder.Code()); code != "" {
			return code
		}
	}
	if k := netutil.Classify(err); k != netutil.KindOther {
		return string(k)
	}
	return "internal"
}
