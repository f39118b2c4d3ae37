package logger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type ctxKey int

const (
	keyRID ctxKey = iota
	keyUpdateID
	keyUserID
	keyChatID
	keyHandler
	keyFlow
)

func withValue(ctx context.Context, key ctxKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func valueOf[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, _ := ctx.Value(key).(T)
	return v
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withValue(ctx, keyRID, rid)
}

// RIDFrom returns the correlation id, or "".
func RIDFrom(ctx context.Context) string { return valueOf[string](ctx, keyRID) }

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = withValue(ctx, keyUpdateID, updateID)
	ctx = withValue(ctx, keyUserID, userID)
	return withValue(ctx, keyChatID, chatID)
}

func UpdateIDFrom(ctx context.Context) int   { return valueOf[int](ctx, keyUpdateID) }
func UserIDFrom(ctx context.Context) int64   { return valueOf[int64](ctx, keyUserID) }
func ChatIDFrom(ctx context.Context) int64   { return valueOf[int64](ctx, keyChatID) }
func HandlerFrom(ctx context.Context) string { return valueOf[string](ctx, keyHandler) }

// WithHandler names the route serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return withValue(ctx, keyHandler, handler)
}

// WithFlow tags records emitted below ctx with the active flow kind, so
// gateway and ledger events can be tied back to a swap, order or
// withdrawal.
func WithFlow(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return withValue(ctx, keyFlow, kind)
}

// FlowFrom returns the flow kind set by WithFlow, or "".
func FlowFrom(ctx context.Context) string { return valueOf[string](ctx, keyFlow) }

// BuildRID formats the correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 segments.
// Anything else is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// contextFields lists the correlation fields carried by ctx.
func contextFields(ctx context.Context, add func(key string, v any)) {
	if ctx == nil {
		return
	}
	if v := RIDFrom(ctx); v != "" {
		add("rid", v)
	}
	if v := UpdateIDFrom(ctx); v != 0 {
		add("update_id", int64(v))
	}
	if v := UserIDFrom(ctx); v != 0 {
		add("user_id", v)
	}
	if v := ChatIDFrom(ctx); v != 0 {
		add("chat_id", v)
	}
	if v := HandlerFrom(ctx); v != "" {
		add("handler", v)
	}
	if v := FlowFrom(ctx); v != "" {
		add("flow", v)
	}
}
