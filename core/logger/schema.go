package logger

import "strings"

// Level names written to the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// status values are free-form but these spellings are canonical.
var statusNames = map[string]string{
	"ok":           "ok",
	"success":      "ok",
	"fail":         "fail",
	"failed":       "fail",
	"error":        "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
	"canceled":     "cancelled",
	"fallback":     "fallback",
	"stale":        "stale",
}

var cacheNames = map[string]string{
	"hit":     "hit",
	"miss":    "miss",
	"refresh": "refresh",
	"stale":   "stale",
}

// outcomeNames covers handler results and flow terminations. Anything else
// is dropped from the record.
var outcomeNames = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"rate_limited": "rate_limited",
	"success":      "success",
	"failure":      "failure",
	"cancelled":    "cancelled",
	"canceled":     "cancelled",
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if v, ok := levelNames[strings.ToLower(level)]; ok {
		return v
	}
	return strings.ToUpper(level)
}

// lookup returns the canonical spelling of v in names.
func lookup(names map[string]string, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	c, ok := names[v]
	if !ok {
		return v, false
	}
	return c, true
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"outcome",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"flow",
	"step",
	"operation",
	"op",
	"cb_key",
	"duration_ms",
	"wallet",
	"mint",
	"input_mint",
	"output_mint",
	"amount",
	"base_units",
	"trigger_price",
	"order_key",
	"request_id",
	"signature",
	"units",
	"cu_price",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"http_code",
	"messages",
	"kb",
	"count",
	"cache",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"caller",
}
