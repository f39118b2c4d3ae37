// Package logger is the structured, context-first logging layer shared by
// the bot transport and the trading flows. Every record carries a component
// and an event name; correlation ids ride on the context.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/tradebot/core/buildinfo"
	coreconfig "github.com/m3rciful/tradebot/core/config"
)

var (
	initOnce sync.Once

	stateMu sync.Mutex
	closed  bool
	out     *sink
	files   []io.Closer

	levelVar slog.LevelVar
	sampler  = newDebugSampler(1, 50)

	root slog.Handler
)

// InitLogger configures the process logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		err = install(cfg)
	})
	return err
}

func install(cfg *coreconfig.Config) error {
	lc := coreconfig.LoggingConfig{}
	if cfg != nil {
		lc = cfg.Logging
	}
	levelVar.Set(parseLevel(lc.Level))
	sampler.set(parseSample(lc.DebugSample))

	targets, closers := openTargets(lc)
	stateMu.Lock()
	out = newSink(targets, 256)
	files = closers
	stateMu.Unlock()

	root = newStructuredHandler(handlerConfig{
		level:    &levelVar,
		out:      out,
		format:   parseFormat(lc),
		keyOrder: parseKeyOrder(lc.KeysOrder),
		caller:   parseCaller(lc.Stacks),
	})
	slog.SetDefault(slog.New(root))

	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", profile(lc)),
	)
	return nil
}

// Shutdown drains queued records and closes the log files.
func Shutdown() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	for _, c := range files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Debug logs a debug-level event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelDebug, component, event, attrs)
}

// Info logs an info-level event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, component, event, attrs)
}

// Warn logs a warn-level event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, component, event, attrs)
}

// Error logs an error-level event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, component, event, attrs)
}

// Log is the level-parameterised form of Debug, Info, Warn and Error.
func Log(ctx context.Context, level slog.Level, component, event string, attrs ...slog.Attr) {
	emit(ctx, level, component, event, attrs)
}

func emit(ctx context.Context, level slog.Level, component, event string, attrs []slog.Attr) {
	h := root
	if h == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !h.Enabled(ctx, level) {
		return
	}
	// emit <- Debug/Info/Warn/Error/Log <- caller
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), level, event, pcs[0])
	r.AddAttrs(slog.String("component", strings.TrimSpace(component)), slog.String("event", event))
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}

// SampleDebug reports whether a high-volume debug event should be logged.
func SampleDebug() bool {
	return sampler.allow()
}

// Took returns the time since start rounded for logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the nearest millisecond; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func parseFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profile(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

// parseCaller maps logging.stacks to the lowest level that gets a caller
// field. Empty or "off" disables it.
func parseCaller(raw string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error", "errors":
		return slog.LevelError
	}
	return nil
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// openTargets returns stdout plus the configured bot and errors files. A
// file that cannot be opened is reported on stderr and skipped.
func openTargets(lc coreconfig.LoggingConfig) ([]target, []io.Closer) {
	targets := []target{{w: os.Stdout, min: slog.LevelDebug}}
	var closers []io.Closer

	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return targets, closers
	}
	open := func(name string, min slog.Level) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("logger: create log dir %s: %v", dir, err)
			return
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logger: open log file %s: %v", path, err)
			return
		}
		targets = append(targets, target{w: f, min: min})
		closers = append(closers, f)
	}
	open(lc.BotFile, slog.LevelDebug)
	open(lc.ErrorsFile, slog.LevelWarn)
	return targets, closers
}
