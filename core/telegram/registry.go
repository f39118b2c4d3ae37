package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/tradebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are wrapped with the admin check and never listed.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Registry holds the bot's commands, callbacks and fallbacks. It is filled
// once during wiring; lookups are safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback fallback
// answers "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	var err error
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		err = fmt.Errorf("telegram: command %q must start with /", name)
	case cmd.Handler == nil || cmd.Description == "":
		err = fmt.Errorf("telegram: command %s needs a handler and a description", name)
	}
	if err == nil {
		r.mu.Lock()
		if _, dup := r.commands[name]; dup {
			err = fmt.Errorf("telegram: command %s already registered", name)
		} else {
			r.commands[name] = cmd
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("op", name),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// RegisterCallback maps a callback data key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	var err error
	if key == "" || handler == nil {
		err = fmt.Errorf("telegram: callback %q needs a key and a handler", key)
	} else {
		r.mu.Lock()
		if _, dup := r.callbacks[key]; dup {
			err = fmt.Errorf("telegram: callback %s already registered", key)
		} else {
			r.callbacks[key] = handler
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip",
			slog.String("cb_key", key),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// ListCommands returns the commands sorted by name. visibleOnly drops
// hidden and admin commands, which is what the Telegram menu shows.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, c := range r.commands {
		if visibleOnly && (c.Hidden || c.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: c.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand resolves name or one of the aliases to the canonical
// command. The leading slash is optional.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	name = "/" + strings.TrimPrefix(strings.TrimSpace(name), "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.commands[name]; ok {
		return name, c, true
	}
	for key, c := range r.commands {
		for _, alias := range c.Aliases {
			if "/"+strings.TrimPrefix(alias, "/") == name {
				return key, c, true
			}
		}
	}
	return "", Command{}, false
}

func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for callback keys nobody
// registered. Flow inputs such as mint choices arrive this way.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// CommandSetter is the part of *tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishCommands pushes the visible commands to the Telegram menu.
func PublishCommands(ctx context.Context, bot CommandSetter, reg *Registry) error {
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.Info(ctx, "tg.wire", "register.commands",
		slog.String("status", "ok"),
		slog.Int("count", len(list)),
	)
	return nil
}
