package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/core/telegram/keyboard"
	"github.com/m3rciful/tradebot/core/telegram/middleware"
	"github.com/m3rciful/tradebot/core/telegram/sender"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"

	tele "gopkg.in/telebot.v4"
)

// API is the part of *tele.Bot the messenger calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

var errNotBound = errors.New("bot: messenger used before the bot started")

// Messenger implements chat.Messenger over the Telegram Bot API. Both
// sends and edits go through the sender's per-chat lanes; edits wait for
// their result.
type Messenger struct {
	mu   sync.RWMutex
	api  API
	disp *sender.Dispatcher
}

func NewMessenger() *Messenger { return &Messenger{} }

// Bind attaches the running bot. disp may be nil.
func (m *Messenger) Bind(api API, disp *sender.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api = api
	m.disp = disp
}

func (m *Messenger) bound() (API, *sender.Dispatcher) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.api, m.disp
}

// SendErrors reports the failed async sends.
func (m *Messenger) SendErrors() uint64 {
	_, disp := m.bound()
	if disp == nil {
		return 0
	}
	return disp.ErrorCount()
}

func (m *Messenger) Send(ctx context.Context, chatID int64, text string, kb chat.Keyboard) error {
	api, disp := m.bound()
	if api == nil {
		return errNotBound
	}
	markup := Markup(kb)
	run := func() error {
		_, err := api.Send(tele.ChatID(chatID), text, markdown(markup))
		if isParseError(err) {
			logger.Warn(ctx, "tg", "send.markdown",
				slog.String("status", "fallback"),
				slog.String("err", err.Error()),
			)
			_, err = api.Send(tele.ChatID(chatID), text, &tele.SendOptions{ReplyMarkup: markup})
		}
		return err
	}
	middleware.CountMessage(ctx, markup != nil)
	return m.submit(ctx, disp, chatID, sender.ActionSend, run)
}

// Edit rewrites a flow's message. It waits for the sends already queued
// for the chat so the edit is never overtaken by an older message.
func (m *Messenger) Edit(ctx context.Context, ref session.MessageRef, text string, kb chat.Keyboard) error {
	api, disp := m.bound()
	if api == nil {
		return errNotBound
	}
	markup := Markup(kb)
	msg := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	run := func() error {
		_, err := api.Edit(msg, text, markdown(markup))
		if isParseError(err) {
			logger.Warn(ctx, "tg", "edit.markdown",
				slog.String("status", "fallback"),
				slog.String("err", err.Error()),
			)
			_, err = api.Edit(msg, text, &tele.SendOptions{ReplyMarkup: markup})
		}
		if isNotModified(err) {
			logger.Debug(ctx, "tg", "edit.unchanged",
				slog.Int("message_id", ref.MessageID),
			)
			return nil
		}
		return err
	}
	if err := m.submit(ctx, disp, ref.ChatID, sender.ActionEdit, run); err != nil {
		return err
	}
	middleware.CountMessage(ctx, markup != nil)
	return nil
}

// submit hands run to the dispatcher: sends are fire-and-forget, edits wait
// for their result. A full or closed queue runs it inline.
func (m *Messenger) submit(ctx context.Context, disp *sender.Dispatcher, chatID int64, action sender.Action, run func() error) error {
	if disp == nil {
		return run()
	}
	var err error
	if action == sender.ActionSend {
		err = disp.Enqueue(ctx, chatID, action, run)
	} else {
		err = disp.Do(ctx, chatID, action, run)
	}
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("op", string(action)),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// Markup converts a chat keyboard to raw-data inline buttons.
func Markup(kb chat.Keyboard) *tele.ReplyMarkup {
	rows := make([][]keyboard.Button, 0, len(kb))
	for _, row := range kb {
		r := make([]keyboard.Button, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.Button{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, r)
	}
	return keyboard.Inline(rows...)
}

func markdown(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
}

func isParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
