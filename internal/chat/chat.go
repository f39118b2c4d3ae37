// Package chat holds the transport-neutral shapes exchanged between the
// router, the flows and the Telegram adapter.
package chat

import (
	"context"
	"strings"

	"github.com/m3rciful/tradebot/core/telegram/format"
	"github.com/m3rciful/tradebot/internal/session"
)

// Event is one inbound update: either free text or a button callback.
type Event struct {
	ChatID int64
	UserID int64
	Text   string
	// CallbackID is set for button presses; Data is the raw callback data.
	CallbackID string
	Data       string
	// Message is the message the button was attached to, or the user's own
	// text message.
	Message session.MessageRef
}

// IsCallback reports whether the event is a button press.
func (e Event) IsCallback() bool { return e.CallbackID != "" }

// Command returns the bot command without the leading slash and @mention.
func (e Event) Command() (string, bool) {
	if e.IsCallback() || !strings.HasPrefix(e.Text, "/") {
		return "", false
	}
	cmd := strings.Fields(e.Text)[0][1:]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), cmd != ""
}

type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard as rows of buttons.
type Keyboard [][]Button

func Btn(text, data string) Button { return Button{Text: text, Data: data} }

// Rows places each button on its own row.
func Rows(buttons ...Button) Keyboard {
	kb := make(Keyboard, 0, len(buttons))
	for _, b := range buttons {
		kb = append(kb, []Button{b})
	}
	return kb
}

// Grid splits buttons into rows of up to n.
func Grid(buttons []Button, n int) Keyboard {
	if n <= 1 {
		return Rows(buttons...)
	}
	var kb Keyboard
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		kb = append(kb, buttons[i:end])
	}
	return kb
}

// Append adds rows after kb.
func (kb Keyboard) Append(rows ...[]Button) Keyboard {
	return append(append(Keyboard(nil), kb...), rows...)
}

// Messenger is the outbound side of the transport. Texts use Telegram
// Markdown (v1).
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb Keyboard) error
	Edit(ctx context.Context, ref session.MessageRef, text string, kb Keyboard) error
}

// Escape escapes s for Markdown (v1) text.
func Escape(s string) string { return format.Markdown(s) }

// Code wraps s in an inline code span.
func Code(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

// ShortAddress renders the first and last four characters of an address.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
