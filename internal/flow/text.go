package flow

import (
	"fmt"
	"strings"

	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"
)

func backButton(data string) chat.Button { return chat.Btn("⬅️ Back", data) }

func successKeyboard() chat.Keyboard {
	return chat.Rows(
		chat.Btn("🔄 New operation", chat.DataNewOperation),
		chat.Btn("🏠 Main menu", chat.DataBackMain),
	)
}

// tokenKeyboard lists up to maxTokenButtons holdings followed by back.
func tokenKeyboard(refs []session.TokenRef, back string) chat.Keyboard {
	if len(refs) > maxTokenButtons {
		refs = refs[:maxTokenButtons]
	}
	buttons := make([]chat.Button, 0, len(refs))
	for _, ref := range refs {
		label := fmt.Sprintf("%s - %s", ref.Symbol, amount.FormatRatPrec(ref.Balance(), 4))
		buttons = append(buttons, chat.Btn(label, ref.Mint))
	}
	return chat.Rows(buttons...).Append([]chat.Button{backButton(back)})
}

// percentKeyboard offers the fixed percentages of the balance.
func percentKeyboard(prefix, back string) chat.Keyboard {
	buttons := make([]chat.Button, 0, len(chat.Percentages))
	for _, p := range chat.Percentages {
		buttons = append(buttons, chat.Btn(fmt.Sprintf("%d%%", p), chat.PercentData(prefix, p)))
	}
	return chat.Grid(buttons, 2).Append([]chat.Button{backButton(back)})
}

func symbol(ref *session.TokenRef) string {
	if ref == nil {
		return "?"
	}
	return chat.Escape(ref.Symbol)
}

func balanceLine(ref *session.TokenRef) string {
	return fmt.Sprintf("Balance: %s %s", amount.FormatRat(ref.Balance()), symbol(ref))
}

func failureText(err error) string {
	return "❌ " + chat.Escape(strings.TrimSpace(err.Error()))
}
