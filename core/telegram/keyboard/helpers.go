// Package keyboard builds inline reply markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. With an empty Unique the callback data is
// Data verbatim; otherwise telebot sends "\f<unique>|<data>".
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Inline lays rows out as an inline keyboard, skipping empty rows. It
// returns nil when nothing is left, which removes the keyboard on edit.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
