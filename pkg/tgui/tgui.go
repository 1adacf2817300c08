// Package tgui holds small helpers for Telegram inline keyboards: a
// keyboard builder and a "scope:action:payload" callback-data codec.
package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends one row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the built reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button. Data goes out verbatim; build it with
// tgui.Data so it round-trips through tgui.Split.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Confirm builds the common two-button yes/no keyboard.
func Confirm(yes, no tele.Btn) *tele.ReplyMarkup {
	return NewInline().Row(yes, no).Markup()
}
