package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramMessageLimit is the maximum text length the Bot API accepts.
const telegramMessageLimit = 4096

// TelegramSender is the part of the bot API used for alerts.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts alerts into one admin chat.
type Telegram struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegram(bot TelegramSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Notify(_ context.Context, subject, body string) error {
	text := subject
	if body != "" {
		text += "\n\n" + body
	}
	if r := []rune(text); len(r) > telegramMessageLimit {
		text = string(r[:telegramMessageLimit-1]) + "…"
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram alert: %w", err)
	}
	return nil
}
