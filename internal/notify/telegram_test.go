package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramNotify(t *testing.T) {
	sender := new(mockTelegramSender)
	tg := NewTelegram(sender, 4242)
	ctx := context.Background()

	t.Run("SubjectAndBody", func(t *testing.T) {
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 4242 && msg.Text == "Sync fehlgeschlagen\n\nBestellung 1001"
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, tg.Notify(ctx, "Sync fehlgeschlagen", "Bestellung 1001"))
		sender.AssertExpectations(t)
	})

	t.Run("LongTextIsCut", func(t *testing.T) {
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && utf8.RuneCountInString(msg.Text) == telegramMessageLimit
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, tg.Notify(ctx, "x", strings.Repeat("ä", 5000)))
		sender.AssertExpectations(t)
	})

	t.Run("SendError", func(t *testing.T) {
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("forbidden")).Once()

		err := tg.Notify(ctx, "x", "")
		assert.ErrorContains(t, err, "forbidden")
	})
}
