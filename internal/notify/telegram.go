package notify

import (
	"context"
	"fmt"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel posts every notification to the operators chat.
type TelegramChannel struct {
	bot    botSender
	chatID int64
}

func NewTelegramChannel(token string, chatID int64) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify.telegram: %w", err)
	}

	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(_ context.Context, n Notification) error {
	msg := tgbotapi.NewMessage(c.chatID, fmt.Sprintf("[%s] %s\n%s", n.Kind, n.Subject, n.Body))

	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("notify.telegram: %w", err)
	}

	return nil
}
