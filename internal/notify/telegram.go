package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/webscout/deal-weaver/internal/models"
)

// TelegramDispatcher sends deal batches to a Telegram chat
type TelegramDispatcher struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramDispatcher connects to the Telegram API with the given
// bot token and binds the dispatcher to one chat
func NewTelegramDispatcher(token string, chatID int64) (*TelegramDispatcher, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	bot.Debug = false

	logrus.Infof("Telegram notifier authorized as %s", bot.Self.UserName)
	return &TelegramDispatcher{bot: bot, chatID: chatID}, nil
}

// Dispatch sends the whole batch as one message. Empty batches are a
// no-op.
func (d *TelegramDispatcher) Dispatch(deals []models.Deal) error {
	if len(deals) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(d.chatID, FormatBatch(deals))
	msg.DisableWebPagePreview = true
	if _, err := d.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send Telegram notification: %w", err)
	}

	logrus.Debugf("Notification batch of %d deal(s) sent", len(deals))
	return nil
}
