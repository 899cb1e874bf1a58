package telegramimpl

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ousepachn/insta-media-sync/internal/notifier"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger logger.Logger
}

var _ notifier.Client = (*TelegramNotifier)(nil)

func New(opts Opts) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(opts.Config.Telegram.Token)
	if err != nil {
		opts.Logger.Error("Error creating telegram bot", "error", err)
		return nil, err
	}

	return &TelegramNotifier{
		bot:    bot,
		chatID: opts.Config.Telegram.AdminChatID,
		logger: opts.Logger.WithComponent("Notifier"),
	}, nil
}

func (t *TelegramNotifier) NotifyFailure(username, kind, message string) {
	text := fmt.Sprintf("⚠️ %s run failed for @%s\n\n%s", kind, username, message)
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.logger.Error("Failed to send failure notification", "username", username, "error", err)
	}
}
