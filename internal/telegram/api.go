package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the live bot-API Sender.
type API struct {
	bot *tgbotapi.BotAPI
}

func NewAPI(token string) (*API, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &API{bot: bot}, nil
}

func (a *API) SendMessage(chatID int64, text string) error {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// BotUsername reports the authenticated bot account name.
func (a *API) BotUsername() string {
	return a.bot.Self.UserName
}
