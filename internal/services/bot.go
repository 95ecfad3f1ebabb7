package services

import (
	"fmt"
	"os"
	"time"

	tele "gopkg.in/telebot.v3"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"minetap/internal/models"
)

const (
	textStart = `⛏️ Welcome to minetap!

Start a mining session, invite friends and watch your rate climb.

🚀 Each actively mining friend boosts your rate by 10%.
`

	textMiningComplete = `⛏️ Your mining session is complete!

Claim your tokens now. Claiming starts your next session right away.`
)

type Bot struct {
	token string
}

func NewBot(token string) (*Bot, error) {
	return &Bot{token}, nil
}

func (bot *Bot) ValidateInitData(dataStr string) (*models.UserFromAuth, error) {
	err := initdata.Validate(dataStr, bot.token, 0)
	if err != nil {
		return nil, err
	}

	data, err := initdata.Parse(dataStr)
	if err != nil {
		return nil, err
	}

	return &models.UserFromAuth{
		ID:           data.User.ID,
		Username:     data.User.Username,
		FirstName:    data.User.FirstName,
		LastName:     data.User.LastName,
		IsBot:        data.User.IsBot,
		IsPremium:    data.User.IsPremium,
		LanguageCode: data.User.LanguageCode,
		PhotoURL:     data.User.PhotoURL,
	}, nil
}

func (bot *Bot) SendMsg(chatID int64, text string) error {
	pref := tele.Settings{
		Token:  bot.token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return err
	}

	_, err = b.Send(&tele.User{ID: chatID}, text, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		ReplyMarkup: &tele.ReplyMarkup{
			InlineKeyboard: [][]tele.InlineButton{
				{{Text: "⛏️ Mine Now", WebApp: &tele.WebApp{URL: os.Getenv("TELEGRAM_WEB_APP_URL")}}},
				{{Text: "🔊 Latest news", URL: os.Getenv("TELEGRAM_ANNOUNCEMENT_URL")}},
			},
		},
	})

	return err
}

func (bot *Bot) SendWelcomeMsg(chatID int64) error {
	return bot.SendMsg(chatID, textStart)
}

func (bot *Bot) SendMiningCompleteMsg(chatID int64) error {
	return bot.SendMsg(chatID, textMiningComplete)
}

func (bot *Bot) SendClaimMsg(chatID int64, amount float64) error {
	return bot.SendMsg(chatID, fmt.Sprintf("💰 You claimed %.4f tokens. A new mining session is already running!", amount))
}
