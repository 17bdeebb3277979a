package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

const (
	callbackHelp     = "help"
	callbackExamples = "examples"
	callbackStats    = "stats"
	callbackInvite   = "invite"
)

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", callbackHelp),
			tgbotapi.NewInlineKeyboardButtonData("💡 Examples", callbackExamples),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 My stats", callbackStats),
			tgbotapi.NewInlineKeyboardButtonData("🤝 Invite friends", callbackInvite),
		),
	)
}
