package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/ledger"
	"github.com/shortgrab/backend/internal/logging"
	"github.com/shortgrab/backend/internal/models"
)

const referralPrefix = "ref_"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		b.reply(ctx, chatID, helpText)
	case "examples":
		b.reply(ctx, chatID, examplesText)
	case "privacy":
		b.reply(ctx, chatID, privacyText)
	case "stats":
		b.handleStats(ctx, chatID, msg.From.ID)
	case "admin":
		b.handleAdmin(ctx, msg)
	default:
		b.reply(ctx, chatID, textUnknownCmd)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	logger := logging.FromContext(ctx)

	if referrer, ok := parseReferral(msg.CommandArguments()); ok {
		logger.Info("referral start", slog.Int64("referrer_id", referrer))
	}

	name := msg.From.FirstName
	if _, err := b.users.UpsertUser(ctx, profileFrom(msg.From)); err != nil {
		logger.Error("failed to register user", slog.Any("error", err))
	}

	welcome := tgbotapi.NewMessage(msg.Chat.ID, welcomeText(name, b.cfg.BotName))
	welcome.ReplyMarkup = mainMenu()
	b.send(ctx, welcome)
}

func (b *Bot) handleStats(ctx context.Context, chatID, telegramID int64) {
	stats, err := b.users.GetStats(ctx, telegramID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		b.reply(ctx, chatID, textStatsNotFound)
	case err != nil:
		logging.FromContext(ctx).Error("failed to load stats", slog.Any("error", err))
		b.reply(ctx, chatID, textStatsFailed)
	default:
		b.reply(ctx, chatID, statsText(stats, b.now()))
	}
}

func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message) {
	logger := logging.FromContext(ctx)
	chatID := msg.Chat.ID

	if !b.isAdmin(msg.From.ID) {
		logger.Warn("admin command rejected")
		b.reply(ctx, chatID, textNotAdmin)
		return
	}

	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		count, err := b.users.CountUsers(ctx)
		if err != nil {
			logger.Error("failed to count users", slog.Any("error", err))
		}
		b.reply(ctx, chatID, adminUsageText(count))
		return
	}

	report, err := b.broadcaster.Broadcast(ctx, text)
	if err != nil {
		logger.Error("broadcast stopped", slog.Any("error", err))
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ Broadcast stopped early: %v\n\n%s", err, broadcastReportText(report)))
		return
	}
	b.reply(ctx, chatID, broadcastReportText(report))
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	logger := logging.FromContext(ctx)

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		logger.Warn("answer callback failed", slog.Any("error", err))
	}
	if query.Message == nil || query.Message.Chat == nil || query.From == nil {
		return
	}
	chatID := query.Message.Chat.ID
	defer b.touch(ctx, query.From)

	switch query.Data {
	case callbackHelp:
		b.reply(ctx, chatID, helpText)
	case callbackExamples:
		b.reply(ctx, chatID, examplesText)
	case callbackStats:
		b.handleStats(ctx, chatID, query.From.ID)
	case callbackInvite:
		b.reply(ctx, chatID, inviteText(b.inviteLink(query.From.ID)))
	default:
		logger.Debug("unknown callback", slog.String("data", query.Data))
	}
}

func (b *Bot) inviteLink(telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", b.cfg.BotUsername, referralPrefix, telegramID)
}

func parseReferral(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, referralPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, referralPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func profileFrom(user *tgbotapi.User) models.Profile {
	return models.Profile{
		TelegramID:   user.ID,
		Username:     user.UserName,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		LanguageCode: user.LanguageCode,
	}
}
