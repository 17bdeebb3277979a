package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/shortgrab/backend/internal/logging"
	"github.com/shortgrab/backend/internal/metrics"
)

const broadcastPageSize = 500

// Report summarises one broadcast run.
type Report struct {
	Attempted int
	Sent      int
	Failed    int
}

// Broadcaster delivers an administrator message to every registered user.
type Broadcaster struct {
	api      Sender
	users    UserLister
	pace     *rate.Limiter
	pageSize int
}

// NewBroadcaster paces sends so that consecutive messages are at least delay
// apart. A non-positive delay disables pacing.
func NewBroadcaster(api Sender, users UserLister, delay time.Duration) *Broadcaster {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Broadcaster{
		api:      api,
		users:    users,
		pace:     rate.NewLimiter(limit, 1),
		pageSize: broadcastPageSize,
	}
}

// Broadcast sends text to every user. Per-recipient failures are counted and
// skipped; only a failure to list recipients or a cancelled context stops the run.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) (Report, error) {
	ctx, span := logging.StartSpan(ctx, "bot.broadcast")
	defer span.End()

	var report Report

	// Recipients are collected up front so registrations during the run do not shift pages.
	var recipients []int64
	for offset := 0; ; offset += b.pageSize {
		page, err := b.users.ListUsers(ctx, b.pageSize, offset)
		if err != nil {
			span.RecordError(err)
			return report, fmt.Errorf("list broadcast recipients: %w", err)
		}
		for _, user := range page {
			recipients = append(recipients, user.TelegramID)
		}
		if len(page) < b.pageSize {
			break
		}
	}

	logger := logging.FromContext(ctx)
	for _, chatID := range recipients {
		if err := b.pace.Wait(ctx); err != nil {
			span.RecordError(err)
			return report, fmt.Errorf("wait for broadcast slot: %w", err)
		}

		report.Attempted++
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			report.Failed++
			metrics.BroadcastMessagesTotal.WithLabelValues("failed").Inc()
			logger.Debug("broadcast message failed", slog.Int64("recipient", chatID), slog.Any("error", err))
			continue
		}
		report.Sent++
		metrics.BroadcastMessagesTotal.WithLabelValues("sent").Inc()
	}

	logger.Info("broadcast finished",
		slog.Int("attempted", report.Attempted),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
