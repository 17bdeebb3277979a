package bot

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/logging"
	"github.com/shortgrab/backend/internal/metrics"
	"github.com/shortgrab/backend/internal/videos"
)

// extractLink returns the first whitespace-separated token of text that is a
// supported video link.
func extractLink(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		if videos.IsVideoURL(field) {
			return field, true
		}
	}
	return "", false
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message, link string) {
	ctx, span := logging.StartSpan(ctx, "bot.handle_link")
	defer span.End()

	logger := logging.FromContext(ctx)
	chatID := msg.Chat.ID
	telegramID := msg.From.ID

	if !b.limiter.Allow(telegramID) {
		metrics.ThrottledTotal.Inc()
		logger.Info("link request throttled")
		b.reply(ctx, chatID, textSlowDown)
		return
	}

	if _, err := b.users.UpsertUser(ctx, profileFrom(msg.From)); err != nil {
		logger.Error("failed to register user", slog.Any("error", err))
	}
	if err := b.users.IncrementRequests(ctx, telegramID); err != nil {
		logger.Error("failed to count request", slog.Any("error", err))
	}

	var statusID int
	if status, ok := b.send(ctx, tgbotapi.NewMessage(chatID, textDownloading)); ok {
		statusID = status.MessageID
	}

	platform := string(videos.DetectPlatform(link))
	started := time.Now()
	result := b.videos.Acquire(ctx, videos.Request{URL: link, RequestedAt: b.now()})
	metrics.AcquisitionDuration.WithLabelValues(platform).Observe(time.Since(started).Seconds())

	switch r := result.(type) {
	case videos.Completed:
		metrics.AcquisitionsTotal.WithLabelValues(platform, "completed").Inc()
		b.deliver(ctx, chatID, statusID, telegramID, r)
	case videos.Failed:
		metrics.AcquisitionsTotal.WithLabelValues(platform, string(r.Reason)).Inc()
		logger.Info("acquisition failed", slog.String("reason", string(r.Reason)), slog.String("detail", r.Detail))
		span.RecordError(errors.New(r.Detail))
		b.updateStatus(ctx, chatID, statusID, failureText(r.Reason, b.videos.MaxDurationSeconds()))
	default:
		logger.Error("unexpected acquisition result", slog.Any("result", result))
		b.updateStatus(ctx, chatID, statusID, failureText(videos.KindUnknown, b.videos.MaxDurationSeconds()))
	}
}

// deliver uploads a completed download and removes the local file afterwards,
// unless the archive accepted it.
func (b *Bot) deliver(ctx context.Context, chatID int64, statusID int, telegramID int64, done videos.Completed) {
	logger := logging.FromContext(ctx).With(slog.String("file", done.FilePath))

	archived := false
	defer func() {
		if archived {
			return
		}
		if err := os.Remove(done.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove downloaded file", slog.Any("error", err))
		}
	}()

	info, err := os.Stat(done.FilePath)
	if err != nil {
		logger.Error("downloaded file missing", slog.Any("error", err))
		metrics.DeliveriesTotal.WithLabelValues(deliveryFailed.String()).Inc()
		b.updateStatus(ctx, chatID, statusID, deliveryFailureText(deliveryFailed, b.cfg.MaxUploadBytes))
		return
	}
	if info.Size() > b.cfg.MaxUploadBytes {
		logger.Info("video exceeds upload limit", slog.Int64("size", info.Size()))
		metrics.DeliveriesTotal.WithLabelValues(deliveryTooLarge.String()).Inc()
		b.updateStatus(ctx, chatID, statusID, deliveryFailureText(deliveryTooLarge, b.cfg.MaxUploadBytes))
		return
	}

	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(done.FilePath))
	video.Caption = caption(done.Title)
	video.SupportsStreaming = true
	if _, err := b.api.Send(video); err != nil {
		kind := classifyDelivery(err)
		logger.Warn("video upload failed", slog.String("outcome", kind.String()), slog.Any("error", err))
		metrics.DeliveriesTotal.WithLabelValues(kind.String()).Inc()
		b.updateStatus(ctx, chatID, statusID, deliveryFailureText(kind, b.cfg.MaxUploadBytes))
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("sent").Inc()

	if err := b.users.IncrementVideosDownloaded(ctx, telegramID); err != nil {
		logger.Error("failed to count delivered video", slog.Any("error", err))
	}

	if statusID != 0 {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, statusID)); err != nil {
			logger.Debug("failed to delete status message", slog.Any("error", err))
		}
	}

	if b.archive != nil {
		if err := b.archive.Enqueue(ctx, done.FilePath); err != nil {
			logger.Warn("failed to queue video for archive", slog.Any("error", err))
		} else {
			archived = true
		}
	}
}

// updateStatus replaces the progress message with text, or sends text as a
// new message when there is nothing to edit.
func (b *Bot) updateStatus(ctx context.Context, chatID int64, statusID int, text string) {
	if statusID != 0 {
		if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, statusID, text)); err == nil {
			return
		}
	}
	b.reply(ctx, chatID, text)
}
