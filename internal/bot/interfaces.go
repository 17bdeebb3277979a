package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/models"
	"github.com/shortgrab/backend/internal/videos"
)

// Sender is the subset of *tgbotapi.BotAPI used by the bot.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Acquirer runs the video acquisition pipeline.
type Acquirer interface {
	Acquire(ctx context.Context, req videos.Request) videos.Result
	MaxDurationSeconds() int
}

var _ Acquirer = (*videos.Pipeline)(nil)

// Archiver takes ownership of a delivered file and keeps a copy of it. The
// caller still owns the file when Enqueue fails.
type Archiver interface {
	Enqueue(ctx context.Context, localPath string) error
}

// UserLister pages through registered users.
type UserLister interface {
	ListUsers(ctx context.Context, limit, offset int) ([]models.UserAccount, error)
}
