package ledger

import (
	"context"

	"github.com/shortgrab/backend/internal/models"
)

// Ledger tracks bot users and their usage counters. Every call is its own
// unit of work scoped by ctx; writes are committed before the call returns.
type Ledger interface {
	// UpsertUser registers telegram users on first contact and merges the
	// non-empty profile fields into the stored row afterwards.
	UpsertUser(ctx context.Context, profile models.Profile) (models.UserAccount, error)
	// IncrementRequests adds one to total_requests. Unknown users are ignored.
	IncrementRequests(ctx context.Context, telegramID int64) error
	// IncrementVideosDownloaded adds one to total_videos_downloaded. Unknown users are ignored.
	IncrementVideosDownloaded(ctx context.Context, telegramID int64) error
	// GetStats returns ErrNotFound for users that never registered.
	GetStats(ctx context.Context, telegramID int64) (models.UserStats, error)
	// ListUsers pages through users, newest registrations first.
	ListUsers(ctx context.Context, limit, offset int) ([]models.UserAccount, error)
	CountUsers(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// MaxPageSize caps ListUsers pages.
const MaxPageSize = 1000

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
