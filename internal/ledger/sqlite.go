package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shortgrab/backend/internal/models"
)

const sqliteUserColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
            COALESCE(language_code, ''), total_requests, total_videos_downloaded, created_at, updated_at, last_activity`

// SQLiteLedger is the single-node ledger used when PostgreSQL is not configured.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteLedger constructs a ledger on an open SQLite handle.
func NewSQLiteLedger(handle *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: handle, now: utcNow}
}

// WithNowFunc allows tests to override the time source.
func (l *SQLiteLedger) WithNowFunc(now func() time.Time) {
	l.now = now
}

// UpsertUser inserts the user or merges the supplied profile into the existing row.
func (l *SQLiteLedger) UpsertUser(ctx context.Context, profile models.Profile) (models.UserAccount, error) {
	if profile.TelegramID <= 0 {
		return models.UserAccount{}, ErrInvalidTelegramID
	}

	now := l.now()
	if _, err := l.db.ExecContext(ctx, `
        INSERT INTO users (telegram_id, username, first_name, last_name, language_code,
                           total_requests, total_videos_downloaded, created_at, updated_at, last_activity)
        VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), 0, 0, ?, ?, ?)
        ON CONFLICT (telegram_id) DO UPDATE SET
            username = COALESCE(excluded.username, users.username),
            first_name = COALESCE(excluded.first_name, users.first_name),
            last_name = COALESCE(excluded.last_name, users.last_name),
            language_code = COALESCE(excluded.language_code, users.language_code),
            updated_at = excluded.updated_at,
            last_activity = excluded.last_activity
    `, profile.TelegramID, profile.Username, profile.FirstName, profile.LastName, profile.LanguageCode, now, now, now); err != nil {
		return models.UserAccount{}, fmt.Errorf("upsert user: %w", err)
	}

	account, err := l.findByTelegramID(ctx, profile.TelegramID)
	if err != nil {
		return models.UserAccount{}, fmt.Errorf("reload user: %w", err)
	}
	return account, nil
}

// IncrementRequests bumps the request counter in a single statement.
func (l *SQLiteLedger) IncrementRequests(ctx context.Context, telegramID int64) error {
	return l.increment(ctx, telegramID, "total_requests")
}

// IncrementVideosDownloaded bumps the delivered-video counter in a single statement.
func (l *SQLiteLedger) IncrementVideosDownloaded(ctx context.Context, telegramID int64) error {
	return l.increment(ctx, telegramID, "total_videos_downloaded")
}

func (l *SQLiteLedger) increment(ctx context.Context, telegramID int64, column string) error {
	now := l.now()
	if _, err := l.db.ExecContext(ctx, `
        UPDATE users
        SET `+column+` = `+column+` + 1, updated_at = ?, last_activity = ?
        WHERE telegram_id = ?
    `, now, now, telegramID); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// GetStats returns the counters snapshot for a user.
func (l *SQLiteLedger) GetStats(ctx context.Context, telegramID int64) (models.UserStats, error) {
	account, err := l.findByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserStats{}, ErrNotFound
		}
		return models.UserStats{}, fmt.Errorf("select user stats: %w", err)
	}
	return statsFromAccount(account), nil
}

func (l *SQLiteLedger) findByTelegramID(ctx context.Context, telegramID int64) (models.UserAccount, error) {
	row := l.db.QueryRowContext(ctx, `
        SELECT `+sqliteUserColumns+`
        FROM users
        WHERE telegram_id = ?
    `, telegramID)
	return scanSQLiteAccount(row)
}

// ListUsers returns a page of users ordered by registration time, newest first.
func (l *SQLiteLedger) ListUsers(ctx context.Context, limit, offset int) ([]models.UserAccount, error) {
	limit, offset = normalizePage(limit, offset)

	rows, err := l.db.QueryContext(ctx, `
        SELECT `+sqliteUserColumns+`
        FROM users
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var accounts []models.UserAccount
	for rows.Next() {
		account, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return accounts, nil
}

// CountUsers returns the number of registered users.
func (l *SQLiteLedger) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Ping verifies the database file is usable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func scanSQLiteAccount(row rowScanner) (models.UserAccount, error) {
	var account models.UserAccount
	var createdAt, updatedAt, lastActive sqliteTime
	if err := row.Scan(
		&account.ID, &account.TelegramID, &account.Username, &account.FirstName, &account.LastName,
		&account.LanguageCode, &account.TotalRequests, &account.TotalVideosDownloaded,
		&createdAt, &updatedAt, &lastActive,
	); err != nil {
		return models.UserAccount{}, err
	}

	account.CreatedAt = createdAt.Time
	account.UpdatedAt = updatedAt.Time
	if lastActive.Valid {
		t := lastActive.Time
		account.LastActivity = &t
	}
	return account, nil
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// sqliteTime accepts the representations a DATETIME column can come back as.
type sqliteTime struct {
	Time  time.Time
	Valid bool
}

func (t *sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case int64:
		t.Time, t.Valid = time.Unix(v, 0).UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported sqlite time value %T", src)
	}
}

func (t *sqliteTime) parse(value string) error {
	for _, layout := range sqliteTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("parse sqlite time %q", value)
}

var _ Ledger = (*SQLiteLedger)(nil)
