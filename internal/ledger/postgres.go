package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shortgrab/backend/internal/db"
	"github.com/shortgrab/backend/internal/models"
)

const postgresUserColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
            COALESCE(language_code, ''), total_requests, total_videos_downloaded, created_at, updated_at, last_activity`

// PostgresLedger provides PostgreSQL-backed persistence for bot users.
type PostgresLedger struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresLedger constructs a ledger backed by PostgreSQL.
func NewPostgresLedger(pool db.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool, now: utcNow}
}

// WithNowFunc allows tests to override the time source.
func (l *PostgresLedger) WithNowFunc(now func() time.Time) {
	l.now = now
}

// UpsertUser inserts the user or merges the supplied profile into the existing row.
func (l *PostgresLedger) UpsertUser(ctx context.Context, profile models.Profile) (models.UserAccount, error) {
	if profile.TelegramID <= 0 {
		return models.UserAccount{}, ErrInvalidTelegramID
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return models.UserAccount{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO users (telegram_id, username, first_name, last_name, language_code,
                           total_requests, total_videos_downloaded, created_at, updated_at, last_activity)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), 0, 0, $6, $6, $6)
        ON CONFLICT (telegram_id) DO UPDATE SET
            username = COALESCE(EXCLUDED.username, users.username),
            first_name = COALESCE(EXCLUDED.first_name, users.first_name),
            last_name = COALESCE(EXCLUDED.last_name, users.last_name),
            language_code = COALESCE(EXCLUDED.language_code, users.language_code),
            updated_at = EXCLUDED.updated_at,
            last_activity = EXCLUDED.last_activity
        RETURNING `+postgresUserColumns,
		profile.TelegramID, profile.Username, profile.FirstName, profile.LastName, profile.LanguageCode, l.now())

	account, err := scanAccount(row)
	if err != nil {
		return models.UserAccount{}, fmt.Errorf("upsert user: %w", err)
	}
	return account, nil
}

// IncrementRequests bumps the request counter in a single statement.
func (l *PostgresLedger) IncrementRequests(ctx context.Context, telegramID int64) error {
	return l.increment(ctx, telegramID, "total_requests")
}

// IncrementVideosDownloaded bumps the delivered-video counter in a single statement.
func (l *PostgresLedger) IncrementVideosDownloaded(ctx context.Context, telegramID int64) error {
	return l.increment(ctx, telegramID, "total_videos_downloaded")
}

func (l *PostgresLedger) increment(ctx context.Context, telegramID int64, column string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of two constants chosen above, never user input.
	if _, err := conn.Exec(ctx, `
        UPDATE users
        SET `+column+` = `+column+` + 1, updated_at = $2, last_activity = $2
        WHERE telegram_id = $1
    `, telegramID, l.now()); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// GetStats returns the counters snapshot for a user.
func (l *PostgresLedger) GetStats(ctx context.Context, telegramID int64) (models.UserStats, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+postgresUserColumns+`
        FROM users
        WHERE telegram_id = $1
    `, telegramID)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserStats{}, ErrNotFound
		}
		return models.UserStats{}, fmt.Errorf("select user stats: %w", err)
	}
	return statsFromAccount(account), nil
}

// ListUsers returns a page of users ordered by registration time, newest first.
func (l *PostgresLedger) ListUsers(ctx context.Context, limit, offset int) ([]models.UserAccount, error) {
	limit, offset = normalizePage(limit, offset)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+postgresUserColumns+`
        FROM users
        ORDER BY created_at DESC, id DESC
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var accounts []models.UserAccount
	for rows.Next() {
		account, err := scanAccount(rows)
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
func (l *PostgresLedger) CountUsers(ctx context.Context) (int, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.UserAccount, error) {
	var (
		account      models.UserAccount
		lastActivity sql.NullTime
	)
	if err := row.Scan(
		&account.ID, &account.TelegramID, &account.Username, &account.FirstName, &account.LastName,
		&account.LanguageCode, &account.TotalRequests, &account.TotalVideosDownloaded,
		&account.CreatedAt, &account.UpdatedAt, &lastActivity,
	); err != nil {
		return models.UserAccount{}, err
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	if lastActivity.Valid {
		t := lastActivity.Time.UTC()
		account.LastActivity = &t
	}
	return account, nil
}

func statsFromAccount(account models.UserAccount) models.UserStats {
	return models.UserStats{
		TelegramID:            account.TelegramID,
		Username:              account.Username,
		FirstName:             account.FirstName,
		TotalRequests:         account.TotalRequests,
		TotalVideosDownloaded: account.TotalVideosDownloaded,
		CreatedAt:             account.CreatedAt,
		LastActivity:          account.LastActivity,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

var _ Ledger = (*PostgresLedger)(nil)
