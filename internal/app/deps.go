package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shortgrab/backend/internal/bot"
	"github.com/shortgrab/backend/internal/config"
	"github.com/shortgrab/backend/internal/db"
	"github.com/shortgrab/backend/internal/httpserver"
	"github.com/shortgrab/backend/internal/ledger"
	"github.com/shortgrab/backend/internal/ratelimit"
	"github.com/shortgrab/backend/internal/storage"
	"github.com/shortgrab/backend/internal/videos"
)

const (
	// limiterIdleTTL is how long a quiet user's token bucket is kept.
	limiterIdleTTL = 30 * time.Minute

	archiveQueueSize = 32
	archiveWorkers   = 2
)

// dependencies are the long-lived collaborators shared by the bot and the ops server.
type dependencies struct {
	Ledger  ledger.Ledger
	Videos  *videos.Pipeline
	Archive bot.Archiver
	Limiter ratelimit.Limiter
}

// buildDependencies wires concrete implementations from cfg. The returned
// cleanup drains the archive queue, releases database handles and is safe to
// call when err is non-nil.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (dependencies, func(), error) {
	noop := func() {}

	users, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return dependencies{}, noop, err
	}

	ytdlp := videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPProbeTimeout, cfg.YTDLPDownloadTimeout)
	ytdlp.Proxy = cfg.ProxyURL
	extractor := videos.NewCachingExtractor(ytdlp, cfg.ProbeCacheSize, cfg.ProbeCacheTTL)

	deps := dependencies{
		Ledger: users,
		Videos: videos.NewPipeline(extractor, videos.PipelineConfig{
			DownloadDir:        cfg.DownloadDir,
			BotID:              cfg.BotID,
			MaxDurationSeconds: cfg.MaxDurationSeconds,
		}),
		Limiter: ratelimit.NewPerUser(cfg.UserRequestsPerMinute, time.Minute, cfg.UserRequestBurst, limiterIdleTTL),
	}

	if !cfg.Archive.Enabled() {
		return deps, closeLedger, nil
	}

	s3Archive, err := storage.NewS3Archive(ctx, cfg.Archive)
	if err != nil {
		closeLedger()
		return dependencies{}, noop, fmt.Errorf("configure archive: %w", err)
	}
	queue := storage.NewArchiveQueue(s3Archive, storage.QueueConfig{
		BotID:     cfg.BotID,
		QueueSize: archiveQueueSize,
		Workers:   archiveWorkers,
		Timeout:   cfg.YTDLPDownloadTimeout,
	}, logger)
	deps.Archive = queue
	logger.Info("archiving delivered videos", slog.String("bucket", cfg.Archive.Bucket))

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := queue.Shutdown(ctx); err != nil {
			logger.Warn("archive queue did not drain", slog.Any("error", err))
		}
		closeLedger()
	}
	return deps, cleanup, nil
}

// openLedger selects PostgreSQL when it is configured and the local SQLite
// file otherwise, applying pending migrations first when enabled.
func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Ledger, func(), error) {
	if cfg.UsePostgres() {
		url := cfg.PostgresURL()
		if cfg.AutoMigrate {
			if err := migrateUp(ctx, db.DialectPostgres, url); err != nil {
				return nil, nil, err
			}
		}

		pool, err := db.Connect(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres ledger")
		return ledger.NewPostgresLedger(pool), pool.Close, nil
	}

	handle, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	closeHandle := func() { _ = handle.Close() }

	if cfg.AutoMigrate {
		if err := migrateUp(ctx, db.DialectSQLite, cfg.SQLitePath); err != nil {
			closeHandle()
			return nil, nil, err
		}
	}
	logger.Info("using sqlite ledger", slog.String("path", cfg.SQLitePath))
	return ledger.NewSQLiteLedger(handle), closeHandle, nil
}

func migrateUp(ctx context.Context, dialect db.Dialect, target string) error {
	migrator, err := db.NewMigrator(dialect, target)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Up(ctx)
}
