package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/bot"
	"github.com/shortgrab/backend/internal/config"
	"github.com/shortgrab/backend/internal/db"
	"github.com/shortgrab/backend/internal/handlers"
	"github.com/shortgrab/backend/internal/httpserver"
	"github.com/shortgrab/backend/internal/logging"
	"github.com/shortgrab/backend/internal/netx"
)

const (
	envFile = ".env"

	// Long polling holds requests for pollTimeout seconds and uploads can be
	// large, so the Telegram client gets a generous deadline.
	pollTimeout           = 60
	telegramClientTimeout = 5 * time.Minute
)

// Run bootstraps the ShortGrab bot.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or migrate")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	client, err := netx.NewHTTPClient(cfg.ProxyURL, telegramClientTimeout)
	if err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("authorize telegram bot: %w", err)
	}
	logger.Info("authorized on telegram", slog.String("username", api.Self.UserName))

	shortgrab, err := bot.New(bot.Dependencies{
		API:     api,
		Users:   deps.Ledger,
		Videos:  deps.Videos,
		Archive: deps.Archive,
		Limiter: deps.Limiter,
		Logger:  logger,
	}, botConfig(cfg, api.Self.UserName))
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.OpsAddr, handlers.NewRouter(handlers.Dependencies{Ledger: deps.Ledger, Logger: logger}))
	srvErr := make(chan error, 1)
	if cfg.OpsAddr != "" {
		logger.Info("starting ops server", slog.String("addr", srv.Addr()))
		go func() {
			srvErr <- srv.Start()
		}()
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeout
	updates := api.GetUpdatesChan(updateConfig)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	botDone := make(chan error, 1)
	go func() {
		botDone <- shortgrab.Run(runCtx, updates)
	}()
	logger.Info("bot started",
		slog.String("bot_id", cfg.BotID),
		slog.Int("workers", cfg.Workers),
		slog.Int("max_duration_seconds", deps.Videos.MaxDurationSeconds()),
	)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	api.StopReceivingUpdates()
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	select {
	case err := <-botDone:
		if err != nil && runErr == nil {
			runErr = err
		}
	case <-shutdownCtx.Done():
		logger.Warn("timed out waiting for in-flight updates")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown ops server: %w", err)
	}
	return runErr
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	dialect, target := db.DialectSQLite, cfg.SQLitePath
	if cfg.UsePostgres() {
		dialect, target = db.DialectPostgres, cfg.PostgresURL()
	} else if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}

	migrator, err := db.NewMigrator(dialect, target)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
	case "version", "status":
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	fmt.Printf("%s schema version %d (dirty=%t)\n", dialect, version, dirty)
	return nil
}

func botConfig(cfg config.Config, username string) bot.Config {
	return bot.Config{
		BotName:        cfg.TelegramBotName,
		BotUsername:    username,
		AdminIDs:       cfg.AdminIDs,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Workers:        cfg.Workers,
		BroadcastDelay: cfg.BroadcastDelay,
	}
}
