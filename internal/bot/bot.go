package bot

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/shortgrab/backend/internal/ledger"
	"github.com/shortgrab/backend/internal/logging"
	"github.com/shortgrab/backend/internal/metrics"
	"github.com/shortgrab/backend/internal/ratelimit"
)

// Config holds the bot-level settings taken from the application config.
type Config struct {
	// BotName is shown in the welcome message.
	BotName string
	// BotUsername is the @-less username used for invite links.
	BotUsername    string
	AdminIDs       []int64
	MaxUploadBytes int64
	Workers        int
	BroadcastDelay time.Duration
}

// Dependencies are the collaborators a Bot needs. Archive and Limiter are optional.
type Dependencies struct {
	API     Sender
	Users   ledger.Ledger
	Videos  Acquirer
	Archive Archiver
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
}

// Bot dispatches chat updates to command, callback and link handlers.
type Bot struct {
	api         Sender
	users       ledger.Ledger
	videos      Acquirer
	archive     Archiver
	limiter     ratelimit.Limiter
	broadcaster *Broadcaster
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time

	slots    chan struct{}
	inflight sync.WaitGroup
}

// New validates the dependencies and constructs a Bot.
func New(deps Dependencies, cfg Config) (*Bot, error) {
	switch {
	case deps.API == nil:
		return nil, errors.New("bot: api sender is required")
	case deps.Users == nil:
		return nil, errors.New("bot: user ledger is required")
	case deps.Videos == nil:
		return nil, errors.New("bot: video pipeline is required")
	}

	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewPerUser(0, 0, 0, 0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.BotName == "" {
		cfg.BotName = "ShortGrab"
	}

	return &Bot{
		api:         deps.API,
		users:       deps.Users,
		videos:      deps.Videos,
		archive:     deps.Archive,
		limiter:     deps.Limiter,
		broadcaster: NewBroadcaster(deps.API, deps.Users, cfg.BroadcastDelay),
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
		slots:       make(chan struct{}, cfg.Workers),
	}, nil
}

// Run consumes updates until ctx is cancelled or the channel closes. At most
// Workers updates are handled concurrently. Handlers already started are
// allowed to finish before Run returns.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			select {
			case b.slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}

			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				defer func() { <-b.slots }()
				b.HandleUpdate(context.WithoutCancel(ctx), update)
			}()
		}
	}
}

// HandleUpdate processes a single update. Panics are recovered and logged so
// one bad update never stops the dispatcher.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var chatID, userID int64
	if chat := update.FromChat(); chat != nil {
		chatID = chat.ID
	}
	if user := update.SentFrom(); user != nil {
		userID = user.ID
	}

	ctx = logging.ForUpdate(ctx, b.logger, uuid.NewString(), update.UpdateID, chatID, userID)
	logger := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("update handler panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	default:
		logger.Debug("ignoring update without message")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		metrics.UpdatesTotal.WithLabelValues("command").Inc()
		if msg.Command() != "start" {
			defer b.touch(ctx, msg.From)
		}
		b.handleCommand(ctx, msg)
		return
	}

	if link, ok := extractLink(msg.Text); ok {
		metrics.UpdatesTotal.WithLabelValues("link").Inc()
		b.handleLink(ctx, msg, link)
		return
	}

	metrics.UpdatesTotal.WithLabelValues("text").Inc()
	b.reply(ctx, msg.Chat.ID, textNotALink)
	b.touch(ctx, msg.From)
}

// touch refreshes the profile and activity time of a registered user. Unknown
// users stay unregistered until they send /start or a link.
func (b *Bot) touch(ctx context.Context, user *tgbotapi.User) {
	if user == nil {
		return
	}
	logger := logging.FromContext(ctx)

	if _, err := b.users.GetStats(ctx, user.ID); err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			logger.Warn("failed to look up user", slog.Any("error", err))
		}
		return
	}
	if _, err := b.users.UpsertUser(ctx, profileFrom(user)); err != nil {
		logger.Warn("failed to refresh user activity", slog.Any("error", err))
	}
}

func (b *Bot) isAdmin(telegramID int64) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, bool) {
	sent, err := b.api.Send(c)
	if err != nil {
		logging.FromContext(ctx).Warn("send message failed", slog.Any("error", err))
		return tgbotapi.Message{}, false
	}
	return sent, true
}
