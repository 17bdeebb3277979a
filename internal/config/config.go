package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config captures the runtime configuration for the ShortGrab bot.
type Config struct {
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	TelegramBotName  string  `envconfig:"TELEGRAM_BOT_NAME" default:"ShortGrab"`
	AdminIDs         []int64 `envconfig:"TELEGRAM_ADMINS_ID"`

	Postgres    PostgresConfig `envconfig:"POSTGRES"`
	DatabaseURL string         `envconfig:"DATABASE_URL"`
	SQLitePath  string         `envconfig:"SQLITE_PATH" default:"data/shortgrab.db"`
	AutoMigrate bool           `envconfig:"AUTO_MIGRATE" default:"true"`

	BotID              string `envconfig:"BOT_ID" default:"shortgrab"`
	DownloadDir        string `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	MaxDurationSeconds int    `envconfig:"MAX_DURATION_SECONDS" default:"300"`
	MaxUploadBytes     int64  `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`

	YTDLPPath            string        `envconfig:"YTDLP_BINARY" default:"yt-dlp"`
	YTDLPProbeTimeout    time.Duration `envconfig:"YTDLP_PROBE_TIMEOUT" default:"60s"`
	YTDLPDownloadTimeout time.Duration `envconfig:"YTDLP_DOWNLOAD_TIMEOUT" default:"10m"`
	ProbeCacheSize       int           `envconfig:"PROBE_CACHE_SIZE" default:"256"`
	ProbeCacheTTL        time.Duration `envconfig:"PROBE_CACHE_TTL" default:"10m"`
	ProxyURL             string        `envconfig:"PROXY_URL"`

	Workers               int           `envconfig:"WORKERS" default:"8"`
	UserRequestsPerMinute int           `envconfig:"USER_REQUESTS_PER_MINUTE" default:"10"`
	UserRequestBurst      int           `envconfig:"USER_REQUEST_BURST" default:"3"`
	BroadcastDelay        time.Duration `envconfig:"BROADCAST_DELAY" default:"50ms"`

	OpsAddr   string `envconfig:"OPS_ADDR" default:":9090"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Archive ArchiveConfig `envconfig:"ARCHIVE"`
}

// PostgresConfig holds the discrete PostgreSQL connection parameters.
type PostgresConfig struct {
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	Host     string `envconfig:"HOST"`
	Port     int    `envconfig:"PORT" default:"5432"`
	DB       string `envconfig:"DB"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
}

// ArchiveConfig describes the optional S3-compatible bucket that receives delivered videos.
type ArchiveConfig struct {
	Bucket   string `envconfig:"BUCKET"`
	Endpoint string `envconfig:"ENDPOINT"`
	Region   string `envconfig:"REGION" default:"us-east-1"`
	Prefix   string `envconfig:"PREFIX" default:"videos"`
}

// Enabled reports whether archiving was configured.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Bucket) != ""
}

// Load reads configuration from the environment. When envFile is non-empty and
// exists, its entries are loaded first without overriding variables that are
// already set.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the application relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return errors.New("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.MaxDurationSeconds <= 0 {
		return fmt.Errorf("config: MAX_DURATION_SECONDS must be positive, got %d", c.MaxDurationSeconds)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: WORKERS must be positive, got %d", c.Workers)
	}
	if strings.ContainsAny(c.BotID, `/\`) || strings.TrimSpace(c.BotID) == "" {
		return fmt.Errorf("config: BOT_ID %q is not a valid directory name", c.BotID)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("config: PROXY_URL: %w", err)
		}
	}
	return nil
}

// UsePostgres reports whether the ledger should be backed by PostgreSQL rather
// than the local SQLite file.
func (c Config) UsePostgres() bool {
	return c.DatabaseURL != "" || c.Postgres.Host != ""
}

// PostgresURL returns the connection string for the PostgreSQL ledger.
func (c Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:   "/" + c.Postgres.DB,
	}
	if c.Postgres.User != "" {
		if c.Postgres.Password != "" {
			u.User = url.UserPassword(c.Postgres.User, c.Postgres.Password)
		} else {
			u.User = url.User(c.Postgres.User)
		}
	}
	if c.Postgres.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.Postgres.SSLMode}}.Encode()
	}
	return u.String()
}

// IsAdmin reports whether the given telegram id is one of the configured administrators.
func (c Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
