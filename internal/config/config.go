package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is read from the process environment, optionally seeded from .env.
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS"`
	CSRFMode       string `envconfig:"CSRF_MODE" default:"token"`
	JWTSecret      string `envconfig:"JWT_SECRET" required:"true"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"messaging"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBLog      bool   `envconfig:"DB_LOG" default:"false"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	MaxMessageLength    int           `envconfig:"MAX_MESSAGE_LENGTH" default:"10000"`
	DefaultPageSize     int           `envconfig:"DEFAULT_PAGE_SIZE" default:"50"`
	MaxPageSize         int           `envconfig:"MAX_PAGE_SIZE" default:"100"`
	TypingTTL           time.Duration `envconfig:"TYPING_TTL" default:"3s"`
	TypingSweepInterval time.Duration `envconfig:"TYPING_SWEEP_INTERVAL" default:"5s"`
	StoreRetryBackoff   time.Duration `envconfig:"STORE_RETRY_BACKOFF" default:"100ms"`
}

// Load reads .env when present and then processes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, errors.Wrap(err, "process environment")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	c.CSRFMode = strings.ToLower(strings.TrimSpace(c.CSRFMode))
	if c.CSRFMode == "" {
		c.CSRFMode = "token"
	}
	if c.MaxMessageLength < 1 {
		c.MaxMessageLength = 10000
	}
	if c.MaxPageSize < 1 {
		c.MaxPageSize = 100
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode
}

// Origins splits ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
