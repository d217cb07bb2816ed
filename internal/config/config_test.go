package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "token", cfg.CSRFMode)
	assert.Equal(t, 10000, cfg.MaxMessageLength)
	assert.Equal(t, 50, cfg.DefaultPageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	assert.Equal(t, 5*time.Second, cfg.TypingSweepInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.StoreRetryBackoff)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TYPING_TTL", "10s")
	t.Setenv("CSRF_MODE", " ORIGIN ")
	t.Setenv("DEFAULT_PAGE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.TypingTTL)
	assert.Equal(t, "origin", cfg.CSRFMode)
	assert.Equal(t, 100, cfg.DefaultPageSize)
}

func TestOrigins(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "https://a.test", []string{"https://a.test"}},
		{"trims and skips blanks", " https://a.test , ,https://b.test", []string{"https://a.test", "https://b.test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{AllowedOrigins: tt.input}
			assert.Equal(t, tt.want, c.Origins())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "DEBUG"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warning"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "nonsense"}).SlogLevel())
}

func TestDSN(t *testing.T) {
	c := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432", DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable", c.DSN())
}
