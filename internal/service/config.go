package service

import (
	"log/slog"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
	"github.com/Willy-Angole/abilispace-sub002/internal/validation"
)

// Config carries the tunables shared by the messaging services.
type Config struct {
	MaxMessageLength int
	DefaultPageSize  int
	MaxPageSize      int
	RetryBackoff     time.Duration
	Now              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = validation.DefaultMaxMessageLength
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = 50
		if c.DefaultPageSize > c.MaxPageSize {
			c.DefaultPageSize = c.MaxPageSize
		}
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.Now == nil {
		c.Now = repository.Now
	}
	return c
}

func (c Config) pageSize(limit int) int {
	if limit <= 0 {
		return c.DefaultPageSize
	}
	if limit > c.MaxPageSize {
		return c.MaxPageSize
	}
	return limit
}

func loggerOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
