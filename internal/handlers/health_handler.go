package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
	cache Pinger
	log   *slog.Logger
}

// NewHealthHandler builds the health check. cache may be nil when Redis is
// not configured.
func NewHealthHandler(store, cache Pinger, log *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache, log: log}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.Map{"status": "ok", "database": "ok", "cache": "disabled"}
	code := fiber.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("health check: database unreachable", "err", err)
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = fiber.StatusServiceUnavailable
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.log.Warn("health check: cache unreachable", "err", err)
			status["cache"] = "unreachable"
		} else {
			status["cache"] = "ok"
		}
	}
	return c.Status(code).JSON(status)
}
