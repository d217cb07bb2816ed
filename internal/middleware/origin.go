package middleware

import (
	"strings"

	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func OriginAllowed(allowedOrigins []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := strings.TrimSpace(c.Get("Origin"))
		if origin == "" || len(allowedOrigins) == 0 {
			return c.Next()
		}
		if !originAllowed(origin, allowedOrigins) {
			return httpx.Forbidden(c, "forbidden_origin", "Origin not allowed")
		}
		return c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	return lo.Contains(allowed, origin)
}
