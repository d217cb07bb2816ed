package handlers

import (
	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/validation"
	"github.com/gofiber/fiber/v2"
)

// errUnauthorized is returned by requester when the auth middleware did not
// run; handlers answer it with a 401.
var errUnauthorized = apperr.New("UNAUTHORIZED", "Unauthorized")

func requester(c *fiber.Ctx) (uint, error) {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return 0, errUnauthorized
	}
	return userID, nil
}

// parseBody decodes a JSON body and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return validation.Struct(dst)
}

// fail writes err with the status its code maps to.
func fail(c *fiber.Ctx, err error) error {
	if err == errUnauthorized {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	return httpx.FromError(c, err)
}
