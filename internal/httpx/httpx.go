package httpx

import (
	"strconv"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

// StatusOf maps a domain error code onto an HTTP status.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return fiber.StatusBadRequest
	case apperr.CodeForbidden:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeInvalidOperation:
		return fiber.StatusUnprocessableEntity
	case apperr.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError writes a service error. Internal details never reach the client.
func FromError(c *fiber.Ctx, err error) error {
	code := apperr.CodeOf(err)
	return Error(c, StatusOf(code), string(code), apperr.MessageOf(err))
}

func LocalUint(c *fiber.Ctx, key string) (uint, error) {
	v := c.Locals(key)
	if v == nil {
		return 0, errors.Errorf("missing local %s", key)
	}
	u, ok := v.(uint)
	if !ok {
		return 0, errors.Errorf("invalid local %s", key)
	}
	return u, nil
}

// ParamUint parses a positive integer route parameter.
func ParamUint(c *fiber.Ctx, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || n == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return uint(n), nil
}

// QueryInt parses an optional integer query parameter, returning 0 when absent.
func QueryInt(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid " + name)
	}
	return n, nil
}
