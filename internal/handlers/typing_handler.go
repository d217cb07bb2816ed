package handlers

import (
	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
)

type TypingHandler struct {
	typingService *service.TypingService
}

func NewTypingHandler(typingService *service.TypingService) *TypingHandler {
	return &TypingHandler{typingService: typingService}
}

func (h *TypingHandler) Register(r fiber.Router) {
	r.Post("/conversations/:id/typing", h.SetTyping)
	r.Get("/conversations/:id/typing", h.GetTyping)
}

type TypingRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
}

func (h *TypingHandler) SetTyping(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req TypingRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	signal, err := h.typingService.SetTyping(c.UserContext(), convID, userID, req.DisplayName)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(signal)
}

func (h *TypingHandler) GetTyping(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	signals, err := h.typingService.GetTyping(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"typing": signals})
}
