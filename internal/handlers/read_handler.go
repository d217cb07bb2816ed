package handlers

import (
	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ReadHandler struct {
	readService *service.ReadService
}

func NewReadHandler(readService *service.ReadService) *ReadHandler {
	return &ReadHandler{readService: readService}
}

func (h *ReadHandler) Register(r fiber.Router) {
	r.Post("/conversations/:id/read", h.MarkRead)
	r.Get("/conversations/:id/read-markers", h.GetReadMarkers)
	r.Get("/unread", h.GetUnreadCounts)
}

// MarkReadRequest is optional; an empty body marks everything read.
type MarkReadRequest struct {
	MessageIDs []uint `json:"message_ids" validate:"dive,gt=0"`
}

func (h *ReadHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req MarkReadRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return fail(c, err)
		}
	}

	marker, err := h.readService.MarkMessagesAsRead(c.UserContext(), convID, userID, req.MessageIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(marker)
}

func (h *ReadHandler) GetReadMarkers(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	markers, err := h.readService.GetReadMarkers(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"read_markers": markers})
}

func (h *ReadHandler) GetUnreadCounts(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}

	summary, err := h.readService.GetUnreadCounts(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(summary)
}
