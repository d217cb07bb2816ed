package handlers

import (
	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Register(r fiber.Router) {
	r.Get("/conversations/:id/messages/search", h.SearchMessages)
	r.Get("/conversations/:id/messages", h.GetMessages)
	r.Post("/conversations/:id/messages", h.SendMessage)
	r.Get("/messages/:id", h.GetMessage)
	r.Patch("/messages/:id", h.EditMessage)
	r.Delete("/messages/:id", h.DeleteMessage)
}

type SendMessageRequest struct {
	Content   string  `json:"content" validate:"required"`
	ReplyToID *uint   `json:"reply_to_id" validate:"omitempty,gt=0"`
	ClientID  *string `json:"client_id" validate:"omitempty,uuid"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MessagePageResponse struct {
	Messages   []models.MessageResponse `json:"messages"`
	NextCursor string                   `json:"next_cursor,omitempty"`
	HasMore    bool                     `json:"has_more"`
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	message, err := h.messageService.SendMessage(c.UserContext(), userID, service.SendMessageInput{
		ConversationID: convID,
		Content:        req.Content,
		ReplyToID:      req.ReplyToID,
		ClientID:       req.ClientID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message.ToResponse())
}

// GetMessages pages through a conversation. Pages are always ascending;
// next_cursor continues in the requested direction.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}
	limit, err := httpx.QueryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}

	page, err := h.messageService.GetMessages(c.UserContext(), convID, userID, service.GetMessagesInput{
		Limit:     limit,
		Cursor:    c.Query("cursor"),
		Direction: service.Direction(c.Query("direction")),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(MessagePageResponse{
		Messages:   models.ToResponses(page.Messages),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *MessageHandler) GetMessage(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	message, err := h.messageService.GetMessage(c.UserContext(), messageID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(message.ToResponse())
}

func (h *MessageHandler) EditMessage(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req EditMessageRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	message, err := h.messageService.EditMessage(c.UserContext(), messageID, userID, req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(message.ToResponse())
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	message, err := h.messageService.DeleteMessage(c.UserContext(), messageID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(message.ToResponse())
}

func (h *MessageHandler) SearchMessages(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}
	limit, err := httpx.QueryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}

	messages, err := h.messageService.SearchMessages(c.UserContext(), convID, userID, c.Query("q"), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": models.ToResponses(messages)})
}
