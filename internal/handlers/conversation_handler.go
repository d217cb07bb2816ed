package handlers

import (
	"context"

	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ConversationHandler struct {
	conversationService *service.ConversationService
}

func NewConversationHandler(conversationService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

func (h *ConversationHandler) Register(r fiber.Router) {
	r.Post("/conversations", h.CreateConversation)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/search", h.SearchConversations)
	r.Get("/conversations/:id", h.GetConversation)
	r.Patch("/conversations/:id", h.UpdateConversation)
	r.Put("/conversations/:id/admin-only", h.SetAdminOnly)
	r.Get("/conversations/:id/participants", h.ListParticipants)
	r.Get("/conversations/:id/participants/history", h.ParticipantHistory)
	r.Post("/conversations/:id/members", h.AddMembers)
	r.Delete("/conversations/:id/members/:userId", h.RemoveMember)
	r.Post("/conversations/:id/leave", h.Leave)
	r.Post("/conversations/:id/admins/:userId", h.MakeAdmin)
	r.Delete("/conversations/:id/admins/:userId", h.RevokeAdmin)
}

type CreateConversationRequest struct {
	ParticipantIDs []uint `json:"participant_ids" validate:"dive,gt=0"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	IsGroup        bool   `json:"is_group"`
}

type UpdateConversationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type AdminOnlyRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type AddMembersRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
	NextCursor    string                `json:"next_cursor,omitempty"`
	HasMore       bool                  `json:"has_more"`
}

type LeaveResponse struct {
	PromotedUserID *uint `json:"promoted_user_id,omitempty"`
	Closed         bool  `json:"closed"`
}

func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}

	var req CreateConversationRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	conv, err := h.conversationService.CreateConversation(c.UserContext(), userID, service.CreateConversationInput{
		ParticipantIDs: req.ParticipantIDs,
		Name:           req.Name,
		Description:    req.Description,
		IsGroup:        req.IsGroup,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	limit, err := httpx.QueryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}

	page, err := h.conversationService.ListConversations(c.UserContext(), userID, c.Query("cursor"), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ConversationListResponse{
		Conversations: page.Conversations,
		NextCursor:    page.NextCursor,
		HasMore:       page.HasMore,
	})
}

func (h *ConversationHandler) SearchConversations(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	limit, err := httpx.QueryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}

	convs, err := h.conversationService.SearchConversations(c.UserContext(), userID, c.Query("q"), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	conv, err := h.conversationService.GetConversation(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) UpdateConversation(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req UpdateConversationRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	conv, err := h.conversationService.UpdateConversation(c.UserContext(), convID, userID, service.UpdateConversationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) SetAdminOnly(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req AdminOnlyRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	conv, err := h.conversationService.SetAdminOnlyMessaging(c.UserContext(), convID, userID, *req.Enabled)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) ListParticipants(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	participants, err := h.conversationService.ListParticipants(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"participants": participants})
}

func (h *ConversationHandler) ParticipantHistory(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	participants, err := h.conversationService.ParticipantHistory(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"participants": participants})
}

func (h *ConversationHandler) AddMembers(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req AddMembersRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	added, err := h.conversationService.AddMembers(c.UserContext(), convID, userID, req.UserIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"added": added})
}

func (h *ConversationHandler) RemoveMember(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}
	targetID, err := httpx.ParamUint(c, "userId")
	if err != nil {
		return fail(c, err)
	}

	if err := h.conversationService.RemoveMember(c.UserContext(), convID, userID, targetID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) Leave(c *fiber.Ctx) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}

	result, err := h.conversationService.LeaveConversation(c.UserContext(), convID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(LeaveResponse{PromotedUserID: result.PromotedUserID, Closed: result.Closed})
}

func (h *ConversationHandler) MakeAdmin(c *fiber.Ctx) error {
	return h.changeRole(c, h.conversationService.MakeAdmin)
}

func (h *ConversationHandler) RevokeAdmin(c *fiber.Ctx) error {
	return h.changeRole(c, h.conversationService.RevokeAdmin)
}

type roleChange func(ctx context.Context, convID, requesterID, userID uint) error

func (h *ConversationHandler) changeRole(c *fiber.Ctx, change roleChange) error {
	userID, err := requester(c)
	if err != nil {
		return fail(c, err)
	}
	convID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return fail(c, err)
	}
	targetID, err := httpx.ParamUint(c, "userId")
	if err != nil {
		return fail(c, err)
	}

	if err := change(c.UserContext(), convID, userID, targetID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
