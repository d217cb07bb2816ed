package service

import (
	"context"
	"errors"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
	"github.com/samber/lo"
)

const (
	msgConversationNotFound = "conversation not found"
	msgMessageNotFound      = "message not found"
	msgParticipantNotFound  = "participant not found"
)

// storeErr classifies a repository error. Missing rows become NotFound with
// the given message, AppErrors pass through, everything else is internal.
func storeErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if notFound != "" && errors.Is(err, repository.ErrRecordNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal("store failure", err)
}

// activeMember loads the conversation and the requester's active stint.
// Absent conversations and non-members both report NotFound.
func activeMember(ctx context.Context, store repository.StoreInterface, convID, userID uint) (*models.Conversation, *models.Participant, error) {
	conv, err := store.Conversations().FindByID(ctx, convID)
	if err != nil {
		return nil, nil, storeErr(err, msgConversationNotFound)
	}
	p, err := store.Participants().FindActive(ctx, convID, userID)
	if err != nil {
		return nil, nil, storeErr(err, msgConversationNotFound)
	}
	return conv, p, nil
}

// readableMember admits active participants. Once a conversation has closed
// it also admits the participant whose departure closed it, read-only.
func readableMember(ctx context.Context, store repository.StoreInterface, convID, userID uint) (*models.Conversation, error) {
	conv, err := store.Conversations().FindByID(ctx, convID)
	if err != nil {
		return nil, storeErr(err, msgConversationNotFound)
	}
	_, err = store.Participants().FindActive(ctx, convID, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, storeErr(err, "")
	}
	if !conv.IsClosed() {
		return nil, apperr.NotFound(msgConversationNotFound)
	}

	history, err := store.Participants().ListHistory(ctx, convID)
	if err != nil {
		return nil, storeErr(err, "")
	}
	closer := lo.ContainsBy(history, func(p models.Participant) bool {
		return p.UserID == userID && p.LeftAt != nil && p.LeftAt.Equal(*conv.ClosedAt)
	})
	if !closer {
		return nil, apperr.NotFound(msgConversationNotFound)
	}
	return conv, nil
}

// senderScope checks that userID may post to the conversation right now.
func senderScope(ctx context.Context, store repository.StoreInterface, convID, userID uint) (*models.Conversation, error) {
	conv, sender, err := activeMember(ctx, store, convID, userID)
	if apperr.Is(err, apperr.CodeNotFound) {
		if c, rerr := readableMember(ctx, store, convID, userID); rerr == nil && c.IsClosed() {
			return nil, apperr.InvalidOperation("conversation is closed")
		}
	}
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, apperr.InvalidOperation("conversation is closed")
	}
	if conv.AdminOnlyMessaging && !sender.IsAdmin() {
		return nil, apperr.Forbidden("only admins can send messages in this conversation")
	}
	return conv, nil
}

// groupAdminScope is the locked view of a group that membership mutations work on.
type groupAdminScope struct {
	conv   *models.Conversation
	active []models.Participant
	actor  models.Participant
}

// lockGroupAsAdmin takes the conversation row lock and checks that the
// requester is an active admin of a group conversation.
func lockGroupAsAdmin(ctx context.Context, tx repository.StoreInterface, convID, requesterID uint, action string) (*groupAdminScope, error) {
	conv, err := tx.Conversations().FindByIDForUpdate(ctx, convID)
	if err != nil {
		return nil, storeErr(err, msgConversationNotFound)
	}
	active, err := tx.Participants().ListActive(ctx, convID)
	if err != nil {
		return nil, storeErr(err, "")
	}
	actor, ok := lo.Find(active, func(p models.Participant) bool { return p.UserID == requesterID })
	if !ok {
		return nil, apperr.NotFound(msgConversationNotFound)
	}
	if !conv.IsGroup() {
		return nil, apperr.InvalidOperation(action + " is not supported for direct conversations")
	}
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins can " + action)
	}
	return &groupAdminScope{conv: conv, active: active, actor: actor}, nil
}

func (s *groupAdminScope) find(userID uint) (models.Participant, bool) {
	return lo.Find(s.active, func(p models.Participant) bool { return p.UserID == userID })
}

func (s *groupAdminScope) userIDs() []uint {
	return userIDs(s.active)
}

func userIDs(ps []models.Participant) []uint {
	return lo.Map(ps, func(p models.Participant, _ int) uint { return p.UserID })
}

// appendSystemMessage records a membership event in the conversation timeline.
func appendSystemMessage(ctx context.Context, tx repository.StoreInterface, conv *models.Conversation, actorID uint, content string, cfg Config) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       actorID,
		Kind:           models.SystemMessage,
		Content:        content,
		CreatedAt:      cfg.Now(),
	}
	if err := tx.Messages().Create(ctx, msg); err != nil {
		return nil, storeErr(err, "")
	}
	if err := tx.Conversations().TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		return nil, storeErr(err, "")
	}
	return msg, nil
}

func sanitizeIDs(ids []uint, exclude uint) []uint {
	return lo.Uniq(lo.Filter(ids, func(id uint, _ int) bool { return id != 0 && id != exclude }))
}
