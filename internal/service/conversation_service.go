package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
	"github.com/Willy-Angole/abilispace-sub002/internal/validation"
	"github.com/samber/lo"
)

type CreateConversationInput struct {
	ParticipantIDs []uint
	Name           string
	Description    string
	IsGroup        bool
}

type UpdateConversationInput struct {
	Name        *string
	Description *string
}

type ConversationPage struct {
	Conversations []models.Conversation
	NextCursor    string
	HasMore       bool
}

// LeaveResult describes the side effects of leaving a group.
type LeaveResult struct {
	PromotedUserID *uint
	Closed         bool
}

type ConversationService struct {
	store  repository.StoreInterface
	unread UnreadCache
	log    *slog.Logger
	cfg    Config
	retry  retrier
}

func NewConversationService(store repository.StoreInterface, unread UnreadCache, log *slog.Logger, cfg Config) *ConversationService {
	log = loggerOrDefault(log)
	cfg = cfg.withDefaults()
	return &ConversationService{
		store:  store,
		unread: unread,
		log:    log,
		cfg:    cfg,
		retry:  retrier{backoff: cfg.RetryBackoff, log: log},
	}
}

func (s *ConversationService) CreateConversation(ctx context.Context, requesterID uint, in CreateConversationInput) (*models.Conversation, error) {
	others := sanitizeIDs(in.ParticipantIDs, requesterID)
	if !in.IsGroup {
		switch len(others) {
		case 0:
			return nil, apperr.Validation("direct conversation requires another participant")
		case 1:
			return s.createDirect(ctx, requesterID, others[0])
		default:
			return nil, apperr.Validation("direct conversation takes exactly one other participant")
		}
	}

	name, err := validation.NormalizeGroupName(in.Name)
	if err != nil {
		return nil, err
	}
	description, err := validation.NormalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}
	return s.createGroup(ctx, requesterID, name, description, others)
}

func (s *ConversationService) createDirect(ctx context.Context, requesterID, peerID uint) (*models.Conversation, error) {
	key := models.DirectKey(requesterID, peerID)
	var conv *models.Conversation

	err := s.retry.do(ctx, "create direct conversation", func() error {
		existing, err := s.store.Conversations().FindDirectByKey(ctx, key)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, repository.ErrRecordNotFound) {
			return storeErr(err, "")
		}

		err = s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			now := s.cfg.Now()
			c := &models.Conversation{
				Kind:      models.KindDirect,
				DirectKey: &key,
				CreatedBy: requesterID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Conversations().Create(ctx, c); err != nil {
				return err
			}
			ps := []models.Participant{
				{ConversationID: c.ID, UserID: requesterID, Role: models.RoleMember, JoinedAt: now},
				{ConversationID: c.ID, UserID: peerID, Role: models.RoleMember, JoinedAt: now},
			}
			if err := tx.Participants().CreateBatch(ctx, ps); err != nil {
				return err
			}
			conv = c
			return nil
		})
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost a race with a concurrent create of the same pair.
			existing, ferr := s.store.Conversations().FindDirectByKey(ctx, key)
			if ferr != nil {
				return storeErr(ferr, "")
			}
			conv = existing
			return nil
		}
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

func (s *ConversationService) createGroup(ctx context.Context, requesterID uint, name, description string, memberIDs []uint) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.retry.do(ctx, "create group conversation", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			now := s.cfg.Now()
			c := &models.Conversation{
				Kind:        models.KindGroup,
				Name:        name,
				Description: description,
				CreatedBy:   requesterID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Conversations().Create(ctx, c); err != nil {
				return storeErr(err, "")
			}

			ps := make([]models.Participant, 0, len(memberIDs)+1)
			ps = append(ps, models.Participant{ConversationID: c.ID, UserID: requesterID, Role: models.RoleAdmin, JoinedAt: now})
			for _, id := range memberIDs {
				ps = append(ps, models.Participant{ConversationID: c.ID, UserID: id, Role: models.RoleMember, JoinedAt: now})
			}
			if err := tx.Participants().CreateBatch(ctx, ps); err != nil {
				return storeErr(err, "")
			}

			msg, err := appendSystemMessage(ctx, tx, c, requesterID, fmt.Sprintf("user %d created the group %q", requesterID, name), s.cfg)
			if err != nil {
				return err
			}
			c.LastMessageID = &msg.ID
			c.LastMessageAt = &msg.CreatedAt
			conv = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, append(memberIDs, requesterID)...)
	s.log.Info("group conversation created", "conversation_id", conv.ID, "created_by", requesterID, "members", len(memberIDs)+1)
	return s.withParticipants(ctx, conv)
}

func (s *ConversationService) UpdateConversation(ctx context.Context, convID, requesterID uint, in UpdateConversationInput) (*models.Conversation, error) {
	if in.Name == nil && in.Description == nil {
		return nil, apperr.Validation("nothing to update")
	}
	var name, description string
	var err error
	if in.Name != nil {
		if name, err = validation.NormalizeGroupName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if description, err = validation.NormalizeDescription(*in.Description); err != nil {
			return nil, err
		}
	}

	var conv *models.Conversation
	err = s.retry.do(ctx, "update conversation", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			scope, err := lockGroupAsAdmin(ctx, tx, convID, requesterID, "update the conversation")
			if err != nil {
				return err
			}
			c := scope.conv
			if in.Name != nil {
				c.Name = name
			}
			if in.Description != nil {
				c.Description = description
			}
			c.UpdatedAt = s.cfg.Now()
			if err := tx.Conversations().Update(ctx, c); err != nil {
				return storeErr(err, "")
			}
			conv = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

func (s *ConversationService) SetAdminOnlyMessaging(ctx context.Context, convID, requesterID uint, enabled bool) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.retry.do(ctx, "set admin-only messaging", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			scope, err := lockGroupAsAdmin(ctx, tx, convID, requesterID, "change messaging permissions")
			if err != nil {
				return err
			}
			c := scope.conv
			if c.AdminOnlyMessaging != enabled {
				c.AdminOnlyMessaging = enabled
				c.UpdatedAt = s.cfg.Now()
				if err := tx.Conversations().Update(ctx, c); err != nil {
					return storeErr(err, "")
				}
			}
			conv = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AddMembers adds users that are not already active and returns the ids that were added.
func (s *ConversationService) AddMembers(ctx context.Context, convID, requesterID uint, userIDs []uint) ([]uint, error) {
	candidates := sanitizeIDs(userIDs, 0)
	if len(candidates) == 0 {
		return nil, apperr.Validation("user_ids is required")
	}

	var added, notify []uint
	err := s.retry.do(ctx, "add members", func() error {
		added, notify = nil, nil
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			scope, err := lockGroupAsAdmin(ctx, tx, convID, requesterID, "add members")
			if err != nil {
				return err
			}
			toAdd := lo.Without(candidates, scope.userIDs()...)
			if len(toAdd) == 0 {
				return nil
			}

			now := s.cfg.Now()
			ps := lo.Map(toAdd, func(id uint, _ int) models.Participant {
				return models.Participant{ConversationID: convID, UserID: id, Role: models.RoleMember, JoinedAt: now}
			})
			if err := tx.Participants().CreateBatch(ctx, ps); err != nil {
				return storeErr(err, "")
			}
			if _, err := appendSystemMessage(ctx, tx, scope.conv, requesterID, fmt.Sprintf("user %d added %s", requesterID, describeUsers(toAdd)), s.cfg); err != nil {
				return err
			}
			added = toAdd
			notify = append(scope.userIDs(), toAdd...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.invalidate(ctx, notify...)
		s.log.Info("members added", "conversation_id", convID, "by", requesterID, "added", added)
	}
	if added == nil {
		added = []uint{}
	}
	return added, nil
}

func (s *ConversationService) RemoveMember(ctx context.Context, convID, requesterID, userID uint) error {
	var notify []uint
	err := s.retry.do(ctx, "remove member", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			scope, err := lockGroupAsAdmin(ctx, tx, convID, requesterID, "remove members")
			if err != nil {
				return err
			}
			if userID == requesterID {
				return apperr.InvalidOperation("admins cannot remove themselves; leave the conversation instead")
			}
			target, ok := scope.find(userID)
			if !ok {
				return apperr.NotFound(msgParticipantNotFound)
			}

			if err := tx.Participants().MarkLeft(ctx, target.ID, s.cfg.Now()); err != nil {
				return storeErr(err, msgParticipantNotFound)
			}
			if _, err := appendSystemMessage(ctx, tx, scope.conv, requesterID, fmt.Sprintf("user %d removed user %d", requesterID, userID), s.cfg); err != nil {
				return err
			}
			notify = scope.userIDs()
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, notify...)
	s.log.Info("member removed", "conversation_id", convID, "by", requesterID, "user_id", userID)
	return nil
}

// LeaveConversation ends the requester's stint. When the last admin leaves,
// the longest-standing remaining participant is promoted. When nobody is
// left the conversation is closed.
func (s *ConversationService) LeaveConversation(ctx context.Context, convID, requesterID uint) (*LeaveResult, error) {
	var (
		result *LeaveResult
		notify []uint
	)
	err := s.retry.do(ctx, "leave conversation", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			conv, err := tx.Conversations().FindByIDForUpdate(ctx, convID)
			if err != nil {
				return storeErr(err, msgConversationNotFound)
			}
			active, err := tx.Participants().ListActive(ctx, convID)
			if err != nil {
				return storeErr(err, "")
			}
			actor, ok := lo.Find(active, func(p models.Participant) bool { return p.UserID == requesterID })
			if !ok {
				return apperr.NotFound(msgConversationNotFound)
			}
			if !conv.IsGroup() {
				return apperr.InvalidOperation("direct conversations cannot be left")
			}

			now := s.cfg.Now()
			if err := tx.Participants().MarkLeft(ctx, actor.ID, now); err != nil {
				return storeErr(err, msgConversationNotFound)
			}

			res := &LeaveResult{}
			remaining := lo.Filter(active, func(p models.Participant, _ int) bool { return p.ID != actor.ID })
			text := fmt.Sprintf("user %d left", requesterID)

			switch {
			case len(remaining) == 0:
				conv.ClosedAt = &now
				conv.UpdatedAt = now
				if err := tx.Conversations().Update(ctx, conv); err != nil {
					return storeErr(err, "")
				}
				res.Closed = true
			case actor.IsAdmin() && !lo.ContainsBy(remaining, func(p models.Participant) bool { return p.IsAdmin() }):
				// remaining is ordered by (joined_at, id)
				heir := remaining[0]
				if err := tx.Participants().UpdateRole(ctx, heir.ID, models.RoleAdmin); err != nil {
					return storeErr(err, "")
				}
				res.PromotedUserID = &heir.UserID
				text += fmt.Sprintf("; user %d is now an admin", heir.UserID)
			}

			if _, err := appendSystemMessage(ctx, tx, conv, requesterID, text, s.cfg); err != nil {
				return err
			}
			result = res
			notify = userIDs(active)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, notify...)
	switch {
	case result.Closed:
		s.log.Info("conversation closed", "conversation_id", convID, "last_user", requesterID)
	case result.PromotedUserID != nil:
		s.log.Info("admin auto-promoted", "conversation_id", convID, "user_id", *result.PromotedUserID)
	}
	return result, nil
}

func (s *ConversationService) MakeAdmin(ctx context.Context, convID, requesterID, userID uint) error {
	return s.changeRole(ctx, convID, requesterID, userID, models.RoleAdmin)
}

// RevokeAdmin demotes an admin to member. Demoting the only admin is refused.
func (s *ConversationService) RevokeAdmin(ctx context.Context, convID, requesterID, userID uint) error {
	return s.changeRole(ctx, convID, requesterID, userID, models.RoleMember)
}

func (s *ConversationService) changeRole(ctx context.Context, convID, requesterID, userID uint, role models.Role) error {
	action := "grant admin"
	if role != models.RoleAdmin {
		action = "revoke admin"
	}

	changed := false
	err := s.retry.do(ctx, action, func() error {
		changed = false
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			scope, err := lockGroupAsAdmin(ctx, tx, convID, requesterID, action)
			if err != nil {
				return err
			}
			target, ok := scope.find(userID)
			if !ok {
				return apperr.NotFound(msgParticipantNotFound)
			}
			if target.Role == role {
				return nil
			}
			if role != models.RoleAdmin {
				admins := lo.CountBy(scope.active, func(p models.Participant) bool { return p.IsAdmin() })
				if admins <= 1 {
					return apperr.Conflict("cannot revoke the only admin; promote another member first")
				}
			}

			if err := tx.Participants().UpdateRole(ctx, target.ID, role); err != nil {
				return storeErr(err, msgParticipantNotFound)
			}
			text := fmt.Sprintf("user %d made user %d an admin", requesterID, userID)
			if role != models.RoleAdmin {
				text = fmt.Sprintf("user %d revoked admin from user %d", requesterID, userID)
			}
			if _, err := appendSystemMessage(ctx, tx, scope.conv, requesterID, text, s.cfg); err != nil {
				return err
			}
			changed = true
			return nil
		})
	})
	if err != nil {
		return err
	}
	if changed {
		s.log.Info("participant role changed", "conversation_id", convID, "by", requesterID, "user_id", userID, "role", role.String())
	}
	return nil
}

func (s *ConversationService) GetConversation(ctx context.Context, convID, requesterID uint) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.retry.do(ctx, "get conversation", func() error {
		c, err := readableMember(ctx, s.store, convID, requesterID)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

// ListConversations pages through the requester's active conversations,
// most recently active first.
func (s *ConversationService) ListConversations(ctx context.Context, requesterID uint, cursor string, limit int) (*ConversationPage, error) {
	limit = s.cfg.pageSize(limit)
	var before *models.Cursor
	if cursor != "" {
		c, err := models.DecodeCursor(cursor)
		if err != nil {
			return nil, apperr.Validation("invalid cursor")
		}
		before = &c
	}

	var convs []models.Conversation
	err := s.retry.do(ctx, "list conversations", func() error {
		var err error
		convs, err = s.store.Conversations().ListForUser(ctx, requesterID, before, limit+1)
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}

	page := &ConversationPage{Conversations: convs}
	if len(convs) > limit {
		page.Conversations = convs[:limit]
		page.HasMore = true
	}
	if n := len(page.Conversations); n > 0 && page.HasMore {
		last := page.Conversations[n-1]
		page.NextCursor = models.Cursor{At: last.LastActivity(), ID: last.ID}.Encode()
	}
	if page.Conversations == nil {
		page.Conversations = []models.Conversation{}
	}
	return page, nil
}

func (s *ConversationService) SearchConversations(ctx context.Context, requesterID uint, query string, limit int) ([]models.Conversation, error) {
	query, err := validation.NormalizeSearchQuery(query)
	if err != nil {
		return nil, err
	}
	limit = s.cfg.pageSize(limit)

	var convs []models.Conversation
	err = s.retry.do(ctx, "search conversations", func() error {
		var err error
		convs, err = s.store.Conversations().SearchForUser(ctx, requesterID, query, limit)
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

// ListParticipants returns active participants ordered by join time.
func (s *ConversationService) ListParticipants(ctx context.Context, convID, requesterID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := s.retry.do(ctx, "list participants", func() error {
		if _, err := readableMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}
		var err error
		ps, err = s.store.Participants().ListActive(ctx, convID)
		return storeErr(err, "")
	})
	return ps, err
}

// ParticipantHistory returns every membership stint, including ended ones.
func (s *ConversationService) ParticipantHistory(ctx context.Context, convID, requesterID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := s.retry.do(ctx, "participant history", func() error {
		if _, err := readableMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}
		var err error
		ps, err = s.store.Participants().ListHistory(ctx, convID)
		return storeErr(err, "")
	})
	return ps, err
}

func (s *ConversationService) withParticipants(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	err := s.retry.do(ctx, "load participants", func() error {
		ps, err := s.store.Participants().ListActive(ctx, conv.ID)
		if err != nil {
			return storeErr(err, "")
		}
		conv.Participants = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) invalidate(ctx context.Context, userIDs ...uint) {
	if s.unread == nil {
		return
	}
	if err := s.unread.Invalidate(ctx, lo.Uniq(userIDs)...); err != nil {
		s.log.Warn("unread cache invalidation failed", "err", err)
	}
}

func describeUsers(ids []uint) string {
	parts := lo.Map(ids, func(id uint, _ int) string { return fmt.Sprintf("user %d", id) })
	return strings.Join(parts, ", ")
}
