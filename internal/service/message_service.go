package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
	"github.com/Willy-Angole/abilispace-sub002/internal/validation"
	"github.com/samber/lo"
)

type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionOlder:
		return DirectionOlder, nil
	case DirectionNewer:
		return DirectionNewer, nil
	}
	return "", apperr.Validation("direction must be older or newer")
}

type SendMessageInput struct {
	ConversationID uint
	Content        string
	ReplyToID      *uint
	ClientID       *string
}

type GetMessagesInput struct {
	Limit     int
	Cursor    string
	Direction Direction
}

// MessagePage is always in ascending (created_at, id) order. NextCursor
// continues in the requested direction.
type MessagePage struct {
	Messages   []models.Message
	NextCursor string
	HasMore    bool
}

// TypingClearer drops a sender's typing signal once their message lands.
type TypingClearer interface {
	Clear(convID, userID uint)
}

type MessageService struct {
	store  repository.StoreInterface
	unread UnreadCache
	typing TypingClearer
	log    *slog.Logger
	cfg    Config
	retry  retrier
}

func NewMessageService(store repository.StoreInterface, unread UnreadCache, typing TypingClearer, log *slog.Logger, cfg Config) *MessageService {
	log = loggerOrDefault(log)
	cfg = cfg.withDefaults()
	return &MessageService{
		store:  store,
		unread: unread,
		typing: typing,
		log:    log,
		cfg:    cfg,
		retry:  retrier{backoff: cfg.RetryBackoff, log: log},
	}
}

func (s *MessageService) SendMessage(ctx context.Context, senderID uint, in SendMessageInput) (*models.Message, error) {
	content, err := validation.NormalizeContent(in.Content, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	clientID, err := validation.NormalizeClientID(in.ClientID)
	if err != nil {
		return nil, err
	}

	if clientID != nil {
		// A replay is answered only while the sender could still post.
		err := s.retry.do(ctx, "check sender", func() error {
			_, err := senderScope(ctx, s.store, in.ConversationID, senderID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if existing, err := s.findByClientID(ctx, senderID, in.ConversationID, *clientID); err != nil || existing != nil {
			return existing, err
		}
	}

	var (
		msg    *models.Message
		notify []uint
	)
	err = s.retry.do(ctx, "send message", func() error {
		err := s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			conv, err := senderScope(ctx, tx, in.ConversationID, senderID)
			if err != nil {
				return err
			}
			if in.ReplyToID != nil {
				parent, err := tx.Messages().FindByID(ctx, *in.ReplyToID)
				if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
					return storeErr(err, "")
				}
				if parent == nil || parent.ConversationID != conv.ID || parent.IsDeleted() {
					return apperr.Validation("reply_to_id must reference a message in this conversation")
				}
			}

			m := &models.Message{
				ConversationID: conv.ID,
				SenderID:       senderID,
				Kind:           models.TextMessage,
				Content:        content,
				ReplyToID:      in.ReplyToID,
				ClientID:       clientID,
				CreatedAt:      s.cfg.Now(),
			}
			if err := tx.Messages().Create(ctx, m); err != nil {
				return err
			}
			if err := tx.Conversations().TouchLastMessage(ctx, conv.ID, m.ID, m.CreatedAt); err != nil {
				return storeErr(err, "")
			}
			active, err := tx.Participants().ListActive(ctx, conv.ID)
			if err != nil {
				return storeErr(err, "")
			}
			msg = m
			notify = lo.Without(userIDs(active), senderID)
			return nil
		})
		if clientID != nil && errors.Is(err, repository.ErrDuplicateKey) {
			// A concurrent retry with the same client id won.
			existing, ferr := s.findByClientID(ctx, senderID, in.ConversationID, *clientID)
			if ferr != nil {
				return ferr
			}
			if existing != nil {
				msg, notify = existing, nil
				return nil
			}
		}
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}

	if s.typing != nil {
		s.typing.Clear(msg.ConversationID, senderID)
	}
	s.invalidate(ctx, notify...)
	return msg, nil
}

// findByClientID returns a previously stored message for this sender and
// client id, or nil when there is none.
func (s *MessageService) findByClientID(ctx context.Context, senderID, convID uint, clientID string) (*models.Message, error) {
	var found *models.Message
	err := s.retry.do(ctx, "find message by client id", func() error {
		m, err := s.store.Messages().FindByClientID(ctx, senderID, clientID)
		if errors.Is(err, repository.ErrRecordNotFound) {
			found = nil
			return nil
		}
		if err != nil {
			return storeErr(err, "")
		}
		found = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found != nil && found.ConversationID != convID {
		return nil, apperr.Conflict("client_id was already used for another conversation")
	}
	return found, nil
}

func (s *MessageService) GetMessages(ctx context.Context, convID, requesterID uint, in GetMessagesInput) (*MessagePage, error) {
	direction, err := ParseDirection(string(in.Direction))
	if err != nil {
		return nil, err
	}
	limit := s.cfg.pageSize(in.Limit)

	var cursor *models.Cursor
	if in.Cursor != "" {
		c, err := models.DecodeCursor(in.Cursor)
		if err != nil {
			return nil, apperr.Validation("invalid cursor")
		}
		cursor = &c
	}

	var messages []models.Message
	err = s.retry.do(ctx, "get messages", func() error {
		if _, err := readableMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}
		var err error
		if direction == DirectionOlder {
			messages, err = s.store.Messages().ListBefore(ctx, convID, cursor, limit+1)
		} else {
			messages, err = s.store.Messages().ListAfter(ctx, convID, cursor, limit+1)
		}
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}

	page := &MessagePage{}
	if len(messages) > limit {
		messages = messages[:limit]
		page.HasMore = true
	}
	if direction == DirectionOlder {
		slices.Reverse(messages)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	page.Messages = messages

	if n := len(messages); n > 0 {
		edge := messages[n-1]
		if direction == DirectionOlder {
			edge = messages[0]
		}
		page.NextCursor = edge.Cursor().Encode()
	}
	return page, nil
}

func (s *MessageService) GetMessage(ctx context.Context, messageID, requesterID uint) (*models.Message, error) {
	var msg *models.Message
	err := s.retry.do(ctx, "get message", func() error {
		m, err := s.store.Messages().FindByID(ctx, messageID)
		if err != nil {
			return storeErr(err, msgMessageNotFound)
		}
		if _, err := readableMember(ctx, s.store, m.ConversationID, requesterID); err != nil {
			if apperr.Is(err, apperr.CodeNotFound) {
				return apperr.NotFound(msgMessageNotFound)
			}
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) EditMessage(ctx context.Context, messageID, requesterID uint, content string) (*models.Message, error) {
	content, err := validation.NormalizeContent(content, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	var msg *models.Message
	err = s.retry.do(ctx, "edit message", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			m, err := s.ownedMessage(ctx, tx, messageID, requesterID, "edit")
			if err != nil {
				return err
			}
			now := s.cfg.Now()
			m.Content = content
			m.EditedAt = &now
			if err := tx.Messages().Update(ctx, m); err != nil {
				return storeErr(err, "")
			}
			msg = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage tombstones a message. The row keeps its id and ordering
// key so pages and replies stay stable; the content is discarded.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, requesterID uint) (*models.Message, error) {
	var (
		msg    *models.Message
		notify []uint
	)
	err := s.retry.do(ctx, "delete message", func() error {
		return s.store.Transaction(ctx, func(tx repository.StoreInterface) error {
			m, err := s.ownedMessage(ctx, tx, messageID, requesterID, "delete")
			if err != nil {
				return err
			}
			now := s.cfg.Now()
			m.Content = ""
			m.DeletedAt = &now
			if err := tx.Messages().Update(ctx, m); err != nil {
				return storeErr(err, "")
			}
			active, err := tx.Participants().ListActive(ctx, m.ConversationID)
			if err != nil {
				return storeErr(err, "")
			}
			msg = m
			notify = lo.Without(userIDs(active), requesterID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, notify...)
	return msg, nil
}

func (s *MessageService) ownedMessage(ctx context.Context, tx repository.StoreInterface, messageID, requesterID uint, action string) (*models.Message, error) {
	m, err := tx.Messages().FindByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, msgMessageNotFound)
	}
	if m.IsDeleted() {
		return nil, apperr.NotFound(msgMessageNotFound)
	}
	if _, err := tx.Participants().FindActive(ctx, m.ConversationID, requesterID); err != nil {
		return nil, storeErr(err, msgMessageNotFound)
	}
	if m.SenderID != requesterID {
		return nil, apperr.Forbidden("only the sender can " + action + " this message")
	}
	if m.Kind == models.SystemMessage {
		return nil, apperr.InvalidOperation("system messages cannot be changed")
	}
	return m, nil
}

func (s *MessageService) SearchMessages(ctx context.Context, convID, requesterID uint, query string, limit int) ([]models.Message, error) {
	query, err := validation.NormalizeSearchQuery(query)
	if err != nil {
		return nil, err
	}
	limit = s.cfg.pageSize(limit)

	var messages []models.Message
	err = s.retry.do(ctx, "search messages", func() error {
		if _, err := readableMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}
		var err error
		messages, err = s.store.Messages().Search(ctx, convID, query, limit)
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

func (s *MessageService) invalidate(ctx context.Context, userIDs ...uint) {
	if s.unread == nil || len(userIDs) == 0 {
		return
	}
	if err := s.unread.Invalidate(ctx, userIDs...); err != nil {
		s.log.Warn("unread cache invalidation failed", "err", err)
	}
}
