package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
)

// UnreadCache memoizes unread summaries per user. Implementations must
// tolerate being unavailable; a miss falls back to the store.
//
// Get also reports the user's current generation. A fill must be stamped
// with the generation observed before counting, so a fill that races an
// Invalidate is never served. A negative generation means "do not fill".
type UnreadCache interface {
	Get(ctx context.Context, userID uint) (models.UnreadSummary, int64, bool)
	Set(ctx context.Context, userID uint, gen int64, summary models.UnreadSummary) error
	Invalidate(ctx context.Context, userIDs ...uint) error
}

type ReadService struct {
	store  repository.StoreInterface
	unread UnreadCache
	log    *slog.Logger
	cfg    Config
	retry  retrier
}

func NewReadService(store repository.StoreInterface, unread UnreadCache, log *slog.Logger, cfg Config) *ReadService {
	log = loggerOrDefault(log)
	cfg = cfg.withDefaults()
	return &ReadService{
		store:  store,
		unread: unread,
		log:    log,
		cfg:    cfg,
		retry:  retrier{backoff: cfg.RetryBackoff, log: log},
	}
}

// MarkMessagesAsRead advances the requester's marker. Without ids the
// boundary is the newest message; with ids it is the newest of those that
// belong to the conversation. Earlier boundaries leave the marker untouched.
// The returned marker is the one in effect afterwards.
func (s *ReadService) MarkMessagesAsRead(ctx context.Context, convID, requesterID uint, messageIDs []uint) (*models.ReadMarker, error) {
	ids := sanitizeIDs(messageIDs, 0)

	var marker *models.ReadMarker
	err := s.retry.do(ctx, "mark messages as read", func() error {
		if _, _, err := activeMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}

		var (
			boundary *models.Message
			err      error
		)
		if len(ids) == 0 {
			boundary, err = s.store.Messages().Latest(ctx, convID)
		} else {
			boundary, err = s.store.Messages().LatestAmong(ctx, convID, ids)
			if errors.Is(err, repository.ErrRecordNotFound) {
				return apperr.Validation("message_ids do not belong to this conversation")
			}
		}
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			// Empty conversation: nothing to mark.
		case err != nil:
			return storeErr(err, "")
		default:
			if err := s.store.ReadMarkers().UpsertMonotonic(ctx, &models.ReadMarker{
				ConversationID:    convID,
				UserID:            requesterID,
				LastReadMessageID: boundary.ID,
				LastReadMessageAt: boundary.CreatedAt,
				LastReadAt:        s.cfg.Now(),
			}); err != nil {
				return storeErr(err, "")
			}
		}

		current, err := s.store.ReadMarkers().Get(ctx, convID, requesterID)
		if errors.Is(err, repository.ErrRecordNotFound) {
			marker = &models.ReadMarker{ConversationID: convID, UserID: requesterID}
			return nil
		}
		if err != nil {
			return storeErr(err, "")
		}
		marker = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.unread != nil {
		if err := s.unread.Invalidate(ctx, requesterID); err != nil {
			s.log.Warn("unread cache invalidation failed", "err", err, "user_id", requesterID)
		}
	}
	return marker, nil
}

// GetUnreadCounts returns unread counts for every conversation the requester
// is active in, excluding their own and deleted messages.
func (s *ReadService) GetUnreadCounts(ctx context.Context, requesterID uint) (models.UnreadSummary, error) {
	gen := int64(-1)
	if s.unread != nil {
		summary, g, ok := s.unread.Get(ctx, requesterID)
		if ok {
			return summary, nil
		}
		gen = g
	}

	var counts map[uint]int64
	err := s.retry.do(ctx, "count unread", func() error {
		var err error
		counts, err = s.store.ReadMarkers().CountUnread(ctx, requesterID)
		return storeErr(err, "")
	})
	if err != nil {
		return models.UnreadSummary{}, err
	}

	summary := models.NewUnreadSummary(counts)
	if s.unread != nil && gen >= 0 {
		if err := s.unread.Set(ctx, requesterID, gen, summary); err != nil {
			s.log.Warn("unread cache fill failed", "err", err, "user_id", requesterID)
		}
	}
	return summary, nil
}

// GetReadMarkers lists every participant's marker in a conversation.
func (s *ReadService) GetReadMarkers(ctx context.Context, convID, requesterID uint) ([]models.ReadMarker, error) {
	var markers []models.ReadMarker
	err := s.retry.do(ctx, "get read markers", func() error {
		if _, err := readableMember(ctx, s.store, convID, requesterID); err != nil {
			return err
		}
		var err error
		markers, err = s.store.ReadMarkers().ListByConversation(ctx, convID)
		return storeErr(err, "")
	})
	if err != nil {
		return nil, err
	}
	if markers == nil {
		markers = []models.ReadMarker{}
	}
	return markers, nil
}
