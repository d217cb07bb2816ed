package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/presence"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
)

const maxDisplayNameLength = 64

// TypingService gates the presence tracker behind active participation.
type TypingService struct {
	store   repository.StoreInterface
	tracker *presence.Tracker
	retry   retrier
}

func NewTypingService(store repository.StoreInterface, tracker *presence.Tracker, log *slog.Logger, cfg Config) *TypingService {
	log = loggerOrDefault(log)
	cfg = cfg.withDefaults()
	return &TypingService{
		store:   store,
		tracker: tracker,
		retry:   retrier{backoff: cfg.RetryBackoff, log: log},
	}
}

func (s *TypingService) SetTyping(ctx context.Context, convID, userID uint, displayName string) (presence.Signal, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return presence.Signal{}, apperr.Validation("display_name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return presence.Signal{}, apperr.Validation("display_name is too long")
	}
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return presence.Signal{}, err
	}
	return s.tracker.SetTyping(convID, userID, displayName), nil
}

func (s *TypingService) GetTyping(ctx context.Context, convID, requesterID uint) ([]presence.Signal, error) {
	if err := s.requireMember(ctx, convID, requesterID); err != nil {
		return nil, err
	}
	return s.tracker.Typing(convID, requesterID), nil
}

func (s *TypingService) requireMember(ctx context.Context, convID, userID uint) error {
	return s.retry.do(ctx, "check participation", func() error {
		_, _, err := activeMember(ctx, s.store, convID, userID)
		return err
	})
}
