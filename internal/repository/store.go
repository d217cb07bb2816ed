package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Store is the gorm-backed StoreInterface.
type Store struct {
	db *gorm.DB

	conversations *ConversationRepository
	participants  *ParticipantRepository
	messages      *MessageRepository
	readMarkers   *ReadMarkerRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		conversations: NewConversationRepository(db),
		participants:  NewParticipantRepository(db),
		messages:      NewMessageRepository(db),
		readMarkers:   NewReadMarkerRepository(db),
	}
}

func (s *Store) Conversations() ConversationRepositoryInterface { return s.conversations }

func (s *Store) Participants() ParticipantRepositoryInterface { return s.participants }

func (s *Store) Messages() MessageRepositoryInterface { return s.messages }

func (s *Store) ReadMarkers() ReadMarkerRepositoryInterface { return s.readMarkers }

func (s *Store) Transaction(ctx context.Context, fn func(tx StoreInterface) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "database handle")
	}
	return sqlDB.PingContext(ctx)
}

// wrap annotates store failures while keeping sentinel errors matchable.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
