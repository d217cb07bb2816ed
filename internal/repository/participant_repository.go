package repository

import (
	"context"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"gorm.io/gorm"
)

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	return wrap(r.db.WithContext(ctx).Create(p).Error, "create participant")
}

func (r *ParticipantRepository) CreateBatch(ctx context.Context, ps []models.Participant) error {
	if len(ps) == 0 {
		return nil
	}
	return wrap(r.db.WithContext(ctx).Create(&ps).Error, "create participants")
}

func (r *ParticipantRepository) FindActive(ctx context.Context, convID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		First(&p).Error
	if err != nil {
		return nil, wrap(err, "find participant")
	}
	return &p, nil
}

func (r *ParticipantRepository) ListActive(ctx context.Context, convID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND left_at IS NULL", convID).
		Order("joined_at ASC").
		Order("id ASC").
		Find(&ps).Error
	return ps, wrap(err, "list participants")
}

func (r *ParticipantRepository) ListHistory(ctx context.Context, convID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("joined_at ASC").
		Order("id ASC").
		Find(&ps).Error
	return ps, wrap(err, "list participant history")
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, participantID uint, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND left_at IS NULL", participantID).
		Update("left_at", at)
	if res.Error != nil {
		return wrap(res.Error, "mark participant left")
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *ParticipantRepository) UpdateRole(ctx context.Context, participantID uint, role models.Role) error {
	res := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND left_at IS NULL", participantID).
		Update("role", role)
	if res.Error != nil {
		return wrap(res.Error, "update participant role")
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
