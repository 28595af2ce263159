package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dperhar/Karma-app-sub001/internal/models"
)

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Upsert inserts or refreshes one participant. A duplicate key is an
// expected idempotency outcome, handled by the conflict clause, never an
// error. Postgres RETURNING fills the id on both paths.
func (r *ParticipantRepository) Upsert(p *models.Participant) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform_user_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "first_name", "last_name", "is_bot", "updated_at",
		}),
	}).Create(p).Error
}

func (r *ParticipantRepository) FindByPlatformID(convID uint, platformUserID int64) (*models.Participant, error) {
	var p models.Participant
	err := r.db.Where("conversation_id = ? AND platform_user_id = ?", convID, platformUserID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) ListByConversation(convID uint, limit, offset int) ([]models.Participant, error) {
	var parts []models.Participant
	err := r.db.Where("conversation_id = ?", convID).
		Order("platform_user_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&parts).Error
	return parts, err
}

func (r *ParticipantRepository) CountByConversation(convID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Participant{}).Where("conversation_id = ?", convID).Count(&count).Error
	return count, err
}
