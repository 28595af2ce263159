package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dperhar/Karma-app-sub001/internal/models"
)

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) FindByUserID(userID uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.Where("user_id = ?", userID).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// Upsert creates or replaces the single stored credential for a user.
// Re-authentication overwrites the sealed session in place.
func (r *ConnectionRepository) Upsert(conn *models.Connection) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_session", "active", "validation_status", "last_validated_at", "updated_at",
		}),
	}).Create(conn).Error
}

func (r *ConnectionRepository) SetValidationStatus(userID uint, status models.ValidationStatus, at time.Time) error {
	return r.db.Model(&models.Connection{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"validation_status": status,
			"last_validated_at": at,
		}).Error
}

// Deactivate soft-invalidates the stored credential on explicit logout.
// The row is kept for audit; nothing in the sync core deletes it.
func (r *ConnectionRepository) Deactivate(userID uint) error {
	return r.db.Model(&models.Connection{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"active":            false,
			"validation_status": models.ValidationInvalid,
		}).Error
}
