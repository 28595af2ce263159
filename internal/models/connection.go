package models

import (
	"time"

	"gorm.io/gorm"
)

type ValidationStatus string

const (
	ValidationUnset   ValidationStatus = ""
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationExpired ValidationStatus = "expired"
)

// Connection holds a user's sealed platform session. At most one row per
// user; logout soft-invalidates it, nothing in the sync core deletes it.
type Connection struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint `gorm:"uniqueIndex;not null" json:"user_id"`
	User   User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	EncryptedSession []byte           `gorm:"type:bytea;not null" json:"-"`
	Active           bool             `gorm:"default:true;index" json:"active"`
	ValidationStatus ValidationStatus `gorm:"type:varchar(20);default:''" json:"validation_status"`
	LastValidatedAt  *time.Time       `json:"last_validated_at"`
}

func (c *Connection) Usable() bool {
	return c.Active && c.ValidationStatus == ValidationValid && len(c.EncryptedSession) > 0
}

type ConnectionResponse struct {
	UserID           uint             `json:"user_id"`
	Active           bool             `json:"active"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	LastValidatedAt  *time.Time       `json:"last_validated_at"`
}

func (c *Connection) ToResponse() ConnectionResponse {
	return ConnectionResponse{
		UserID:           c.UserID,
		Active:           c.Active,
		ValidationStatus: c.ValidationStatus,
		LastValidatedAt:  c.LastValidatedAt,
	}
}
