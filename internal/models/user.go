package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PlatformUserID int64  `gorm:"uniqueIndex;not null" json:"platform_user_id"`
	Phone          string `gorm:"index" json:"phone"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`

	Connection    *Connection    `gorm:"foreignKey:UserID" json:"-"`
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"-"`
}

type UserResponse struct {
	ID             uint   `json:"id"`
	PlatformUserID int64  `json:"platform_user_id"`
	Phone          string `json:"phone"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:             u.ID,
		PlatformUserID: u.PlatformUserID,
		Phone:          u.Phone,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
	}
}
