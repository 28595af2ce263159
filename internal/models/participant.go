package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant is one member of one conversation, keyed by the platform
// user id within that conversation. Synthetic participants stand in for
// channel posts that carry no real sender.
type Participant struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PlatformUserID int64        `gorm:"not null;uniqueIndex:idx_member_conv,priority:1" json:"platform_user_id"`
	ConversationID uint         `gorm:"not null;uniqueIndex:idx_member_conv,priority:2;index" json:"conversation_id"`
	Conversation   Conversation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsBot     bool   `gorm:"default:false" json:"is_bot"`
	Synthetic bool   `gorm:"default:false" json:"synthetic"`
}

type ParticipantResponse struct {
	ID             uint   `json:"id"`
	PlatformUserID int64  `json:"platform_user_id"`
	ConversationID uint   `json:"conversation_id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	IsBot          bool   `json:"is_bot"`
	Synthetic      bool   `json:"synthetic"`
}

func (p *Participant) ToResponse() ParticipantResponse {
	return ParticipantResponse{
		ID:             p.ID,
		PlatformUserID: p.PlatformUserID,
		ConversationID: p.ConversationID,
		Username:       p.Username,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		IsBot:          p.IsBot,
		Synthetic:      p.Synthetic,
	}
}
