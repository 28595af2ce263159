package models

import (
	"time"

	"gorm.io/gorm"
)

type MediaType string

const (
	MediaNone     MediaType = ""
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaVoice    MediaType = "voice"
)

// Message is one platform message inside one conversation. Platform
// message ids repeat across chats, so uniqueness is (message id, conversation).
type Message struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PlatformMessageID int64        `gorm:"not null;uniqueIndex:idx_msg_conv,priority:1" json:"platform_message_id"`
	ConversationID    uint         `gorm:"not null;uniqueIndex:idx_msg_conv,priority:2;index" json:"conversation_id"`
	Conversation      Conversation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	SenderID *uint        `gorm:"index" json:"sender_id"` // null when the sender could not be resolved
	Sender   *Participant `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	Text       string    `gorm:"type:text" json:"text"`
	SentAt     time.Time `gorm:"index;not null" json:"sent_at"`
	IsOutgoing bool      `gorm:"default:false" json:"is_outgoing"`

	MediaType       MediaType `gorm:"type:varchar(20);default:''" json:"media_type"`
	MediaArchiveKey string    `json:"media_archive_key,omitempty"` // object key in the media archive, empty if not archived
}

type MessageResponse struct {
	ID                uint      `json:"id"`
	PlatformMessageID int64     `json:"platform_message_id"`
	ConversationID    uint      `json:"conversation_id"`
	SenderID          *uint     `json:"sender_id"`
	Text              string    `json:"text"`
	SentAt            time.Time `json:"sent_at"`
	IsOutgoing        bool      `json:"is_outgoing"`
	MediaType         MediaType `json:"media_type"`
	MediaArchiveKey   string    `json:"media_archive_key,omitempty"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		PlatformMessageID: m.PlatformMessageID,
		ConversationID:    m.ConversationID,
		SenderID:          m.SenderID,
		Text:              m.Text,
		SentAt:            m.SentAt,
		IsOutgoing:        m.IsOutgoing,
		MediaType:         m.MediaType,
		MediaArchiveKey:   m.MediaArchiveKey,
	}
}
