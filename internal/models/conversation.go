package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

type ConversationType string

const (
	PrivateConversation    ConversationType = "private"
	GroupConversation      ConversationType = "group"
	SupergroupConversation ConversationType = "supergroup"
	ChannelConversation    ConversationType = "channel"
)

// Conversation is one dialog of one user. Platform chat ids are only
// unique per account, hence the composite unique index with the owner.
type Conversation struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PlatformChatID int64 `gorm:"not null;uniqueIndex:idx_chat_user,priority:1" json:"platform_chat_id"`
	UserID         uint  `gorm:"not null;uniqueIndex:idx_chat_user,priority:2;index" json:"user_id"`
	User           User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Type     ConversationType `gorm:"type:varchar(20);not null" json:"type"`
	Title    string           `json:"title"`
	Username string           `json:"username"`

	// Sync bookkeeping. The cursors are only advanced in the same
	// transaction that persists the page they describe.
	SyncStatus        syncstate.Status `gorm:"type:varchar(30);default:'never_synced';index" json:"sync_status"`
	DialogCursorDate  *time.Time       `json:"dialog_cursor_date"`
	DialogCursorID    int64            `gorm:"default:0" json:"dialog_cursor_id"`
	ParticipantOffset int              `gorm:"default:0" json:"participant_offset"`
	MessageCursor     int64            `gorm:"default:0" json:"message_cursor"`
	SyncStats         datatypes.JSON   `gorm:"type:jsonb" json:"sync_stats,omitempty"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"-"`
	Messages     []Message     `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) MessageCursorValue() syncstate.MessageCursor {
	return syncstate.MessageCursor(c.MessageCursor)
}

func (c *Conversation) DialogCursor() syncstate.DialogCursor {
	cur := syncstate.DialogCursor{ID: c.DialogCursorID}
	if c.DialogCursorDate != nil {
		cur.Date = *c.DialogCursorDate
	}
	return cur
}

type ConversationResponse struct {
	ID                uint             `json:"id"`
	PlatformChatID    int64            `json:"platform_chat_id"`
	Type              ConversationType `json:"type"`
	Title             string           `json:"title"`
	Username          string           `json:"username"`
	SyncStatus        syncstate.Status `json:"sync_status"`
	ParticipantOffset int              `json:"participant_offset"`
	MessageCursor     int64            `json:"message_cursor"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (c *Conversation) ToResponse() ConversationResponse {
	return ConversationResponse{
		ID:                c.ID,
		PlatformChatID:    c.PlatformChatID,
		Type:              c.Type,
		Title:             c.Title,
		Username:          c.Username,
		SyncStatus:        c.SyncStatus,
		ParticipantOffset: c.ParticipantOffset,
		MessageCursor:     c.MessageCursor,
		UpdatedAt:         c.UpdatedAt,
	}
}
