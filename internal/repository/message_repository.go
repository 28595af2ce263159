package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveMessagePage persists one fetched page and advances the message
// cursor and sync status in the same transaction. A crash after the rows
// but before the cursor therefore never happens; a crash before the
// transaction commits causes at worst a harmless re-fetch of the page,
// which the (platform_message_id, conversation_id) unique index absorbs
// via DO NOTHING.
func (r *MessageRepository) SaveMessagePage(conv *models.Conversation, msgs []*models.Message, cursor syncstate.MessageCursor, status syncstate.Status) (int, error) {
	inserted := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			m.ConversationID = conv.ID
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "platform_message_id"}, {Name: "conversation_id"}},
				DoNothing: true,
			}).Create(m)
			if res.Error != nil {
				return res.Error
			}
			inserted += int(res.RowsAffected)
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"message_cursor": int64(cursor),
				"sync_status":    status,
			}).Error
	})
	if err != nil {
		return 0, err
	}
	conv.MessageCursor = int64(cursor)
	conv.SyncStatus = status
	return inserted, nil
}

func (r *MessageRepository) ListByConversation(convID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.Preload("Sender").
		Where("conversation_id = ?", convID).
		Order("platform_message_id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *MessageRepository) CountByConversation(convID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).Where("conversation_id = ?", convID).Count(&count).Error
	return count, err
}
