package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.First(&conv, id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByIDForUser looks a conversation up scoped to its owner. A row
// belonging to another user is indistinguishable from a missing one.
func (r *ConversationRepository) FindByIDForUser(userID, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByPlatformChatID(userID uint, chatID int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Where("user_id = ? AND platform_chat_id = ?", userID, chatID).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) ListByUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *ConversationRepository) ListByStatus(userID uint, statuses ...syncstate.Status) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Where("user_id = ? AND sync_status IN ?", userID, statuses).
		Order("updated_at ASC").
		Find(&convs).Error
	return convs, err
}

// UpsertDialogPage persists one page of the dialog list in a single
// transaction. Existing rows keep their sync bookkeeping: only the
// descriptive fields and the dialog-list resume point are refreshed, so a
// re-fetched page never regresses participant or message cursors.
func (r *ConversationRepository) UpsertDialogPage(userID uint, convs []*models.Conversation) (int, error) {
	if len(convs) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, conv := range convs {
			conv.UserID = userID
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "platform_chat_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"type", "title", "username",
					"dialog_cursor_date", "dialog_cursor_id", "updated_at",
				}),
			}).Create(conv)
			if res.Error != nil {
				return res.Error
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DialogResumePoint is a pure function of the furthest dialog durably
// persisted: the oldest dialog-cursor among the user's conversations.
// A zero cursor means the dialog list has never been fetched.
func (r *ConversationRepository) DialogResumePoint(userID uint) (syncstate.DialogCursor, error) {
	var conv models.Conversation
	err := r.db.Where("user_id = ? AND dialog_cursor_date IS NOT NULL", userID).
		Order("dialog_cursor_date ASC, dialog_cursor_id ASC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return syncstate.DialogCursor{}, nil
	}
	if err != nil {
		return syncstate.DialogCursor{}, err
	}
	return conv.DialogCursor(), nil
}

// SaveParticipantPage upserts one page of members and advances the
// participant offset and sync status as one unit.
func (r *ConversationRepository) SaveParticipantPage(conv *models.Conversation, members []*models.Participant, nextOffset int, status syncstate.Status) (int, error) {
	saved := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range members {
			p.ConversationID = conv.ID
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "platform_user_id"}, {Name: "conversation_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"username", "first_name", "last_name", "is_bot", "updated_at",
				}),
			}).Create(p).Error; err != nil {
				return err
			}
			saved++
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"participant_offset": nextOffset,
				"sync_status":        status,
			}).Error
	})
	if err != nil {
		return 0, err
	}
	conv.ParticipantOffset = nextOffset
	conv.SyncStatus = status
	return saved, nil
}

func (r *ConversationRepository) UpdateSyncStatus(convID uint, status syncstate.Status) error {
	return r.db.Model(&models.Conversation{}).Where("id = ?", convID).
		Update("sync_status", status).Error
}

// ResetSync puts a conversation back to the never-synced state and clears
// every cursor, for a full re-sync from scratch.
func (r *ConversationRepository) ResetSync(convID uint) error {
	return r.db.Model(&models.Conversation{}).Where("id = ?", convID).
		Updates(map[string]interface{}{
			"sync_status":        syncstate.Reset(),
			"participant_offset": 0,
			"message_cursor":     0,
		}).Error
}
