package repository

import (
	"time"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

// UserRepositoryInterface defines the contract for user repository operations
type UserRepositoryInterface interface {
	Create(user *models.User) error
	FindByID(id uint) (*models.User, error)
	FindByPlatformID(platformUserID int64) (*models.User, error)
	Update(user *models.User) error
}

// ConnectionRepositoryInterface defines the contract for stored-credential operations
type ConnectionRepositoryInterface interface {
	FindByUserID(userID uint) (*models.Connection, error)
	Upsert(conn *models.Connection) error
	SetValidationStatus(userID uint, status models.ValidationStatus, at time.Time) error
	Deactivate(userID uint) error
}

// ConversationRepositoryInterface defines the contract for conversation repository operations
type ConversationRepositoryInterface interface {
	FindByID(id uint) (*models.Conversation, error)
	FindByIDForUser(userID, id uint) (*models.Conversation, error)
	FindByPlatformChatID(userID uint, chatID int64) (*models.Conversation, error)
	ListByUser(userID uint) ([]models.Conversation, error)
	ListByStatus(userID uint, statuses ...syncstate.Status) ([]models.Conversation, error)
	UpsertDialogPage(userID uint, convs []*models.Conversation) (int, error)
	DialogResumePoint(userID uint) (syncstate.DialogCursor, error)
	SaveParticipantPage(conv *models.Conversation, members []*models.Participant, nextOffset int, status syncstate.Status) (int, error)
	UpdateSyncStatus(convID uint, status syncstate.Status) error
	ResetSync(convID uint) error
}

// ParticipantRepositoryInterface defines the contract for participant repository operations
type ParticipantRepositoryInterface interface {
	Upsert(p *models.Participant) error
	FindByPlatformID(convID uint, platformUserID int64) (*models.Participant, error)
	ListByConversation(convID uint, limit, offset int) ([]models.Participant, error)
	CountByConversation(convID uint) (int64, error)
}

// MessageRepositoryInterface defines the contract for message repository operations
type MessageRepositoryInterface interface {
	SaveMessagePage(conv *models.Conversation, msgs []*models.Message, cursor syncstate.MessageCursor, status syncstate.Status) (int, error)
	ListByConversation(convID uint, limit int) ([]models.Message, error)
	CountByConversation(convID uint) (int64, error)
}
