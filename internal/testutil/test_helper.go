package testutil

import (
	"testing"
	"time"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTestUser creates a test user with default values
func (h *TestHelper) CreateTestUser(id uint, platformUserID int64) *models.User {
	if id == 0 {
		id = 1
	}
	if platformUserID == 0 {
		platformUserID = 100001
	}

	return &models.User{
		ID:             id,
		PlatformUserID: platformUserID,
		Phone:          "+15550001122",
		Username:       "testuser",
		FirstName:      "Test",
		LastName:       "User",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// CreateTestConversation creates a test conversation with default values
func (h *TestHelper) CreateTestConversation(id, userID uint, chatID int64) *models.Conversation {
	if id == 0 {
		id = 1
	}
	if userID == 0 {
		userID = 1
	}
	if chatID == 0 {
		chatID = 200001
	}

	return &models.Conversation{
		ID:             id,
		UserID:         userID,
		PlatformChatID: chatID,
		Type:           models.GroupConversation,
		Title:          "Test Group",
		SyncStatus:     syncstate.StatusNeverSynced,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// CreateTestConnection creates a stored connection with a sealed blob
func (h *TestHelper) CreateTestConnection(userID uint, blob []byte) *models.Connection {
	if userID == 0 {
		userID = 1
	}
	now := time.Now()
	return &models.Connection{
		ID:               userID,
		UserID:           userID,
		EncryptedSession: blob,
		Active:           true,
		ValidationStatus: models.ValidationValid,
		LastValidatedAt:  &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
