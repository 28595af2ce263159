package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/engine"
	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/pool"
	"github.com/dperhar/Karma-app-sub001/internal/retry"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
	"github.com/dperhar/Karma-app-sub001/internal/vault"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

// MockUserRepository is an in-memory user store for testing.
type MockUserRepository struct {
	users map[uint]*models.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[uint]*models.User)}
}

func (m *MockUserRepository) Create(user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) FindByID(id uint) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *MockUserRepository) FindByPlatformID(platformUserID int64) (*models.User, error) {
	for _, user := range m.users {
		if user.PlatformUserID == platformUserID {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockUserRepository) Update(user *models.User) error {
	m.users[user.ID] = user
	return nil
}

// MockConnectionRepository is an in-memory credential store for testing.
type MockConnectionRepository struct {
	mu    sync.Mutex
	conns map[uint]*models.Connection
}

func NewMockConnectionRepository() *MockConnectionRepository {
	return &MockConnectionRepository{conns: make(map[uint]*models.Connection)}
}

func (m *MockConnectionRepository) FindByUserID(userID uint) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *MockConnectionRepository) Upsert(conn *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.UserID] = conn
	return nil
}

func (m *MockConnectionRepository) SetValidationStatus(userID uint, status models.ValidationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[userID]; ok {
		conn.ValidationStatus = status
		conn.LastValidatedAt = &at
	}
	return nil
}

func (m *MockConnectionRepository) Deactivate(userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[userID]; ok {
		conn.Active = false
	}
	return nil
}

// MockConversationRepository is an in-memory conversation store that keeps
// the real repository's contract of advancing cursor and status together.
type MockConversationRepository struct {
	mu    sync.Mutex
	seq   uint
	convs map[uint]*models.Conversation
}

func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{convs: make(map[uint]*models.Conversation)}
}

func (m *MockConversationRepository) add(conv *models.Conversation) *models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	conv.ID = m.seq
	m.convs[conv.ID] = conv
	return conv
}

func (m *MockConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conv
	return &cp, nil
}

func (m *MockConversationRepository) FindByIDForUser(userID, id uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok || conv.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conv
	return &cp, nil
}

func (m *MockConversationRepository) FindByPlatformChatID(userID uint, chatID int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.convs {
		if conv.UserID == userID && conv.PlatformChatID == chatID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) ListByUser(userID uint) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, conv := range m.convs {
		if conv.UserID == userID {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (m *MockConversationRepository) ListByStatus(userID uint, statuses ...syncstate.Status) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, conv := range m.convs {
		if conv.UserID != userID {
			continue
		}
		for _, s := range statuses {
			if conv.SyncStatus == s {
				out = append(out, *conv)
				break
			}
		}
	}
	return out, nil
}

func (m *MockConversationRepository) UpsertDialogPage(userID uint, convs []*models.Conversation) (int, error) {
	for _, conv := range convs {
		conv.UserID = userID
		m.add(conv)
	}
	return len(convs), nil
}

func (m *MockConversationRepository) DialogResumePoint(userID uint) (syncstate.DialogCursor, error) {
	return syncstate.DialogCursor{}, nil
}

func (m *MockConversationRepository) SaveParticipantPage(conv *models.Conversation, members []*models.Participant, nextOffset int, status syncstate.Status) (int, error) {
	conv.ParticipantOffset = nextOffset
	conv.SyncStatus = status
	m.sync(conv)
	return len(members), nil
}

func (m *MockConversationRepository) UpdateSyncStatus(convID uint, status syncstate.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[convID]; ok {
		conv.SyncStatus = status
	}
	return nil
}

func (m *MockConversationRepository) ResetSync(convID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[convID]; ok {
		conv.SyncStatus = syncstate.Reset()
		conv.ParticipantOffset = 0
		conv.MessageCursor = 0
	}
	return nil
}

// sync writes an engine-mutated copy back into the store.
func (m *MockConversationRepository) sync(conv *models.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.convs[conv.ID]; ok {
		stored.SyncStatus = conv.SyncStatus
		stored.MessageCursor = conv.MessageCursor
		stored.ParticipantOffset = conv.ParticipantOffset
	}
}

// MockParticipantRepository is an in-memory participant store for testing.
type MockParticipantRepository struct {
	mu   sync.Mutex
	seq  uint
	rows map[string]*models.Participant
}

func NewMockParticipantRepository() *MockParticipantRepository {
	return &MockParticipantRepository{rows: make(map[string]*models.Participant)}
}

func participantKey(convID uint, pid int64) string {
	return fmt.Sprintf("%d:%d", convID, pid)
}

func (m *MockParticipantRepository) Upsert(p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(p.ConversationID, p.PlatformUserID)
	if existing, ok := m.rows[key]; ok {
		p.ID = existing.ID
	} else {
		m.seq++
		p.ID = m.seq
	}
	cp := *p
	m.rows[key] = &cp
	return nil
}

func (m *MockParticipantRepository) FindByPlatformID(convID uint, platformUserID int64) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[participantKey(convID, platformUserID)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockParticipantRepository) ListByConversation(convID uint, limit, offset int) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.rows {
		if p.ConversationID == convID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MockParticipantRepository) CountByConversation(convID uint) (int64, error) {
	ps, _ := m.ListByConversation(convID, 0, 0)
	return int64(len(ps)), nil
}

// MockMessageRepository is an in-memory message store that, like the real
// one, absorbs duplicate rows and lands cursor and status with the page.
type MockMessageRepository struct {
	mu    sync.Mutex
	rows  map[string]*models.Message
	convs *MockConversationRepository
}

func NewMockMessageRepository(convs *MockConversationRepository) *MockMessageRepository {
	return &MockMessageRepository{rows: make(map[string]*models.Message), convs: convs}
}

func messageKey(convID uint, mid int64) string {
	return fmt.Sprintf("%d:%d", convID, mid)
}

func (m *MockMessageRepository) SaveMessagePage(conv *models.Conversation, msgs []*models.Message, cursor syncstate.MessageCursor, status syncstate.Status) (int, error) {
	m.mu.Lock()
	inserted := 0
	for _, msg := range msgs {
		msg.ConversationID = conv.ID
		key := messageKey(conv.ID, msg.PlatformMessageID)
		if _, dup := m.rows[key]; dup {
			continue
		}
		cp := *msg
		m.rows[key] = &cp
		inserted++
	}
	m.mu.Unlock()

	conv.MessageCursor = int64(cursor)
	conv.SyncStatus = status
	m.convs.sync(conv)
	return inserted, nil
}

func (m *MockMessageRepository) ListByConversation(convID uint, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.rows {
		if msg.ConversationID == convID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *MockMessageRepository) CountByConversation(convID uint) (int64, error) {
	ms, _ := m.ListByConversation(convID, 0)
	return int64(len(ms)), nil
}

// scriptedClient delegates platform calls to swappable functions.
type scriptedClient struct {
	messages func(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*platform.MessagePage, error)
}

func (c *scriptedClient) Me(ctx context.Context) (*platform.Identity, error) {
	return &platform.Identity{PlatformUserID: 777}, nil
}

func (c *scriptedClient) Dialogs(ctx context.Context, offsetDate time.Time, offsetID int64, limit int) (*platform.DialogPage, error) {
	return &platform.DialogPage{}, nil
}

func (c *scriptedClient) Members(ctx context.Context, chatID int64, offset, limit int) (*platform.MemberPage, error) {
	return &platform.MemberPage{}, nil
}

func (c *scriptedClient) Messages(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*platform.MessagePage, error) {
	return c.messages(ctx, chatID, cursor, limit, direction)
}

func (c *scriptedClient) Close() error { return nil }

type scriptedFactory struct {
	client *scriptedClient
}

func (f *scriptedFactory) Dial(ctx context.Context, session []byte) (platform.Client, error) {
	return f.client, nil
}

// syncFixture wires a SyncService onto in-memory stores and a scripted
// platform client for user 1.
type syncFixture struct {
	svc    *SyncService
	client *scriptedClient
	convs  *MockConversationRepository
	msgs   *MockMessageRepository
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	v, err := vault.New(testKey)
	if err != nil {
		t.Fatalf("vault.New returned error: %v", err)
	}
	blob, err := v.Seal([]byte("session"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	connRepo := NewMockConnectionRepository()
	connRepo.Upsert(&models.Connection{
		UserID:           1,
		EncryptedSession: blob,
		Active:           true,
		ValidationStatus: models.ValidationValid,
	})

	client := &scriptedClient{}
	monitor := health.NewMonitor()
	zlog := zap.NewNop()
	p := pool.New(pool.Config{}, v, connRepo, &scriptedFactory{client: client}, monitor, zlog)
	t.Cleanup(p.DisconnectAll)
	retrier := retry.NewCoordinator(retry.Config{MaxAttempts: 2}, monitor, zlog)

	convs := NewMockConversationRepository()
	parts := NewMockParticipantRepository()
	msgs := NewMockMessageRepository(convs)
	eng := engine.New(engine.Config{}, p, retrier, convs, parts, msgs, nil, monitor, zlog)

	svc := NewSyncService(eng, convs, monitor, nil, zlog)
	return &syncFixture{svc: svc, client: client, convs: convs, msgs: msgs}
}

// serveHistory scripts a fixed per-chat chronology of messages with ids
// descending from topID.
func serveHistory(perChat map[int64]int, topID int64) func(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*platform.MessagePage, error) {
	return func(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*platform.MessagePage, error) {
		total := perChat[chatID]
		bottom := topID - int64(total) + 1
		start := topID
		if cursor > 0 {
			start = cursor - 1
		}
		page := &platform.MessagePage{}
		for id := start; id >= bottom && len(page.Messages) < limit; id-- {
			page.Messages = append(page.Messages, platform.MessageData{
				MessageID: id,
				SenderID:  42,
				Text:      fmt.Sprintf("message %d", id),
				Date:      time.Unix(id, 0),
			})
		}
		if len(page.Messages) > 0 {
			page.HasMore = page.Messages[len(page.Messages)-1].MessageID > bottom
		}
		return page, nil
	}
}
