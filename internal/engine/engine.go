// Package engine orchestrates the connection pool, retry coordinator and
// sync state machine to pull dialogs, participants and messages in bounded
// pages and persist them idempotently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/pool"
	"github.com/dperhar/Karma-app-sub001/internal/repository"
	"github.com/dperhar/Karma-app-sub001/internal/retry"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

// ErrSyncInFlight means another sync for the same conversation (or the
// same user's dialog list) is still running. The caller should try later
// rather than wait.
var ErrSyncInFlight = errors.New("sync already in flight")

// MediaStore archives message media opaquely. Archiving is best-effort:
// the engine syncs on without it.
type MediaStore interface {
	Archive(ctx context.Context, key string, data []byte, contentType string) error
}

type Config struct {
	PageSize    int
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 || c.PageSize > syncstate.MaxPageSize {
		c.PageSize = syncstate.MaxPageSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 45 * time.Second
	}
	return c
}

type Engine struct {
	cfg     Config
	pool    *pool.Pool
	retrier *retry.Coordinator
	convs   repository.ConversationRepositoryInterface
	parts   repository.ParticipantRepositoryInterface
	msgs    repository.MessageRepositoryInterface
	media   MediaStore // nil when no archive is configured
	monitor *health.Monitor
	log     *zap.Logger

	// flights serializes cursor-mutating work per (user, conversation).
	fmu     sync.Mutex
	flights map[string]struct{}
}

func New(
	cfg Config,
	p *pool.Pool,
	retrier *retry.Coordinator,
	convs repository.ConversationRepositoryInterface,
	parts repository.ParticipantRepositoryInterface,
	msgs repository.MessageRepositoryInterface,
	media MediaStore,
	monitor *health.Monitor,
	log *zap.Logger,
) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		pool:    p,
		retrier: retrier,
		convs:   convs,
		parts:   parts,
		msgs:    msgs,
		media:   media,
		monitor: monitor,
		log:     log,
		flights: make(map[string]struct{}),
	}
}

func (e *Engine) beginFlight(key string) error {
	e.fmu.Lock()
	defer e.fmu.Unlock()
	if _, busy := e.flights[key]; busy {
		return ErrSyncInFlight
	}
	e.flights[key] = struct{}{}
	return nil
}

func (e *Engine) endFlight(key string) {
	e.fmu.Lock()
	defer e.fmu.Unlock()
	delete(e.flights, key)
}

func (e *Engine) pageSize(limit int) int {
	limit = syncstate.ClampPageSize(limit)
	if limit > e.cfg.PageSize {
		limit = e.cfg.PageSize
	}
	return limit
}

type DialogSyncResult struct {
	Synced     int                    `json:"synced"`
	Done       bool                   `json:"done"`
	NextCursor syncstate.DialogCursor `json:"-"`
}

// SyncDialogs fetches one page of the user's conversation list, resuming
// from the furthest dialog already persisted, and upserts conversations by
// (platform chat id, user).
func (e *Engine) SyncDialogs(ctx context.Context, userID uint, limit int) (*DialogSyncResult, error) {
	key := fmt.Sprintf("dialogs:%d", userID)
	if err := e.beginFlight(key); err != nil {
		return nil, err
	}
	defer e.endFlight(key)

	session, err := e.pool.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}

	cursor, err := e.convs.DialogResumePoint(userID)
	if err != nil {
		return nil, err
	}

	limit = e.pageSize(limit)
	var page *platform.DialogPage
	err = e.retrier.Do(ctx, userID, "dialogs", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		var cerr error
		page, cerr = session.Client.Dialogs(callCtx, cursor.Date, cursor.ID, limit)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	convs := make([]*models.Conversation, 0, len(page.Dialogs))
	for _, d := range page.Dialogs {
		date := d.TopMessageDate
		convs = append(convs, &models.Conversation{
			PlatformChatID:   d.ChatID,
			Type:             conversationType(d.Type),
			Title:            d.Title,
			Username:         d.Username,
			SyncStatus:       syncstate.StatusNeverSynced,
			DialogCursorDate: &date,
			DialogCursorID:   d.TopMessageID,
		})
	}

	synced, err := e.convs.UpsertDialogPage(userID, convs)
	if err != nil {
		return nil, err
	}
	e.monitor.RecordRows("conversations", synced)
	e.log.Info("dialog page synced",
		zap.Uint("user_id", userID),
		zap.Int("count", synced),
		zap.Bool("has_more", page.HasMore))

	return &DialogSyncResult{
		Synced:     synced,
		Done:       !page.HasMore,
		NextCursor: syncstate.DialogCursor{Date: page.NextDate, ID: page.NextID},
	}, nil
}

type ParticipantSyncResult struct {
	Synced     int  `json:"synced"`
	NextOffset int  `json:"next_offset"`
	Done       bool `json:"done"`
}

// SyncParticipants fetches one page of a conversation's member list at the
// persisted offset and upserts participants by (platform user id,
// conversation).
func (e *Engine) SyncParticipants(ctx context.Context, conv *models.Conversation, limit int) (*ParticipantSyncResult, error) {
	key := flightKey(conv)
	if err := e.beginFlight(key); err != nil {
		return nil, err
	}
	defer e.endFlight(key)

	session, err := e.pool.Acquire(ctx, conv.UserID)
	if err != nil {
		return nil, err
	}

	limit = e.pageSize(limit)
	offset := conv.ParticipantOffset
	var page *platform.MemberPage
	err = e.retrier.Do(ctx, conv.UserID, "members", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		var cerr error
		page, cerr = session.Client.Members(callCtx, conv.PlatformChatID, offset, limit)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	members := make([]*models.Participant, 0, len(page.Members))
	for _, m := range page.Members {
		members = append(members, &models.Participant{
			PlatformUserID: m.PlatformUserID,
			Username:       m.Username,
			FirstName:      m.FirstName,
			LastName:       m.LastName,
			IsBot:          m.IsBot,
		})
	}

	// Participant pagination does not drive the message state machine;
	// the offset and the current status are persisted as one unit.
	synced, err := e.convs.SaveParticipantPage(conv, members, page.NextOffset, conv.SyncStatus)
	if err != nil {
		return nil, err
	}
	e.monitor.RecordRows("participants", synced)
	e.log.Info("participant page synced",
		zap.Uint("user_id", conv.UserID),
		zap.Uint("conversation_id", conv.ID),
		zap.Int("count", synced),
		zap.Int("next_offset", page.NextOffset),
		zap.Bool("has_more", page.HasMore))

	return &ParticipantSyncResult{Synced: synced, NextOffset: page.NextOffset, Done: !page.HasMore}, nil
}

type MessageSyncResult struct {
	Fetched   int                     `json:"fetched"`
	Persisted int                     `json:"persisted"`
	Skipped   int                     `json:"skipped"`
	Cursor    syncstate.MessageCursor `json:"cursor"`
	Status    syncstate.Status        `json:"status"`
	Done      bool                    `json:"done"`
}

// SyncMessages fetches one page of a conversation's history relative to
// the persisted cursor, resolves or creates each sender participant, and
// persists the page, cursor and status transition in one transaction.
// Messages whose sender cannot be resolved are skipped, never fatal.
func (e *Engine) SyncMessages(ctx context.Context, conv *models.Conversation, limit int, direction syncstate.Direction) (*MessageSyncResult, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("invalid sync direction %q", direction)
	}

	key := flightKey(conv)
	if err := e.beginFlight(key); err != nil {
		return nil, err
	}
	defer e.endFlight(key)

	session, err := e.pool.Acquire(ctx, conv.UserID)
	if err != nil {
		return nil, err
	}

	limit = e.pageSize(limit)
	cursor := conv.MessageCursorValue()
	var page *platform.MessagePage
	err = e.retrier.Do(ctx, conv.UserID, "messages", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		var cerr error
		page, cerr = session.Client.Messages(callCtx, conv.PlatformChatID, int64(cursor), limit, string(direction))
		return cerr
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]*models.Message, 0, len(page.Messages))
	skipped := 0
	var minID int64
	for _, pm := range page.Messages {
		sender, serr := e.resolveSender(conv, pm)
		if serr != nil {
			skipped++
			e.log.Warn("skipping message with unresolvable sender",
				zap.Uint("conversation_id", conv.ID),
				zap.Int64("platform_message_id", pm.MessageID),
				zap.Int64("platform_sender_id", pm.SenderID),
				zap.Error(serr))
			continue
		}

		m := &models.Message{
			PlatformMessageID: pm.MessageID,
			Text:              pm.Text,
			SentAt:            pm.Date,
			IsOutgoing:        pm.IsOutgoing,
			MediaType:         models.MediaType(pm.MediaType),
		}
		if sender != nil {
			id := sender.ID
			m.SenderID = &id
		}
		if len(pm.Media) > 0 {
			m.MediaArchiveKey = e.archiveMedia(ctx, conv, pm)
		}
		msgs = append(msgs, m)

		if minID == 0 || pm.MessageID < minID {
			minID = pm.MessageID
		}
	}

	newCursor := cursor
	if direction == syncstate.DirectionOlder {
		newCursor = cursor.AdvanceOlder(minID)
	}

	done := !page.HasMore
	status, err := e.nextStatus(conv.SyncStatus, direction, done)
	if err != nil {
		return nil, err
	}

	persisted, err := e.msgs.SaveMessagePage(conv, msgs, newCursor, status)
	if err != nil {
		return nil, err
	}
	e.monitor.RecordRows("messages", persisted)
	e.log.Info("message page synced",
		zap.Uint("user_id", conv.UserID),
		zap.Uint("conversation_id", conv.ID),
		zap.Int("fetched", len(page.Messages)),
		zap.Int("persisted", persisted),
		zap.Int("skipped", skipped),
		zap.Int64("cursor", int64(newCursor)),
		zap.String("status", string(status)),
		zap.Bool("done", done))

	return &MessageSyncResult{
		Fetched:   len(page.Messages),
		Persisted: persisted,
		Skipped:   skipped,
		Cursor:    newCursor,
		Status:    status,
		Done:      done,
	}, nil
}

// nextStatus walks the state machine one legal step per page: the first
// page lifts never_synced to initial_minimal_synced, further pages mean a
// backfill is in progress, and an exhausted older-direction page closes
// out at fully_synced. A newer-direction catch-up on a fully synced
// conversation does not reopen the backfill.
func (e *Engine) nextStatus(current syncstate.Status, direction syncstate.Direction, done bool) (syncstate.Status, error) {
	status := current
	var err error
	switch current {
	case syncstate.StatusNeverSynced:
		status, err = syncstate.Advance(current, syncstate.StatusInitialMinimalSynced)
	case syncstate.StatusPartiallySynced:
		status, err = syncstate.Advance(current, syncstate.StatusBackgroundSyncing)
	case syncstate.StatusFullySynced:
		if direction == syncstate.DirectionOlder {
			status, err = syncstate.Advance(current, syncstate.StatusBackgroundSyncing)
		}
	case syncstate.StatusInitialMinimalSynced:
		if !done {
			status, err = syncstate.Advance(current, syncstate.StatusBackgroundSyncing)
		}
	}
	if err != nil {
		return current, err
	}
	if done && direction == syncstate.DirectionOlder {
		return syncstate.Advance(status, syncstate.StatusFullySynced)
	}
	return status, nil
}

// resolveSender finds or creates the participant a message belongs to.
// Channel posts with no sender get a synthetic participant keyed by the
// chat itself.
func (e *Engine) resolveSender(conv *models.Conversation, pm platform.MessageData) (*models.Participant, error) {
	senderID := pm.SenderID
	synthetic := false
	if senderID == 0 {
		senderID = conv.PlatformChatID
		synthetic = true
	}

	p, err := e.parts.FindByPlatformID(conv.ID, senderID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p = &models.Participant{
		PlatformUserID: senderID,
		ConversationID: conv.ID,
		Synthetic:      synthetic,
	}
	if synthetic {
		p.FirstName = conv.Title
	}
	if err := e.parts.Upsert(p); err != nil {
		return nil, err
	}
	return p, nil
}

// archiveMedia stores media bytes best-effort and returns the object key,
// or empty when archiving is unavailable or fails.
func (e *Engine) archiveMedia(ctx context.Context, conv *models.Conversation, pm platform.MessageData) string {
	if e.media == nil {
		return ""
	}
	key := fmt.Sprintf("media/%d/%d/%s", conv.UserID, conv.ID, uuid.NewString())
	if err := e.media.Archive(ctx, key, pm.Media, contentType(pm.MediaType)); err != nil {
		e.log.Warn("media archive failed",
			zap.Uint("conversation_id", conv.ID),
			zap.Int64("platform_message_id", pm.MessageID),
			zap.Error(err))
		return ""
	}
	return key
}

func flightKey(conv *models.Conversation) string {
	return fmt.Sprintf("conv:%d:%d", conv.UserID, conv.ID)
}

func conversationType(t string) models.ConversationType {
	switch models.ConversationType(t) {
	case models.GroupConversation, models.SupergroupConversation, models.ChannelConversation:
		return models.ConversationType(t)
	default:
		return models.PrivateConversation
	}
}

func contentType(mediaType string) string {
	switch models.MediaType(mediaType) {
	case models.MediaPhoto:
		return "image/jpeg"
	case models.MediaVideo:
		return "video/mp4"
	case models.MediaVoice:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
