package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dperhar/Karma-app-sub001/internal/cache"
	"github.com/dperhar/Karma-app-sub001/internal/engine"
	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/repository"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

// SyncService is the entry point the scheduler and the request handlers
// call. It drives the engine page by page and keeps cached views fresh.
type SyncService struct {
	engine    *engine.Engine
	convs     repository.ConversationRepositoryInterface
	monitor   *health.Monitor
	syncCache *cache.SyncCache
	log       *zap.Logger
}

func NewSyncService(eng *engine.Engine, convs repository.ConversationRepositoryInterface, monitor *health.Monitor, syncCache *cache.SyncCache, log *zap.Logger) *SyncService {
	return &SyncService{engine: eng, convs: convs, monitor: monitor, syncCache: syncCache, log: log}
}

// SyncDialogs pulls one page of the user's dialog list.
func (s *SyncService) SyncDialogs(ctx context.Context, userID uint, limit int) (*engine.DialogSyncResult, error) {
	res, err := s.engine.SyncDialogs(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.syncCache.InvalidateConversationList(userID); err != nil {
		s.log.Warn("conversation list cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return res, nil
}

// SyncConversationMessages pulls one page of one conversation's history.
// The lookup is scoped to the caller, so another user's conversation
// reads as not found.
func (s *SyncService) SyncConversationMessages(ctx context.Context, userID, convID uint, limit int, direction syncstate.Direction) (*engine.MessageSyncResult, error) {
	conv, err := s.convs.FindByIDForUser(userID, convID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.SyncMessages(ctx, conv, limit, direction)
	if err != nil {
		return nil, err
	}
	if err := s.syncCache.InvalidateOverview(conv.UserID); err != nil {
		s.log.Warn("overview cache invalidation failed", zap.Uint("user_id", conv.UserID), zap.Error(err))
	}
	return res, nil
}

// SyncConversationParticipants pulls one page of one conversation's members.
func (s *SyncService) SyncConversationParticipants(ctx context.Context, userID, convID uint, limit int) (*engine.ParticipantSyncResult, error) {
	conv, err := s.convs.FindByIDForUser(userID, convID)
	if err != nil {
		return nil, err
	}
	return s.engine.SyncParticipants(ctx, conv, limit)
}

// Resync re-opens backfill for a fully synced conversation without
// discarding its cursor.
func (s *SyncService) Resync(userID, convID uint) error {
	conv, err := s.convs.FindByIDForUser(userID, convID)
	if err != nil {
		return err
	}
	status, err := syncstate.Advance(conv.SyncStatus, syncstate.StatusBackgroundSyncing)
	if err != nil {
		return err
	}
	return s.convs.UpdateSyncStatus(convID, status)
}

// Reset discards a conversation's sync progress entirely: cursors cleared,
// status back to never_synced. The stored rows stay; re-fetching them is
// absorbed by the uniqueness constraints.
func (s *SyncService) Reset(userID, convID uint) error {
	if _, err := s.convs.FindByIDForUser(userID, convID); err != nil {
		return err
	}
	return s.convs.ResetSync(convID)
}

// RunBackfill drains every unfinished conversation of a user page by page
// until done or the context is cancelled. Cancellation lands between
// pages only, so each cursor rests at a page boundary; interrupted
// conversations are marked partially_synced and resume later.
func (s *SyncService) RunBackfill(ctx context.Context, userID uint, pageSize int) error {
	convs, err := s.convs.ListByStatus(userID,
		syncstate.StatusNeverSynced,
		syncstate.StatusInitialMinimalSynced,
		syncstate.StatusBackgroundSyncing,
		syncstate.StatusPartiallySynced,
	)
	if err != nil {
		return err
	}

	for i := range convs {
		conv := &convs[i]
		if err := s.backfillConversation(ctx, conv, pageSize); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Terminal per-conversation failure: leave its status as the
			// last durable transition and move on.
			s.log.Error("backfill failed for conversation",
				zap.Uint("user_id", userID),
				zap.Uint("conversation_id", conv.ID),
				zap.Error(err))
		}
	}

	if err := s.syncCache.InvalidateOverview(userID); err != nil {
		s.log.Warn("overview cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}

func (s *SyncService) backfillConversation(ctx context.Context, conv *models.Conversation, pageSize int) error {
	for {
		if err := ctx.Err(); err != nil {
			s.markInterrupted(conv)
			return err
		}

		res, err := s.engine.SyncMessages(ctx, conv, pageSize, syncstate.DirectionOlder)
		if err != nil {
			if errors.Is(err, engine.ErrSyncInFlight) {
				// Someone else is already driving this conversation.
				return nil
			}
			// Cancellation can also surface mid-page, from a retry sleep
			// or the platform call itself.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.markInterrupted(conv)
			}
			return err
		}
		if res.Done {
			return nil
		}
	}
}

// markInterrupted parks an in-progress backfill at partially_synced so it
// is picked up by the next run.
func (s *SyncService) markInterrupted(conv *models.Conversation) {
	status, err := syncstate.Advance(conv.SyncStatus, syncstate.StatusPartiallySynced)
	if err != nil {
		return // not in an interruptible state, nothing to record
	}
	if uerr := s.convs.UpdateSyncStatus(conv.ID, status); uerr != nil {
		s.log.Error("failed to mark conversation interrupted",
			zap.Uint("conversation_id", conv.ID), zap.Error(uerr))
	}
}

// Overview assembles the per-user sync view served by the operational API.
func (s *SyncService) Overview(userID uint) (map[string]interface{}, error) {
	if payload, ok := s.syncCache.GetOverview(userID); ok {
		return payload, nil
	}

	convs, err := s.convs.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[syncstate.Status]int)
	responses := make([]models.ConversationResponse, 0, len(convs))
	for i := range convs {
		counts[convs[i].SyncStatus]++
		responses = append(responses, convs[i].ToResponse())
	}

	payload := map[string]interface{}{
		"user_id":       userID,
		"conversations": responses,
		"status_counts": counts,
		"health":        s.monitor.UserSnapshot(userID),
	}
	if err := s.syncCache.SetOverview(userID, payload); err != nil {
		s.log.Warn("overview cache write failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return payload, nil
}
