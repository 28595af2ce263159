package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

func TestSyncConversationMessages(t *testing.T) {
	fix := newSyncFixture(t)
	fix.client.messages = serveHistory(map[int64]int{555: 30}, 1000)
	conv := fix.convs.add(&models.Conversation{
		UserID:         1,
		PlatformChatID: 555,
		Type:           models.GroupConversation,
		SyncStatus:     syncstate.StatusNeverSynced,
	})

	res, err := fix.svc.SyncConversationMessages(context.Background(), 1, conv.ID, 100, syncstate.DirectionOlder)
	if err != nil {
		t.Fatalf("SyncConversationMessages returned error: %v", err)
	}
	if res.Persisted != 30 {
		t.Errorf("Persisted = %d, want 30", res.Persisted)
	}
	if !res.Done {
		t.Error("single page was not reported done")
	}

	stored, err := fix.convs.FindByID(conv.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.SyncStatus != syncstate.StatusFullySynced {
		t.Errorf("stored status = %q, want %q", stored.SyncStatus, syncstate.StatusFullySynced)
	}
	if stored.MessageCursor != 971 {
		t.Errorf("stored cursor = %d, want 971", stored.MessageCursor)
	}
}

func TestSyncConversationMessagesUnknownConversation(t *testing.T) {
	fix := newSyncFixture(t)

	_, err := fix.svc.SyncConversationMessages(context.Background(), 1, 999, 100, syncstate.DirectionOlder)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("SyncConversationMessages = %v, want record not found", err)
	}
}

func TestRunBackfillDrainsUnfinishedConversations(t *testing.T) {
	fix := newSyncFixture(t)
	fix.client.messages = serveHistory(map[int64]int{100: 150, 200: 80}, 1000)
	a := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusNeverSynced})
	b := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 200, SyncStatus: syncstate.StatusPartiallySynced})
	done := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 300, SyncStatus: syncstate.StatusFullySynced})

	if err := fix.svc.RunBackfill(context.Background(), 1, 100); err != nil {
		t.Fatalf("RunBackfill returned error: %v", err)
	}

	for _, conv := range []*models.Conversation{a, b} {
		stored, err := fix.convs.FindByID(conv.ID)
		if err != nil {
			t.Fatalf("FindByID returned error: %v", err)
		}
		if stored.SyncStatus != syncstate.StatusFullySynced {
			t.Errorf("conversation %d status = %q, want %q", conv.ID, stored.SyncStatus, syncstate.StatusFullySynced)
		}
	}

	// A fully synced conversation is left alone.
	stored, _ := fix.convs.FindByID(done.ID)
	if stored.SyncStatus != syncstate.StatusFullySynced {
		t.Errorf("finished conversation status = %q, want untouched %q", stored.SyncStatus, syncstate.StatusFullySynced)
	}

	countA, _ := fix.msgs.CountByConversation(a.ID)
	countB, _ := fix.msgs.CountByConversation(b.ID)
	if countA != 150 || countB != 80 {
		t.Errorf("persisted %d and %d messages, want 150 and 80", countA, countB)
	}
}

func TestRunBackfillMarksInterruptedConversations(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusBackgroundSyncing})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fix.svc.RunBackfill(ctx, 1, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBackfill = %v, want context.Canceled", err)
	}

	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusPartiallySynced {
		t.Errorf("interrupted status = %q, want %q", stored.SyncStatus, syncstate.StatusPartiallySynced)
	}
}

func TestRunBackfillLeavesNeverSyncedOnInterrupt(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusNeverSynced})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fix.svc.RunBackfill(ctx, 1, 100); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBackfill = %v, want context.Canceled", err)
	}

	// Nothing was fetched, so there is no partial progress to record.
	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusNeverSynced {
		t.Errorf("status = %q, want untouched %q", stored.SyncStatus, syncstate.StatusNeverSynced)
	}
}

func TestRunBackfillParksConversationOnMidPageCancel(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusBackgroundSyncing})

	// Cancellation lands while a page is in flight, surfacing from the
	// retry path rather than the top-of-loop check.
	ctx, cancel := context.WithCancel(context.Background())
	fix.client.messages = func(_ context.Context, chatID int64, cursor int64, limit int, direction string) (*platform.MessagePage, error) {
		cancel()
		return nil, &platform.TransientError{Op: "messages", Err: errors.New("connection reset")}
	}

	err := fix.svc.RunBackfill(ctx, 1, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBackfill = %v, want context.Canceled", err)
	}

	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusPartiallySynced {
		t.Errorf("interrupted status = %q, want %q", stored.SyncStatus, syncstate.StatusPartiallySynced)
	}
}

func TestConversationOperationsScopedToOwner(t *testing.T) {
	fix := newSyncFixture(t)
	fix.client.messages = serveHistory(map[int64]int{555: 10}, 1000)
	conv := fix.convs.add(&models.Conversation{
		UserID:            2,
		PlatformChatID:    555,
		SyncStatus:        syncstate.StatusFullySynced,
		MessageCursor:     751,
		ParticipantOffset: 40,
	})

	if _, err := fix.svc.SyncConversationMessages(context.Background(), 1, conv.ID, 100, syncstate.DirectionOlder); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("SyncConversationMessages on another user's conversation = %v, want record not found", err)
	}
	if _, err := fix.svc.SyncConversationParticipants(context.Background(), 1, conv.ID, 100); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("SyncConversationParticipants on another user's conversation = %v, want record not found", err)
	}
	if err := fix.svc.Resync(1, conv.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Resync on another user's conversation = %v, want record not found", err)
	}
	if err := fix.svc.Reset(1, conv.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Reset on another user's conversation = %v, want record not found", err)
	}

	// The owner's sync progress survives every rejected call.
	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusFullySynced {
		t.Errorf("owner status = %q, want untouched %q", stored.SyncStatus, syncstate.StatusFullySynced)
	}
	if stored.MessageCursor != 751 || stored.ParticipantOffset != 40 {
		t.Errorf("owner cursors = (%d, %d), want untouched (751, 40)", stored.MessageCursor, stored.ParticipantOffset)
	}
}

func TestResync(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusFullySynced, MessageCursor: 751})

	if err := fix.svc.Resync(1, conv.ID); err != nil {
		t.Fatalf("Resync returned error: %v", err)
	}
	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusBackgroundSyncing {
		t.Errorf("status after Resync = %q, want %q", stored.SyncStatus, syncstate.StatusBackgroundSyncing)
	}
	// Resync keeps the cursor so backfill continues where it left off.
	if stored.MessageCursor != 751 {
		t.Errorf("cursor after Resync = %d, want 751", stored.MessageCursor)
	}
}

func TestResyncRejectsNeverSynced(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusNeverSynced})

	if err := fix.svc.Resync(1, conv.ID); err == nil {
		t.Fatal("Resync accepted a never-synced conversation")
	}
}

func TestReset(t *testing.T) {
	fix := newSyncFixture(t)
	conv := fix.convs.add(&models.Conversation{
		UserID:            1,
		PlatformChatID:    100,
		SyncStatus:        syncstate.StatusFullySynced,
		MessageCursor:     751,
		ParticipantOffset: 40,
	})

	if err := fix.svc.Reset(1, conv.ID); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	stored, _ := fix.convs.FindByID(conv.ID)
	if stored.SyncStatus != syncstate.StatusNeverSynced {
		t.Errorf("status after Reset = %q, want %q", stored.SyncStatus, syncstate.StatusNeverSynced)
	}
	if stored.MessageCursor != 0 || stored.ParticipantOffset != 0 {
		t.Errorf("cursors after Reset = (%d, %d), want cleared", stored.MessageCursor, stored.ParticipantOffset)
	}
}

func TestOverview(t *testing.T) {
	fix := newSyncFixture(t)
	fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 100, SyncStatus: syncstate.StatusFullySynced})
	fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 200, SyncStatus: syncstate.StatusBackgroundSyncing})
	fix.convs.add(&models.Conversation{UserID: 1, PlatformChatID: 300, SyncStatus: syncstate.StatusBackgroundSyncing})
	fix.convs.add(&models.Conversation{UserID: 2, PlatformChatID: 400, SyncStatus: syncstate.StatusNeverSynced})

	payload, err := fix.svc.Overview(1)
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}

	convs, ok := payload["conversations"].([]models.ConversationResponse)
	if !ok {
		t.Fatalf("conversations payload has type %T", payload["conversations"])
	}
	if len(convs) != 3 {
		t.Errorf("overview lists %d conversations, want 3 (other users excluded)", len(convs))
	}

	counts, ok := payload["status_counts"].(map[syncstate.Status]int)
	if !ok {
		t.Fatalf("status_counts payload has type %T", payload["status_counts"])
	}
	if counts[syncstate.StatusBackgroundSyncing] != 2 {
		t.Errorf("background_syncing count = %d, want 2", counts[syncstate.StatusBackgroundSyncing])
	}
	if counts[syncstate.StatusFullySynced] != 1 {
		t.Errorf("fully_synced count = %d, want 1", counts[syncstate.StatusFullySynced])
	}
}
