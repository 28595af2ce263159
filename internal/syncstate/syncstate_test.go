package syncstate

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"never to initial", StatusNeverSynced, StatusInitialMinimalSynced, true},
		{"initial to background", StatusInitialMinimalSynced, StatusBackgroundSyncing, true},
		{"initial to fully (single page)", StatusInitialMinimalSynced, StatusFullySynced, true},
		{"background to partially", StatusBackgroundSyncing, StatusPartiallySynced, true},
		{"background to fully", StatusBackgroundSyncing, StatusFullySynced, true},
		{"partially resumes background", StatusPartiallySynced, StatusBackgroundSyncing, true},
		{"fully resyncs via background", StatusFullySynced, StatusBackgroundSyncing, true},
		{"no-op transition", StatusBackgroundSyncing, StatusBackgroundSyncing, true},
		{"never cannot skip to background", StatusNeverSynced, StatusBackgroundSyncing, false},
		{"never cannot skip to fully", StatusNeverSynced, StatusFullySynced, false},
		{"partially cannot jump to fully", StatusPartiallySynced, StatusFullySynced, false},
		{"no backward move to never", StatusFullySynced, StatusNeverSynced, false},
		{"no backward move to initial", StatusBackgroundSyncing, StatusInitialMinimalSynced, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	got, err := Advance(StatusNeverSynced, StatusInitialMinimalSynced)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if got != StatusInitialMinimalSynced {
		t.Errorf("Advance = %s, want %s", got, StatusInitialMinimalSynced)
	}

	got, err = Advance(StatusNeverSynced, StatusFullySynced)
	if err == nil {
		t.Fatal("Advance allowed an illegal skip")
	}
	if got != StatusNeverSynced {
		t.Errorf("failed Advance returned %s, want the unchanged %s", got, StatusNeverSynced)
	}

	got, err = Advance(StatusBackgroundSyncing, Status("bogus"))
	if err == nil {
		t.Fatal("Advance accepted an unknown status")
	}
	if got != StatusBackgroundSyncing {
		t.Errorf("failed Advance returned %s, want the unchanged %s", got, StatusBackgroundSyncing)
	}
}

func TestReset(t *testing.T) {
	if got := Reset(); got != StatusNeverSynced {
		t.Errorf("Reset = %s, want %s", got, StatusNeverSynced)
	}
}

func TestClampPageSize(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses max", 0, MaxPageSize},
		{"negative uses max", -5, MaxPageSize},
		{"in range unchanged", 25, 25},
		{"exactly max", MaxPageSize, MaxPageSize},
		{"over max clamped", MaxPageSize + 1, MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampPageSize(tt.limit); got != tt.want {
				t.Errorf("ClampPageSize(%d) = %d, want %d", tt.limit, got, tt.want)
			}
		})
	}
}

func TestMessageCursorAdvanceOlder(t *testing.T) {
	tests := []struct {
		name    string
		cursor  MessageCursor
		fetched int64
		want    MessageCursor
	}{
		{"first page sets cursor", 0, 900, 900},
		{"older page advances", 900, 400, 400},
		{"re-fetched page never regresses", 400, 900, 400},
		{"equal id is a no-op", 400, 400, 400},
		{"zero fetched id is a no-op", 400, 0, 400},
		{"negative fetched id is a no-op", 400, -1, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cursor.AdvanceOlder(tt.fetched); got != tt.want {
				t.Errorf("AdvanceOlder(%d) on %d = %d, want %d", tt.fetched, tt.cursor, got, tt.want)
			}
		})
	}
}

func TestDialogCursorIsZero(t *testing.T) {
	var zero DialogCursor
	if !zero.IsZero() {
		t.Error("zero DialogCursor reported not zero")
	}
	if (DialogCursor{ID: 42}).IsZero() {
		t.Error("DialogCursor with ID reported zero")
	}
	if (DialogCursor{Date: time.Now()}).IsZero() {
		t.Error("DialogCursor with Date reported zero")
	}
}

func TestDirectionValid(t *testing.T) {
	if !DirectionOlder.Valid() || !DirectionNewer.Valid() {
		t.Error("canonical directions reported invalid")
	}
	if Direction("sideways").Valid() {
		t.Error("unknown direction reported valid")
	}
}
