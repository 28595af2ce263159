// Package syncstate models the per-conversation synchronization state
// machine and the pagination cursors that drive resumable fetching.
package syncstate

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusNeverSynced          Status = "never_synced"
	StatusInitialMinimalSynced Status = "initial_minimal_synced"
	StatusBackgroundSyncing    Status = "background_syncing"
	StatusPartiallySynced      Status = "partially_synced"
	StatusFullySynced          Status = "fully_synced"
)

// MaxPageSize is the hard cap on items per platform call.
const MaxPageSize = 100

// transitions lists every legal forward move. Everything else is rejected
// except an explicit Reset.
var transitions = map[Status][]Status{
	StatusNeverSynced:          {StatusInitialMinimalSynced},
	StatusInitialMinimalSynced: {StatusBackgroundSyncing, StatusFullySynced},
	StatusBackgroundSyncing:    {StatusPartiallySynced, StatusFullySynced},
	StatusPartiallySynced:      {StatusBackgroundSyncing},
	StatusFullySynced:          {StatusBackgroundSyncing}, // manual resync
}

func (s Status) Valid() bool {
	switch s {
	case StatusNeverSynced, StatusInitialMinimalSynced, StatusBackgroundSyncing,
		StatusPartiallySynced, StatusFullySynced:
		return true
	}
	return false
}

// CanTransition reports whether moving from -> to is a legal forward step.
// A no-op transition (from == to) is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance validates and returns the new status, or an error describing the
// illegal move. The caller persists the result together with the cursor.
func Advance(from, to Status) (Status, error) {
	if !to.Valid() {
		return from, fmt.Errorf("unknown sync status %q", to)
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("illegal sync transition %s -> %s", from, to)
	}
	return to, nil
}

// Reset returns the state a conversation is put back to when a full
// re-sync from scratch is requested. Cursors must be cleared alongside.
func Reset() Status {
	return StatusNeverSynced
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize].
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return MaxPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// DialogCursor is the resume point inside a user's dialog list: the date
// and id of the furthest dialog whose conversation row was durably written.
type DialogCursor struct {
	Date time.Time
	ID   int64
}

func (c DialogCursor) IsZero() bool {
	return c.ID == 0 && c.Date.IsZero()
}

// MessageCursor is the id of the oldest message durably persisted for a
// conversation (backfill runs newest -> oldest). Zero means no page has
// been persisted yet.
type MessageCursor int64

func (c MessageCursor) IsZero() bool { return c == 0 }

// AdvanceOlder moves the cursor toward older history. It never regresses:
// a re-fetched page whose minimum id is not older than the current cursor
// leaves it unchanged.
func (c MessageCursor) AdvanceOlder(minFetchedID int64) MessageCursor {
	if minFetchedID <= 0 {
		return c
	}
	if c.IsZero() || MessageCursor(minFetchedID) < c {
		return MessageCursor(minFetchedID)
	}
	return c
}

// Direction selects which way a message page is fetched relative to the
// cursor.
type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

func (d Direction) Valid() bool {
	return d == DirectionOlder || d == DirectionNewer
}
