// Package platform defines the boundary to the third-party messaging
// platform. The sync core only ever talks to these interfaces; the wire
// implementation is supplied by the composition root.
package platform

import (
	"context"
	"time"
)

// Identity is the result of the cheap "who am I" probe used to validate a
// freshly established session.
type Identity struct {
	PlatformUserID int64
	Username       string
	FirstName      string
	LastName       string
	Phone          string
}

// Dialog is one entry of the account's conversation list.
type Dialog struct {
	ChatID         int64
	Type           string // private, group, supergroup, channel
	Title          string
	Username       string
	TopMessageID   int64
	TopMessageDate time.Time
}

// DialogPage is a bounded slice of the dialog list. NextDate/NextID resume
// the traversal; HasMore is false once the list is exhausted.
type DialogPage struct {
	Dialogs  []Dialog
	NextDate time.Time
	NextID   int64
	HasMore  bool
}

// Member is one participant of a chat.
type Member struct {
	PlatformUserID int64
	Username       string
	FirstName      string
	LastName       string
	IsBot          bool
}

type MemberPage struct {
	Members    []Member
	NextOffset int
	HasMore    bool
}

// MessageData is one fetched message. SenderID is zero for channel posts
// that carry no real sender.
type MessageData struct {
	MessageID  int64
	SenderID   int64
	Text       string
	Date       time.Time
	IsOutgoing bool
	MediaType  string
	Media      []byte
}

type MessagePage struct {
	Messages []MessageData
	HasMore  bool
}

// Client is one live authenticated session. Implementations must return
// the error types of this package so retry and credential handling can
// classify failures.
type Client interface {
	// Me probes the session with a cheap identity check.
	Me(ctx context.Context) (*Identity, error)

	// Dialogs fetches one page of the conversation list starting at the
	// given resume point (zero values start from the newest dialog).
	Dialogs(ctx context.Context, offsetDate time.Time, offsetID int64, limit int) (*DialogPage, error)

	// Members fetches one page of a chat's participant list.
	Members(ctx context.Context, chatID int64, offset, limit int) (*MemberPage, error)

	// Messages fetches one page of a chat's history relative to cursor.
	// direction "older" walks toward history, "newer" toward the present.
	// A zero cursor starts from the newest message (older) or the oldest
	// stored point (newer).
	Messages(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*MessagePage, error)

	Close() error
}

// ClientFactory establishes a session from a decrypted credential.
type ClientFactory interface {
	Dial(ctx context.Context, session []byte) (Client, error)
}
