package validation

import (
	"encoding/base64"
	"strings"

	"github.com/dperhar/Karma-app-sub001/internal/syncstate"
)

// MaxCredentialBytes bounds the decoded session blob accepted from the
// authentication flow.
const MaxCredentialBytes = 64 * 1024

// DecodeCredential validates and decodes a base64 session credential.
func DecodeCredential(encoded string) ([]byte, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 || len(raw) > MaxCredentialBytes {
		return nil, false
	}
	return raw, true
}

// ParseDirection validates a sync direction parameter, defaulting to older.
func ParseDirection(s string) (syncstate.Direction, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return syncstate.DirectionOlder, true
	}
	d := syncstate.Direction(s)
	return d, d.Valid()
}

// ClampLimit bounds a requested page size, treating zero as "use default".
func ClampLimit(limit int) int {
	return syncstate.ClampPageSize(limit)
}
