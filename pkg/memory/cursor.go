package memory

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// List cursors are URL-safe base64 of "rfc3339(created_at)|id". Keyset
// pagination on (created_at DESC, id ASC) uses the decoded pair.

// EncodeCursor builds an opaque list cursor from the last row of a page.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", createdAt.Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. Malformed cursors
// are a ValidationError on the "cursor" field.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", NewValidation("cursor", fmt.Sprintf("invalid cursor encoding: %v", err))
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", NewValidation("cursor", "cursor missing id")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", NewValidation("cursor", fmt.Sprintf("cursor timestamp parse error: %v", err))
	}
	return ts, parts[1], nil
}
