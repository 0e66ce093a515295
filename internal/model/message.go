// Package model defines the core data types shared across Coterie.
package model

import (
	"strings"
	"time"
)

// Message is a single chat message. Messages are owned by the store of the
// chat they belong to; the ID is issued by the server and unique per chat.
type Message struct {
	ID        int64
	ChatID    int64
	Sender    string
	AvatarURL string
	Content   string
	Timestamp time.Time
	ReplyTo   *int64
	Deleted   bool
}

// timestampLayouts covers the formats the service emits: RFC 3339 from the
// push path and SQLite's CURRENT_TIMESTAMP from the history endpoint.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a server-supplied timestamp. A value that matches no
// known layout yields the zero time rather than an error; ordering falls back
// to arrival order in that case.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
