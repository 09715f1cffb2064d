package relay

import (
	"encoding/json"
	"time"
)

// Sender describes a message author.
type Sender struct {
	ID         string
	Name       string
	ProfilePic string
}

// StoredMessage is one inbound chat message held by the Store.
//
// ConversationID is always the canonical (normalized) conversation key,
// never the raw provider value. The store does not normalize internally;
// callers pass already-normalized keys.
type StoredMessage struct {
	ID             string
	ConversationID string
	Message        string
	From           Sender
	CreatedTime    string
	PageID         string
	SenderID       string
	Attachments    []json.RawMessage
}

// MessageEvent is the EventNewMessage payload: the stored message plus
// whether this publish replaced an existing id (an in-place overwrite).
type MessageEvent struct {
	Message   StoredMessage
	Overwrite bool
}

// ConversationUpdate is a conversation-level summary change: snippet and
// last-updated time, independent of the raw message event. Consumers may
// care about one, the other, or both.
type ConversationUpdate struct {
	ConversationID string
	PageID         string
	Snippet        string
	UpdatedTime    string
	SenderID       string
	SenderName     string
}

// createdAt parses CreatedTime for ordering. Messages with an unparseable
// or absent timestamp sort by the fallback instant (their arrival time).
func (m StoredMessage) createdAt(fallback time.Time) time.Time {
	if m.CreatedTime == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, m.CreatedTime); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, m.CreatedTime); err == nil {
		return t
	}
	return fallback
}
