package relay

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store is the single source of truth for inbound messages and the
// notification point for "a new one arrived".
//
// It is an explicitly constructed, process-lifetime service: build one at
// bootstrap and pass it by reference to every handler that needs it. There
// is no package-level singleton.
//
// Concurrency guarantees:
//   - AddMessage/EmitConversationUpdate are safe under concurrent readers.
//   - All reads return point-in-time snapshot copies, never live references,
//     so a session iterating results is unaffected by a concurrent write.
//   - Event dispatch is synchronous but listener-isolated (see bus).
type Store struct {
	log *slog.Logger
	bus *bus

	mu     sync.RWMutex
	byID   map[string]*entry
	byConv map[string][]*entry
	byPage map[string][]*entry
	seq    uint64
}

// entry wraps a message with its insertion order and parsed timestamp.
// seq breaks created-time ties so retrieval order is stable.
type entry struct {
	msg StoredMessage
	seq uint64
	at  time.Time
}

// NewStore constructs an empty message store.
func NewStore(log *slog.Logger) *Store {
	return &Store{
		log:    log,
		bus:    newBus(log),
		byID:   make(map[string]*entry),
		byConv: make(map[string][]*entry),
		byPage: make(map[string][]*entry),
	}
}

// AddMessage inserts or overwrites msg by id, updates both indices without
// duplicating entries, then synchronously publishes EventNewMessage with the
// stored value. Re-adding a known id replaces the content in place and keeps
// its original insertion position.
//
// msg.ConversationID must already be canonical; the store never normalizes.
func (s *Store) AddMessage(msg StoredMessage) {
	now := time.Now().UTC()
	if msg.ID == "" {
		msg.ID = SynthesizeMessageID(now, msg.SenderID)
	}
	if msg.CreatedTime == "" {
		msg.CreatedTime = now.Format(time.RFC3339)
	}

	s.mu.Lock()
	if e, ok := s.byID[msg.ID]; ok {
		// Overwrite in place. Indices already reference this entry, so no
		// index mutation is needed and no duplicate can appear.
		e.msg = msg
		e.at = msg.createdAt(e.at)
		s.mu.Unlock()

		s.log.Debug("store.message.overwrite", "id", msg.ID, "conversation_id", msg.ConversationID)
		s.bus.publish(EventNewMessage, MessageEvent{Message: msg, Overwrite: true})
		return
	}

	s.seq++
	e := &entry{msg: msg, seq: s.seq, at: msg.createdAt(now)}
	s.byID[msg.ID] = e
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], e)
	s.byPage[msg.PageID] = append(s.byPage[msg.PageID], e)
	s.mu.Unlock()

	s.log.Debug("store.message.add", "id", msg.ID, "conversation_id", msg.ConversationID, "page_id", msg.PageID)
	s.bus.publish(EventNewMessage, MessageEvent{Message: msg})
}

// EmitConversationUpdate publishes a conversation-level summary change with
// the same fan-out semantics as AddMessage.
func (s *Store) EmitConversationUpdate(u ConversationUpdate) {
	if u.UpdatedTime == "" {
		u.UpdatedTime = time.Now().UTC().Format(time.RFC3339)
	}
	s.bus.publish(EventConversationUpdate, u)
}

// Messages returns every message for the canonical conversation key, sorted
// ascending by created time with ties broken by insertion order. Unknown keys
// yield an empty slice, never an error.
func (s *Store) Messages(conversationID string) []StoredMessage {
	s.mu.RLock()
	snap := snapshotEntries(s.byConv[conversationID])
	s.mu.RUnlock()
	return sortedMessages(snap)
}

// MessagesByPage is the page-scoped analogue of Messages.
func (s *Store) MessagesByPage(pageID string) []StoredMessage {
	s.mu.RLock()
	snap := snapshotEntries(s.byPage[pageID])
	s.mu.RUnlock()
	return sortedMessages(snap)
}

// LatestMessage returns the last element of Messages, reporting whether the
// conversation has any messages at all.
func (s *Store) LatestMessage(conversationID string) (StoredMessage, bool) {
	msgs := s.Messages(conversationID)
	if len(msgs) == 0 {
		return StoredMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// Subscribe registers a listener for event and returns its detach handle.
func (s *Store) Subscribe(event string, fn Listener) Subscription {
	return s.bus.subscribe(event, fn)
}

// ListenerCount reports live listeners for event. Used by cleanup checks.
func (s *Store) ListenerCount(event string) int {
	return s.bus.listenerCount(event)
}

// Clear wipes all data and detaches all listeners. Administrative only
// (resets and tests).
func (s *Store) Clear() {
	s.mu.Lock()
	s.byID = make(map[string]*entry)
	s.byConv = make(map[string][]*entry)
	s.byPage = make(map[string][]*entry)
	s.seq = 0
	s.mu.Unlock()

	s.bus.clear()
	s.log.Info("store.clear")
}

// snapshotEntries copies the ordering-relevant fields under the caller's lock.
func snapshotEntries(src []*entry) []entry {
	out := make([]entry, len(src))
	for i, e := range src {
		out[i] = *e
	}
	return out
}

func sortedMessages(snap []entry) []StoredMessage {
	sort.Slice(snap, func(i, j int) bool {
		if snap[i].at.Equal(snap[j].at) {
			return snap[i].seq < snap[j].seq
		}
		return snap[i].at.Before(snap[j].at)
	})

	out := make([]StoredMessage, len(snap))
	for i, e := range snap {
		out[i] = e.msg
	}
	return out
}
