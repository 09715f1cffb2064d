package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	v1 "nepdora/contracts/relay/v1"
)

// Session states. A session never retries: reconnection is the client's
// responsibility, by opening a new session.
const (
	StateOpening int32 = iota
	StateActive
	StateClosed
)

// SubscriptionKey identifies what a session subscribed to. ConversationID is
// the canonical key (empty for page-scoped sessions); SenderID is carried only
// for the connected echo.
type SubscriptionKey struct {
	ConversationID string
	PageID         string
	SenderID       string
}

// Sink is one subscriber's outbound byte stream. WriteEvent must be safe to
// call after the transport closed (return an error, never panic).
type Sink interface {
	WriteEvent(event string, data []byte) error
}

// SessionConfig tunes one streaming session.
type SessionConfig struct {
	HeartbeatEvery time.Duration
	QueueSize      int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = heartbeatInterval
	}
	if c.QueueSize < minSessionQueueSize {
		c.QueueSize = defaultSessionQueueSize
	}
	return c
}

// Session bridges the store's event bus to a single long-lived outbound
// stream for exactly one subscriber.
//
// Lifecycle: OPENING (connected event) -> ACTIVE (backlog replay, then live
// forwarding + heartbeats) -> CLOSED (transport abort or write error).
// Cleanup always detaches the store listeners and stops the heartbeat;
// omitting that would leak one phantom listener per dropped client.
type Session struct {
	log     *slog.Logger
	store   *Store
	norm    *Normalizer
	metrics *Metrics

	id   string
	key  SubscriptionKey
	sink Sink
	cfg  SessionConfig

	queue chan queuedEvent
	state atomic.Int32

	done      chan struct{}
	closeOnce sync.Once
	subs      []Subscription
}

type queuedEvent struct {
	name string
	data []byte
}

// NewSession constructs a session bound to sink. Run drives it.
func NewSession(log *slog.Logger, store *Store, norm *Normalizer, metrics *Metrics, key SubscriptionKey, sink Sink, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = nopMetrics()
	}
	return &Session{
		log:     log,
		store:   store,
		norm:    norm,
		metrics: metrics,
		id:      NewStreamID(time.Now().UTC()),
		key:     key,
		sink:    sink,
		cfg:     cfg,
		queue:   make(chan queuedEvent, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the session's stream id.
func (s *Session) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() int32 { return s.state.Load() }

// Run executes the session until ctx is cancelled, Close is called, or a
// write fails. It blocks for the life of the stream.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	s.metrics.SessionsOpened.Inc()
	s.metrics.SessionsActive.Inc()
	defer s.metrics.SessionsActive.Dec()

	s.log.Info("sse.session.open", "session_id", s.id,
		"conversation_id", s.key.ConversationID, "page_id", s.key.PageID)

	if err := s.sendConnected(); err != nil {
		return
	}

	// Listeners attach before backlog replay so no live event is missed;
	// anything arriving mid-replay waits in the queue.
	s.subs = append(s.subs,
		s.store.Subscribe(EventNewMessage, s.onMessage),
		s.store.Subscribe(EventConversationUpdate, s.onUpdate),
	)

	if err := s.replayBacklog(); err != nil {
		return
	}
	s.state.Store(StateActive)

	ticker := time.NewTicker(s.cfg.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sse.session.close", "session_id", s.id, "reason", "context_done")
			return
		case <-s.done:
			return
		case ev := <-s.queue:
			if err := s.send(ev.name, ev.data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.sendHeartbeat(); err != nil {
				return
			}
		}
	}
}

// Close tears the session down: detach store listeners, mark CLOSED, release
// Run. Idempotent; safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.state.Store(StateClosed)
		close(s.done)
	})
}

// ---- live event listeners (run on the store's publisher goroutine) ----

func (s *Session) onMessage(_ string, payload any) {
	ev, ok := payload.(MessageEvent)
	if !ok {
		return
	}
	if !s.matchesMessage(ev.Message) {
		return
	}

	name := v1.EventNewMessage
	if ev.Overwrite {
		name = v1.EventMessageUpdate
	}

	data, err := json.Marshal(toWireMessage(ev.Message))
	if err != nil {
		s.log.Error("sse.encode.fail", "session_id", s.id, "err", err)
		return
	}
	s.enqueue(name, data)
}

func (s *Session) onUpdate(_ string, payload any) {
	u, ok := payload.(ConversationUpdate)
	if !ok {
		return
	}
	if !s.matchesUpdate(u) {
		return
	}

	data, err := json.Marshal(v1.ConversationUpdatePayload{
		ConversationID: s.norm.CanonicalForUpdate(u),
		PageID:         u.PageID,
		Snippet:        u.Snippet,
		UpdatedTime:    u.UpdatedTime,
		SenderID:       u.SenderID,
		SenderName:     u.SenderName,
	})
	if err != nil {
		s.log.Error("sse.encode.fail", "session_id", s.id, "err", err)
		return
	}
	s.enqueue(v1.EventConversationUpdate, data)
}

// matchesMessage filters live events against the subscription key, always on
// re-normalized identifiers, never on raw ids.
func (s *Session) matchesMessage(m StoredMessage) bool {
	if s.key.ConversationID != "" {
		return s.norm.CanonicalForMessage(m) == s.key.ConversationID
	}
	return m.PageID == s.key.PageID
}

func (s *Session) matchesUpdate(u ConversationUpdate) bool {
	if s.key.ConversationID != "" {
		return s.norm.CanonicalForUpdate(u) == s.key.ConversationID
	}
	return u.PageID == s.key.PageID
}

// enqueue hands an event to the session goroutine without ever blocking the
// store's dispatch. Full queue means this session is too slow: drop and count.
func (s *Session) enqueue(name string, data []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.queue <- queuedEvent{name: name, data: data}:
	default:
		s.metrics.EventsDropped.Inc()
		s.log.Warn("sse.queue.full", "session_id", s.id, "event", name)
	}
}

// ---- outbound writes (session goroutine only) ----

func (s *Session) sendConnected() error {
	data, _ := json.Marshal(v1.ConnectedPayload{
		ConversationID: s.key.ConversationID,
		PageID:         s.key.PageID,
		SenderID:       s.key.SenderID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	return s.send(v1.EventConnected, data)
}

func (s *Session) replayBacklog() error {
	var backlog []StoredMessage
	if s.key.ConversationID != "" {
		backlog = s.store.Messages(s.key.ConversationID)
	} else {
		backlog = s.store.MessagesByPage(s.key.PageID)
	}

	if len(backlog) == 0 {
		data, _ := json.Marshal(v1.NoExistingMessagesPayload{
			ConversationID: s.key.ConversationID,
			PageID:         s.key.PageID,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
		})
		return s.send(v1.EventNoExistingMessages, data)
	}

	for _, m := range backlog {
		data, err := json.Marshal(toWireMessage(m))
		if err != nil {
			s.log.Error("sse.encode.fail", "session_id", s.id, "err", err)
			continue
		}
		if err := s.send(v1.EventExistingMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendHeartbeat() error {
	data, _ := json.Marshal(v1.HeartbeatPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return s.send(v1.EventHeartbeat, data)
}

func (s *Session) send(event string, data []byte) error {
	if err := s.sink.WriteEvent(event, data); err != nil {
		s.log.Info("sse.write.fail", "session_id", s.id, "event", event, "err", err)
		return err
	}
	s.metrics.EventsForwarded.WithLabelValues(event).Inc()
	return nil
}

func toWireMessage(m StoredMessage) v1.Message {
	return v1.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Message:        m.Message,
		From: v1.Sender{
			ID:         m.From.ID,
			Name:       m.From.Name,
			ProfilePic: m.From.ProfilePic,
		},
		CreatedTime: m.CreatedTime,
		PageID:      m.PageID,
		SenderID:    m.SenderID,
		Attachments: m.Attachments,
	}
}
