package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// SSEGateway is the Server-Sent-Events entrypoint for the relay.
//
// It validates query parameters, resolves the canonical subscription key
// (the single subscribe-side normalization call site), and runs one Session
// per open response stream. A write failure on one stream never affects
// another: every session owns its own sink and teardown.
type SSEGateway struct {
	log     *slog.Logger
	store   *Store
	norm    *Normalizer
	metrics *Metrics

	heartbeatEvery time.Duration
	queueSize      int
}

// NewSSEGateway constructs a gateway. Nil log/norm/metrics fall back to
// working defaults for dev and tests.
func NewSSEGateway(log *slog.Logger, store *Store, norm *Normalizer, metrics *Metrics, heartbeatEvery time.Duration, queueSize int) *SSEGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if norm == nil {
		norm = NewNormalizer(DefaultNormalizePolicy())
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	if heartbeatEvery <= 0 {
		heartbeatEvery = heartbeatInterval
	}
	if queueSize < minSessionQueueSize {
		queueSize = defaultSessionQueueSize
	}
	return &SSEGateway{
		log:            log,
		store:          store,
		norm:           norm,
		metrics:        metrics,
		heartbeatEvery: heartbeatEvery,
		queueSize:      queueSize,
	}
}

// HandleConversationStream serves a conversation-scoped stream.
// Query: conversationId (required), pageId (required), senderId (optional).
func (g *SSEGateway) HandleConversationStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	rawConvID := strings.TrimSpace(q.Get("conversationId"))
	pageID := strings.TrimSpace(q.Get("pageId"))
	senderID := strings.TrimSpace(q.Get("senderId"))

	if rawConvID == "" || pageID == "" {
		writeJSONError(w, http.StatusBadRequest, "conversationId and pageId are required")
		return
	}

	key := SubscriptionKey{
		ConversationID: g.norm.Canonical(rawConvID, pageID, senderID),
		PageID:         pageID,
		SenderID:       senderID,
	}
	g.serveStream(w, r, key)
}

// HandlePageStream serves a page-scoped stream. Query: pageId (required).
func (g *SSEGateway) HandlePageStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pageID := strings.TrimSpace(r.URL.Query().Get("pageId"))
	if pageID == "" {
		writeJSONError(w, http.StatusBadRequest, "pageId is required")
		return
	}

	g.serveStream(w, r, SubscriptionKey{PageID: pageID})
}

func (g *SSEGateway) serveStream(w http.ResponseWriter, r *http.Request, key SubscriptionKey) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.log.Error("sse.reject.no_flusher", "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx) so events are not held back.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sess := NewSession(g.log, g.store, g.norm, g.metrics, key, &sseSink{w: w, flusher: flusher}, SessionConfig{
		HeartbeatEvery: g.heartbeatEvery,
		QueueSize:      g.queueSize,
	})
	sess.Run(r.Context())
}

// sseSink frames events per the text/event-stream format. It is written to
// from the session goroutine only, so it needs no locking.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) WriteEvent(event string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
