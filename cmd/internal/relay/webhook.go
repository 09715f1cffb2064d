package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	v1 "nepdora/contracts/relay/v1"
)

// WebhookConfig tunes the inbound webhook boundary.
type WebhookConfig struct {
	// VerifyToken answers the provider's GET subscription handshake.
	// Empty disables the handshake (403 on every verify attempt).
	VerifyToken string

	MaxBodyBytes int64
	RateEvents   int
	RateWindow   time.Duration
}

func (c WebhookConfig) withDefaults() WebhookConfig {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = maxWebhookBodyBytes
	}
	if c.RateEvents <= 0 {
		c.RateEvents = ingestRateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = ingestRateWindow
	}
	return c
}

// WebhookHandler is the single ingest entry point for inbound provider
// events. Normalization happens here and nowhere else on the producer side,
// so producers and subscribers can never drift apart on the canonical key.
type WebhookHandler struct {
	log     *slog.Logger
	store   *Store
	norm    *Normalizer
	metrics *Metrics
	cfg     WebhookConfig
	limiter *SourceLimiter
}

// NewWebhookHandler constructs the ingest handler.
func NewWebhookHandler(log *slog.Logger, store *Store, norm *Normalizer, metrics *Metrics, cfg WebhookConfig) *WebhookHandler {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if norm == nil {
		norm = NewNormalizer(DefaultNormalizePolicy())
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	cfg = cfg.withDefaults()
	return &WebhookHandler{
		log:     log,
		store:   store,
		norm:    norm,
		metrics: metrics,
		cfg:     cfg,
		limiter: NewSourceLimiter(cfg.RateEvents, cfg.RateWindow),
	}
}

// ServeHTTP routes the provider's GET verification handshake and POST event
// delivery.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerify(w, r)
	case http.MethodPost:
		h.handleInbound(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleVerify echoes hub.challenge for a matching subscribe handshake.
func (h *WebhookHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if h.cfg.VerifyToken == "" || mode != "subscribe" || token != h.cfg.VerifyToken {
		h.log.Warn("webhook.verify.reject", "mode", mode, "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (h *WebhookHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	defer func() { _ = body.Close() }()

	var env v1.WebhookEnvelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		h.reject(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if err := env.Validate(); err != nil {
		h.reject(w, http.StatusBadRequest, "bad_envelope", err.Error())
		return
	}

	if !h.limiter.Allow(env.Data.PageID, now) {
		h.reject(w, http.StatusTooManyRequests, "rate_limited", "too many events")
		return
	}

	content, err := env.Data.DecodeMessageBody()
	if err != nil {
		if errors.Is(err, v1.ErrMessageShape) {
			h.reject(w, http.StatusBadRequest, "bad_message_shape", err.Error())
			return
		}
		h.reject(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}

	data := env.Data

	createdTime := strings.TrimSpace(data.Timestamp)
	if createdTime == "" {
		createdTime = now.Format(time.RFC3339)
	}

	id := content.ID
	if id == "" {
		id = SynthesizeMessageID(now, data.SenderID)
	}

	convID := h.norm.Canonical(data.ConversationID, data.PageID, data.SenderID)

	msg := StoredMessage{
		ID:             id,
		ConversationID: convID,
		Message:        content.Text,
		From: Sender{
			ID:   data.SenderID,
			Name: data.SenderName,
		},
		CreatedTime: createdTime,
		PageID:      data.PageID,
		SenderID:    data.SenderID,
		Attachments: content.Attachments,
	}
	h.store.AddMessage(msg)

	snippet := strings.TrimSpace(data.Snippet)
	if snippet == "" {
		snippet = content.Text
	}
	h.store.EmitConversationUpdate(ConversationUpdate{
		ConversationID: convID,
		PageID:         data.PageID,
		Snippet:        snippet,
		UpdatedTime:    createdTime,
		SenderID:       data.SenderID,
		SenderName:     data.SenderName,
	})

	h.metrics.MessagesIngested.Inc()
	h.log.Info("webhook.accept", "message_id", id, "conversation_id", convID, "page_id", data.PageID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":          "ok",
		"message_id":      id,
		"conversation_id": convID,
	})
}

func (h *WebhookHandler) reject(w http.ResponseWriter, status int, reason, msg string) {
	h.metrics.WebhookRejected.WithLabelValues(reason).Inc()
	h.log.Warn("webhook.reject", "reason", reason, "detail", msg)
	writeJSONError(w, status, msg)
}
