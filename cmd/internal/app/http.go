package app

import (
	"net/http"

	"nepdora/cmd/internal/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	registry *prometheus.Registry,
	sse *relay.SSEGateway,
	webhook *relay.WebhookHandler,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// The relay has no external dependencies to probe: once constructed,
	// ready equals alive.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/webhook/messenger", webhook)
	mux.HandleFunc("/api/stream/conversation", sse.HandleConversationStream)
	mux.HandleFunc("/api/stream/page", sse.HandlePageStream)

	log.Info("http.routes.registered",
		"stream_conversation", "/api/stream/conversation",
		"stream_page", "/api/stream/page",
		"webhook", "/api/webhook/messenger",
	)
}
