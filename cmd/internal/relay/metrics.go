package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus instruments. Construct once at bootstrap
// with the app's registry and share across gateways.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	MessagesIngested prometheus.Counter
	EventsForwarded  *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	WebhookRejected  *prometheus.CounterVec
}

// NewMetrics registers the relay instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Streaming sessions currently open.",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_opened_total",
			Help: "Streaming sessions opened since process start.",
		}),
		MessagesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_ingested_total",
			Help: "Webhook messages accepted into the store.",
		}),
		EventsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_forwarded_total",
			Help: "Events written to streaming sessions, by SSE event type.",
		}, []string{"event"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Live events dropped because a session queue was full.",
		}),
		WebhookRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_webhook_rejected_total",
			Help: "Webhook requests rejected at the boundary, by reason.",
		}, []string{"reason"}),
	}
}

// nopMetrics lets tests construct gateways without a registry.
func nopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
