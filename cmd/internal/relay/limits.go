package relay

import "time"

// Relay limits. Tunables are overridable via app config; these are the
// safe defaults.
const (
	// Heartbeat cadence for streaming sessions. Intermediary proxies commonly
	// kill idle connections after 60s, so 30s keeps them alive with margin.
	heartbeatInterval = 30 * time.Second

	// Per-session outbound queue. Live events are dropped (and counted)
	// rather than blocking the store's dispatch when a session falls behind.
	defaultSessionQueueSize = 256
	minSessionQueueSize     = 32

	// Max accepted webhook body size.
	maxWebhookBodyBytes = 256 << 10 // 256 KiB

	// Per-page webhook ingest limits (events per window).
	ingestRateEvents = 300
	ingestRateWindow = 10 * time.Second
)
