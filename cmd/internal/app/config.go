package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout must stay 0 for this server: streaming responses outlive
	// any fixed write deadline. Heartbeats handle dead-connection detection.
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Streaming session tunables.
	HeartbeatInterval time.Duration
	SessionQueueSize  int

	// Webhook boundary tunables.
	WebhookVerifyToken  string
	WebhookMaxBodyBytes int
	WebhookRateEvents   int
	WebhookRateWindow   time.Duration

	// Conversation-id normalization policy. PreferComposite selects the
	// pageID_senderID composite whenever both parts are present.
	NormalizePreferComposite bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("NEPDORA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("NEPDORA_LOG_LEVEL", "info"),
		LogFormat: EnvString("NEPDORA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("NEPDORA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("NEPDORA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      0,
		IdleTimeout:       EnvDuration("NEPDORA_HTTP_IDLE_TIMEOUT", 120*time.Second),
		MaxHeaderBytes:    EnvInt("NEPDORA_HTTP_MAX_HEADER_BYTES", 1<<20),

		HeartbeatInterval: EnvDuration("NEPDORA_HEARTBEAT_INTERVAL", 30*time.Second),
		SessionQueueSize:  EnvInt("NEPDORA_SESSION_QUEUE", 256),

		WebhookVerifyToken:  EnvString("NEPDORA_WEBHOOK_VERIFY_TOKEN", ""),
		WebhookMaxBodyBytes: EnvInt("NEPDORA_WEBHOOK_MAX_BODY_BYTES", 256<<10),
		WebhookRateEvents:   EnvInt("NEPDORA_WEBHOOK_RATE_EVENTS", 300),
		WebhookRateWindow:   EnvDuration("NEPDORA_WEBHOOK_RATE_WINDOW", 10*time.Second),

		NormalizePreferComposite: EnvBool("NEPDORA_NORMALIZE_PREFER_COMPOSITE", true),
	}
}
