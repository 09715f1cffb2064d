// Package app wires the Nepdora relay runtime: config, logging, HTTP routes,
// the message store, and the streaming gateways.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nepdora/cmd/internal/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the relay runtime: it owns the process-lifetime message store and
// the HTTP server wiring around it.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	store    *relay.Store
	sse      *relay.SSEGateway
	webhook  *relay.WebhookHandler
}

// New constructs a fully wired App instance from config and logger.
//
// The store is built exactly once here and handed by reference to both
// gateways; the normalizer likewise, so the ingest side and the subscribe
// side can never disagree on the canonical key.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(registry)

	store := relay.NewStore(log)
	norm := relay.NewNormalizer(relay.NormalizePolicy{
		PreferComposite: cfg.NormalizePreferComposite,
		Separator:       "_",
	})

	sse := relay.NewSSEGateway(log, store, norm, metrics, cfg.HeartbeatInterval, cfg.SessionQueueSize)
	webhook := relay.NewWebhookHandler(log, store, norm, metrics, relay.WebhookConfig{
		VerifyToken:  cfg.WebhookVerifyToken,
		MaxBodyBytes: int64(cfg.WebhookMaxBodyBytes),
		RateEvents:   cfg.WebhookRateEvents,
		RateWindow:   cfg.WebhookRateWindow,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    store,
		sse:      sse,
		webhook:  webhook,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.registry, a.sse, a.webhook)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      a.cfg.WriteTimeout, // zero: streams outlive deadlines
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 120*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
