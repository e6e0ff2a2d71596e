package responderservice

import (
	"context"
	"strings"
	"time"

	"meditrack/internal/apiclient"
	"meditrack/internal/config"
	"meditrack/internal/logger"
	"meditrack/internal/realtime"
	"meditrack/internal/responder"
)

const refreshInterval = 30 * time.Second

// Run wires the responder dashboard and blocks until ctx is cancelled. The
// dashboard listens on the realtime channel and keeps the durable request
// list current via the HTTP API.
func Run(ctx context.Context) error {
	log := logger.New("responder-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	channel := realtime.NewClient(realtime.Options{
		URL:                  websocketURL(cfg.Services.APIBaseURL),
		BaseDelay:            time.Duration(cfg.Realtime.BaseDelayMS) * time.Millisecond,
		GrowthFactor:         cfg.Realtime.GrowthFactor,
		MaxDelay:             time.Duration(cfg.Realtime.MaxDelayMS) * time.Millisecond,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		Logger:               log,
	})

	api := apiclient.New(cfg.Services.APIBaseURL, log)
	if err := api.Login(ctx, cfg.Responder.Username, cfg.Responder.Password); err != nil {
		log.Error(ctx, "login_failed", "Responder could not authenticate with the emergency service", err, nil)
		return err
	}

	dashboard := responder.NewDashboard(channel, api, log)
	if err := dashboard.Start(ctx); err != nil {
		log.Error(ctx, "dashboard_start_failed", "Failed to start responder dashboard", err, nil)
		return err
	}
	defer dashboard.Stop()

	log.Info(ctx, "service_started", "Responder Service started", nil)

	// periodic refresh keeps the durable list current even without alerts
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
			return nil
		case <-ticker.C:
			if err := dashboard.Refresh(ctx); err != nil {
				log.Error(ctx, "refresh_failed", "Failed to refresh emergency requests", err, nil)
			}
		}
	}
}

// websocketURL derives the relay endpoint from the API base URL.
func websocketURL(apiBase string) string {
	ws := apiBase
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws"
}
