package beaconservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"meditrack/internal/apiclient"
	"meditrack/internal/beacon"
	"meditrack/internal/config"
	"meditrack/internal/contracts"
	"meditrack/internal/geolocate"
	"meditrack/internal/logger"
	"meditrack/internal/realtime"
)

const locationStreamInterval = 15 * time.Second

// Run wires the beacon service and blocks until ctx is cancelled. The beacon
// is the patient-side agent: it keeps a fresh location fix, streams it over
// the realtime channel, and exposes the one-touch emergency trigger.
func Run(ctx context.Context) error {
	log := logger.New("beacon-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// geolocation provider over the configured source
	provider, err := buildProvider(cfg, log)
	if err != nil {
		log.Error(ctx, "geolocation_init_failed", "Failed to initialize geolocation", err, nil)
		return err
	}
	defer provider.Close()
	provider.RequestPermission(ctx)

	// realtime channel client with the reconnect policy from config
	channel := realtime.NewClient(realtime.Options{
		URL:                  websocketURL(cfg.Services.APIBaseURL),
		BaseDelay:            time.Duration(cfg.Realtime.BaseDelayMS) * time.Millisecond,
		GrowthFactor:         cfg.Realtime.GrowthFactor,
		MaxDelay:             time.Duration(cfg.Realtime.MaxDelayMS) * time.Millisecond,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		Logger:               log,
	})
	defer channel.Disconnect()

	// authenticated API client for the durable emergency record
	api := apiclient.New(cfg.Services.APIBaseURL, log)
	if err := api.Login(ctx, cfg.Beacon.Username, cfg.Beacon.Password); err != nil {
		log.Error(ctx, "login_failed", "Beacon could not authenticate with the emergency service", err, nil)
		return err
	}

	composer := beacon.NewComposer(channel, api, provider, log)
	composer.SetIdentity(api.UserID())

	// stream location updates while the service runs
	go streamLocations(ctx, channel, provider, api.UserID(), log)

	// HTTP trigger surface
	mux := http.NewServeMux()
	trigger := beacon.NewTriggerHandler(composer, provider, log)
	trigger.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.BeaconTriggerPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Beacon Service started on port %d", cfg.Services.BeaconTriggerPort),
		map[string]any{"port": cfg.Services.BeaconTriggerPort, "user_id": api.UserID()},
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err,
				map[string]any{"port": cfg.Services.BeaconTriggerPort})
			return err
		}
		return nil
	}
}

// buildProvider assembles the geolocation stack for the configured source.
func buildProvider(cfg *config.Config, log *logger.Logger) (*geolocate.Provider, error) {
	var source geolocate.Source
	switch cfg.Geolocation.Source {
	case "gpsd":
		source = geolocate.NewGPSDSource(cfg.Geolocation.GPSDAddr, log)
	case "static":
		source = &geolocate.StaticSource{
			Latitude:  cfg.Geolocation.StaticLatitude,
			Longitude: cfg.Geolocation.StaticLongitude,
		}
	case "none":
		source = nil // provider reports ErrUnsupported
	default:
		return nil, fmt.Errorf("unknown geolocation source %q", cfg.Geolocation.Source)
	}

	cache := geolocate.NewCache(cfg.Geolocation.CachePath)
	opts := geolocate.Options{
		HighAccuracy: cfg.Geolocation.HighAccuracy,
		Timeout:      time.Duration(cfg.Geolocation.TimeoutMS) * time.Millisecond,
		MaximumAge:   time.Duration(cfg.Geolocation.MaximumAgeMS) * time.Millisecond,
		UseWatch:     cfg.Geolocation.WatchPosition,
	}
	return geolocate.NewProvider(source, geolocate.NoPermissions{}, cache, opts, log), nil
}

// streamLocations periodically pushes the current fix over the realtime
// channel so responders see the beacon move. Failures are logged and the
// loop keeps going; the channel client reconnects on its own.
func streamLocations(ctx context.Context, channel *realtime.Client, provider *geolocate.Provider, userID string, log *logger.Logger) {
	ticker := time.NewTicker(locationStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fix, ok := provider.Current()
		if !ok {
			// try to obtain a first fix; Current picks it up next tick
			if _, err := provider.GetLocation(ctx); err != nil {
				log.Debug(ctx, "location_unavailable", "No location fix to stream", map[string]any{"error": err.Error()})
			}
			continue
		}

		err := channel.SendLocationUpdate(ctx, contracts.LocationPayload{
			UserID:         userID,
			Latitude:       fix.Latitude,
			Longitude:      fix.Longitude,
			AccuracyMeters: fix.AccuracyMeters,
			Timestamp:      fix.Timestamp,
		})
		if err != nil {
			log.Debug(ctx, "location_stream_failed", "Failed to stream location update", map[string]any{"error": err.Error()})
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
