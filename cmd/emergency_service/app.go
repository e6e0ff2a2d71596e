package emergencyservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"meditrack/internal/config"
	"meditrack/internal/jwt"
	"meditrack/internal/logger"
	"meditrack/internal/postgres"
	"meditrack/internal/rabbitmq"
	"meditrack/internal/realtime/relay"
	"meditrack/internal/software/emergency/handler"
	"meditrack/internal/software/emergency/service"
)

// Run wires the emergency service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	log := logger.New("emergency-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ for status-change events
	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos behind a unit of work
	uow := postgres.NewUnitOfWork(pool)
	userRepo := postgres.NewUserRepo()
	contactRepo := postgres.NewContactRepo()
	facilityRepo := postgres.NewFacilityRepo()
	emergencyRepo := postgres.NewEmergencyRepo()

	// realtime relay for beacon and responder peers
	rly := relay.New(log)
	defer rly.Close()

	// set up the emergency service
	svc := service.New(uow, userRepo, contactRepo, facilityRepo, emergencyRepo, jwtManager, pub, log)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.New(svc, jwtManager, rly, log)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global), blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.EmergencyServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Emergency Service started on port %d", cfg.Services.EmergencyServicePort),
		map[string]any{"port": cfg.Services.EmergencyServicePort, "max_concurrent": maxConcurrent},
	)

	return serveUntilCancelled(ctx, srv, log)
}

// serveUntilCancelled runs srv until ctx is cancelled, then drains in-flight
// requests with a bounded shutdown window.
func serveUntilCancelled(ctx context.Context, srv *http.Server, log *logger.Logger) error {
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
				map[string]any{"addr": srv.Addr})
			return err
		}
		return nil
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
