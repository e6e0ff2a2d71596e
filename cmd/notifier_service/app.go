package notifierservice

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"meditrack/internal/config"
	"meditrack/internal/contracts"
	"meditrack/internal/logger"
	"meditrack/internal/mailer"
	"meditrack/internal/notifier"
	"meditrack/internal/postgres"
	"meditrack/internal/rabbitmq"
)

// Run wires the notifier service and blocks until ctx is cancelled. It
// consumes status-change events and emails the requesting patient.
func Run(ctx context.Context, prefetch int) error {
	log := logger.New("notifier-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	uow := postgres.NewUnitOfWork(pool)
	userRepo := postgres.NewUserRepo()
	mail := mailer.New(cfg, log)
	svc := notifier.NewService(uow, userRepo, mail, log)

	log.Info(ctx, "service_started", "Notifier Service started",
		map[string]any{"queue": contracts.QueueEmergencyNotifications, "prefetch": prefetch})

	err = rmq.Consume(ctx, contracts.QueueEmergencyNotifications, "notifier-service", prefetch,
		func(msgCtx context.Context, d amqp.Delivery) error {
			return svc.HandleStatusChange(msgCtx, d.Body)
		},
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "consumer_failed", "Notification consumer terminated with error", err, nil)
		return err
	}

	log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
	return nil
}
