package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acuevasp/hookrelay/internal/consumer"
	"github.com/acuevasp/hookrelay/internal/delivery"
	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/acuevasp/hookrelay/pkg/metrics"
	"github.com/acuevasp/hookrelay/pkg/migrate"
	"github.com/acuevasp/hookrelay/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "delivery-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "delivery-worker"

	logg = logger.New(logger.Options{
		ServiceName: "delivery-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	repo, err := delivery.NewRepository(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery repository", err)
		os.Exit(1)
	}

	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	webhook, err := delivery.NewWebhookProcessor(delivery.WebhookProcessorParams{
		Logger:  logg,
		Policy:  cfg.Delivery,
		Metrics: deliveryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook processor", err)
		os.Exit(1)
	}

	email, err := delivery.NewEmailProcessor(delivery.EmailProcessorParams{
		Logger:  logg,
		Store:   repo,
		Metrics: deliveryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create email processor", err)
		os.Exit(1)
	}

	bridge, err := delivery.NewBridgeProcessor(delivery.BridgeProcessorParams{
		Logger:    logg,
		Publisher: psClient.IntegrationsPublisher(),
		Metrics:   deliveryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bridge processor", err)
		os.Exit(1)
	}

	coordinator, err := delivery.NewCoordinator(delivery.CoordinatorParams{
		Logger:     logg,
		Recorder:   repo,
		Processors: []delivery.Processor{webhook, email, bridge},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coordinator", err)
		os.Exit(1)
	}

	eventConsumer, err := consumer.New(consumer.Params{
		Logger:      logg,
		Subscriber:  psClient.EventsSubscription(),
		Endpoints:   repo,
		Coordinator: coordinator,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create event consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting delivery worker")

	if err := eventConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "delivery worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "delivery worker shutting down gracefully")
}
