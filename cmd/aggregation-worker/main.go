package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acuevasp/hookrelay/internal/aggregation"
	"github.com/acuevasp/hookrelay/internal/cron"
	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/acuevasp/hookrelay/pkg/metrics"
	"github.com/acuevasp/hookrelay/pkg/migrate"
	"github.com/acuevasp/hookrelay/pkg/pubsub"
	"github.com/acuevasp/hookrelay/pkg/redis"
)

const lockScope = "aggregation-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "aggregation-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "aggregation-worker"

	logg = logger.New(logger.Options{
		ServiceName: "aggregation-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

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

	repo, err := aggregation.NewRepository(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregation repository", err)
		os.Exit(1)
	}

	emitter, err := aggregation.NewPubSubEmitter(logg, psClient.DigestPublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create digest emitter", err)
		os.Exit(1)
	}

	registry := aggregation.NewAggregatorRegistry()
	registry.Register("security", "policies", aggregation.PolicyFindingsAggregator{})
	registry.Register("commerce", "orders", aggregation.EventCountAggregator{})

	job, err := aggregation.NewJob(aggregation.JobParams{
		Logger:   logg,
		Store:    repo,
		Registry: registry,
		Emitter:  emitter,
		Config:   cfg.Aggregation,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregation job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope+":"+cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Aggregation.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting aggregation worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "aggregation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "aggregation worker shutting down gracefully")
}
