package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridianmc/meridian-core/internal/app"
	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/friend"
	jobmetrics "github.com/meridianmc/meridian-core/internal/jobs"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/platform/cache"
	"github.com/meridianmc/meridian-core/internal/platform/db"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/state"
	"github.com/meridianmc/meridian-core/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Options{
		DSN:             cfg.PGDSN,
		MinConns:        cfg.PGMinConns,
		MaxConns:        cfg.PGMaxConns,
		IdleTimeout:     cfg.PGIdleTimeout,
		AcquireTimeout:  cfg.AcquireTimeout,
		AcquireAttempts: cfg.AcquireAttempts,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
		MinIdle:  cfg.RedisMinIdle,
	})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	playerRepo := player.NewRepository(pool)
	punishmentRepo := punishment.NewRepository(pool)
	sessionRepo := session.NewRepository(pool)
	partyRepo := party.NewRepository(pool)
	friendRepo := friend.NewRepository(pool)
	rankRepo := rank.NewRepository(pool)

	publisher := events.NewPublisher(redisClient, uuid.NewString(), metrics)

	// The worker keeps its own cache so session reaping can publish and
	// locally apply closures through the same path the API uses.
	loader := &state.StoreLoader{
		Profiles:    playerRepo,
		Punishments: punishmentRepo,
		Sessions:    sessionRepo,
		Parties:     partyRepo,
		Friends:     friendRepo,
	}
	stateCache := state.NewCache(loader, state.CacheOptions{
		Staleness: cfg.CacheStaleness,
		IdleTTL:   cfg.CacheIdleTTL,
	}, logger, metrics)

	registry := session.NewRegistry(sessionRepo, publisher, stateCache, logger, metrics)

	catalog, err := rank.NewCatalog(nil)
	if err != nil {
		logger.Error("init rank catalog", slog.Any("error", err))
		os.Exit(1)
	}

	jobMetrics := jobmetrics.NewMetrics(nil)
	reapJob := jobs.NewSessionReapJob(registry, logger, jobMetrics, cfg.SessionReapCutoff)
	refreshJob := jobs.NewRankRefreshJob(rankRepo, catalog, publisher, logger, jobMetrics)
	flushJob := jobs.NewTouchFlushJob(playerRepo, logger, jobMetrics)

	reapTask, err := jobs.NewSessionReapTask(jobs.SessionReapPayload{})
	if err != nil {
		logger.Error("build reap task", slog.Any("error", err))
		os.Exit(1)
	}
	refreshTask, err := jobs.NewRankRefreshTask(jobs.RankRefreshPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	flushTask := jobs.NewTouchFlushTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionReap, Handler: reapJob.Handle},
			{Type: jobs.TaskRankRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskTouchFlush, Handler: flushJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: reapTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/10 * * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/2 * * * *", Task: flushTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
