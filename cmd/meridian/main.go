package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridianmc/meridian-core/internal/api"
	"github.com/meridianmc/meridian-core/internal/app"
	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/platform/cache"
	"github.com/meridianmc/meridian-core/internal/platform/db"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/push"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/state"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbOpts := db.Options{
		DSN:             cfg.PGDSN,
		MinConns:        cfg.PGMinConns,
		MaxConns:        cfg.PGMaxConns,
		IdleTimeout:     cfg.PGIdleTimeout,
		AcquireTimeout:  cfg.AcquireTimeout,
		AcquireAttempts: cfg.AcquireAttempts,
	}
	pool, err := db.New(ctx, dbOpts)
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

	origin := uuid.NewString()
	publisher := events.NewPublisher(redisClient, origin, metrics)
	subscriber := events.NewSubscriber(redisClient, logger, metrics)

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

	ranks, err := rankRepo.ListRanks(ctx)
	if err != nil {
		logger.Error("load rank catalog", slog.Any("error", err))
		os.Exit(1)
	}
	catalog, err := rank.NewCatalog(ranks)
	if err != nil {
		logger.Error("validate rank catalog", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := rank.NewResolver(catalog, state.NewRankSource(stateCache, playerRepo))

	hub := push.NewHub(logger)

	players := player.NewService(playerRepo, publisher, stateCache, logger)
	punishments := punishment.NewEngine(punishmentRepo, publisher, stateCache, hub, logger)
	sessions := session.NewRegistry(sessionRepo, publisher, stateCache, logger, metrics)
	parties := party.NewService(partyRepo, publisher, stateCache, logger)
	friends := friend.NewService(friendRepo, publisher, stateCache, logger)

	applier := state.NewApplier(stateCache, catalog, rankRepo, resolver, logger, metrics)
	applier.Register(subscriber)

	router := api.NewRouter(api.Dependencies{
		Logger:      logger,
		Metrics:     metrics,
		Cache:       stateCache,
		Players:     players,
		Resolver:    resolver,
		Punishments: punishments,
		Sessions:    sessions,
		Parties:     parties,
		Friends:     friends,
		Hub:         hub,
		Ready: func(ctx context.Context) error {
			conn, err := db.Acquire(ctx, pool, dbOpts)
			if err != nil {
				return err
			}
			defer conn.Release()
			if err := conn.Ping(ctx); err != nil {
				return fmt.Errorf("postgres ping: %w", err)
			}
			return redisClient.Ping(ctx).Err()
		},
		TokenHash:      cfg.APITokenHash,
		Production:     cfg.IsProduction(),
		RequestTimeout: cfg.AppRequestTimeout,
	})

	// No ReadTimeout/WriteTimeout on the server itself: the push socket on
	// /ws is long-lived and would be killed by either.
	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.AppReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return subscriber.Run(gctx)
	})
	g.Go(func() error {
		return stateCache.RunEviction(gctx, cfg.CacheSweepEvery)
	})
	g.Go(func() error {
		return punishments.RunExpirySweep(gctx, cfg.ExpirySweepEvery)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime exit", slog.Any("error", err))
		os.Exit(1)
	}
}
