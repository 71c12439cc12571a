package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/api"
	"github.com/Priya8975/leaderboard-ledger/internal/config"
	"github.com/Priya8975/leaderboard-ledger/internal/engine"
	"github.com/Priya8975/leaderboard-ledger/internal/metrics"
	"github.com/Priya8975/leaderboard-ledger/internal/store"
	"github.com/Priya8975/leaderboard-ledger/internal/websocket"
	"github.com/Priya8975/leaderboard-ledger/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := pgStore.RunMigrations(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	// Redis is optional: it backs the leaderboard cache and the sink
	// circuit breakers.
	var (
		invalidator engine.CacheInvalidator
		boardCache  engine.LeaderboardCache
		relayBreak  worker.Breaker
		apiBreak    api.BreakerStates
	)
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")

		cache := store.NewLeaderboardCache(redisStore, cfg.LeaderboardCacheTTL)
		invalidator, boardCache = cache, cache

		cb := engine.NewCircuitBreaker(redisStore.Client(), cfg.BreakerThreshold, cfg.BreakerCooldown, logger)
		relayBreak, apiBreak = cb, cb
	}

	m := metrics.New()

	verifier := engine.NewVerifier(cfg.WebhookSecret, cfg.SignatureTolerance)
	mutator := engine.NewLedgerMutator(pgStore.ProcessedEvents(), pgStore, invalidator, logger)
	gateway := engine.NewGateway(engine.GatewayConfig{
		ConfirmationTypes: cfg.ConfirmationEventTypes,
		Timeout:           cfg.WebhookTimeout,
	}, verifier, mutator, m, logger)
	projector := engine.NewProjector(pgStore.Contributions(), boardCache, cfg.RankingMode, logger)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	notifiers := []worker.Notifier{worker.NewHubNotifier(hub)}
	if cfg.RabbitMQURL != "" {
		publisher, err := worker.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		logger.Info("connected to RabbitMQ", "exchange", cfg.RabbitMQExchange)
		notifiers = append(notifiers, publisher)
	}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, worker.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret, cfg.WebhookTimeout))
	}
	sinks := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		sinks = append(sinks, n.Name())
	}

	relay := worker.NewRelay(pgStore.Outbox(), notifiers, relayBreak, cfg.OutboxMaxAttempts, m, logger)
	pool := worker.NewPool(cfg.NumWorkers, relay, logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(pgStore.Outbox(), pool, worker.DispatcherConfig{
		PollInterval:  cfg.OutboxPollInterval,
		BatchSize:     cfg.OutboxBatchSize,
		Lease:         cfg.OutboxLease,
		Retention:     cfg.OutboxRetention,
		PurgeInterval: cfg.OutboxPurgeEvery,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()

	router := api.NewRouter(api.Deps{
		Gateway:     gateway,
		Leaderboard: projector,
		Stats:       pgStore,
		DeadLetters: pgStore.Outbox(),
		Breaker:     apiBreak,
		Sinks:       sinks,
		Clients:     hub,
		WebSocket:   hub.HandleWebSocket,
		Metrics:     m.Handler(),
		DB:          pgStore,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "ranking_mode", cfg.RankingMode, "sinks", sinks)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			pool.Stop()
			return err
		}
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// The dispatcher is the only producer for the pool, so it must be gone
	// before the job channel is closed.
	wg.Wait()
	pool.Stop()

	return nil
}
