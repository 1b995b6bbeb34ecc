package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	verificationengine "wayfinder/contexts/community-mapping/verification-engine"
	adaptermetrics "wayfinder/contexts/community-mapping/verification-engine/adapters/metrics"
	postgresadapter "wayfinder/contexts/community-mapping/verification-engine/adapters/postgres"
	redisadapter "wayfinder/contexts/community-mapping/verification-engine/adapters/redis"
	workerapp "wayfinder/contexts/community-mapping/verification-engine/application/workers"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
	"wayfinder/internal/platform/config"
	"wayfinder/internal/platform/db"
	"wayfinder/internal/platform/httpserver"
	"wayfinder/internal/platform/logging"
	"wayfinder/internal/platform/messaging"
	platformmetrics "wayfinder/internal/platform/metrics"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const shutdownTimeout = 10 * time.Second

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	redis    *goredis.Client
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	redis        *goredis.Client
	outboxRelay  workerapp.OutboxRelay
	submissions  workerapp.SubmissionConsumer
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName, "process", "api")

	pg, repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := platformmetrics.NewRegistry()
	voteMetrics := adaptermetrics.NewVoteMetrics(registry)

	var (
		reader ports.EntityReader = repo
		cache  ports.EntityCache
		rdb    *goredis.Client
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err = redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		entityCache := redisadapter.NewEntityCache(rdb, repo, cfg.EntityCacheTTL, adaptermetrics.NewCacheMetrics(registry), logger)
		reader = entityCache
		cache = entityCache
	} else {
		logger.Info("entity cache disabled, REDIS_URL not set",
			"event", "bootstrap_entity_cache_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	module := verificationengine.NewModule(verificationengine.Dependencies{
		Transactor: repo,
		Reader:     reader,
		Registry:   repo,
		Cache:      cache,
		Observer:   voteMetrics,
		Clock:      clockwork.NewRealClock(),
		IDGen:      postgresadapter.UUIDGenerator{},
		Logger:     logger,
	})

	server := httpserver.New(
		module,
		httpserver.NewVoterLimiter(cfg.VoteRatePerSecond, cfg.VoteRateBurst, nil),
		platformmetrics.Handler(registry),
		logger,
		normalizeAddr(cfg.HTTPPort),
	)
	return &APIApp{
		server:   server,
		postgres: pg,
		redis:    rdb,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName, "process", "worker")

	pg, repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	bus, rdb, err := newEventBus(ctx, cfg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()
	module := verificationengine.NewModule(verificationengine.Dependencies{
		Transactor: repo,
		Reader:     repo,
		Registry:   repo,
		Clock:      clock,
		IDGen:      postgresadapter.UUIDGenerator{},
		Logger:     logger,
	})

	return &WorkerApp{
		postgres: pg,
		redis:    rdb,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     clock,
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		submissions: workerapp.SubmissionConsumer{
			Subscriber:   bus,
			Dedup:        repo,
			Registration: module.Registration,
			Clock:        clock,
			DedupTTL:     7 * 24 * time.Hour,
			Disabled:     !cfg.EnableSubmissionConsumer,
			Logger:       logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

type eventBus interface {
	ports.EventPublisher
	ports.EventSubscriber
}

// newEventBus uses Redis Streams when REDIS_URL is set so submission
// services and other workers can reach this process. Without Redis, events
// stay inside the worker.
func newEventBus(ctx context.Context, cfg config.Config, logger *slog.Logger) (eventBus, *goredis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("REDIS_URL not set, events stay in process",
			"event", "bootstrap_event_bus_in_process",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return messaging.NewBus(logger), nil, nil
	}
	rdb, err := redisadapter.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	bus := messaging.NewStreamBus(rdb, messaging.StreamOptions{
		Consumer: cfg.EventConsumerName,
		MaxLen:   cfg.EventStreamMaxLen,
	}, logger)
	return bus, rdb, nil
}

func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.Postgres, *postgresadapter.Repository, error) {
	pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := postgresadapter.AutoMigrate(pg.DB); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, postgresadapter.NewRepository(pg.DB, cfg.LockTimeout, logger), nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *APIApp) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.submissions.Start(ctx); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	err := w.outboxRelay.Run(ctx, w.pollInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
