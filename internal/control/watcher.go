// Package control wires the coordination store, rate limiter, work queue,
// fetcher, workers, seeder, and janitor into a single running process and
// manages its startup and graceful shutdown.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evmwatch/indexer/internal/coordination/queue"
	"github.com/evmwatch/indexer/internal/coordination/ratelimiter"
	redisclient "github.com/evmwatch/indexer/internal/coordination/redis"
	"github.com/evmwatch/indexer/internal/core/config"
	"github.com/evmwatch/indexer/internal/indexing/fetcher"
	"github.com/evmwatch/indexer/internal/indexing/health"
	"github.com/evmwatch/indexer/internal/indexing/janitor"
	"github.com/evmwatch/indexer/internal/indexing/seeder"
	"github.com/evmwatch/indexer/internal/indexing/worker"
	"github.com/evmwatch/indexer/internal/infra/rpc"
	"github.com/evmwatch/indexer/internal/infra/storage"
	"github.com/evmwatch/indexer/internal/infra/storage/postgres"
)

const rateLimitKey = "ratelimit:global"

// Supervisor owns every long-running component of the indexer process:
// the worker pool, the seeder, the janitor, and the health/metrics server.
// It is the process-level analogue of the per-height worker state machine,
// one level up.
type Supervisor struct {
	cfg config.AppConfig

	redisClient *redisclient.Client
	db          *postgres.DB
	store       storage.Store
	queue       *queue.Queue
	rpcClient   *rpc.Client
	limiter     *ratelimiter.Limiter

	workers      []*worker.Worker
	seeder       *seeder.Seeder
	janitor      *janitor.Janitor
	healthMon    *health.Monitor
	healthServer *health.Server

	log *slog.Logger
}

// NewSupervisor builds a Supervisor from cfg, dialing Redis and Postgres
// and wiring every component. The caller owns calling Stop on the returned
// Supervisor to release those connections, even if Start is never called.
func NewSupervisor(ctx context.Context, cfg config.AppConfig) (*Supervisor, error) {
	if len(cfg.RPC.Providers) == 0 {
		return nil, fmt.Errorf("no RPC providers configured")
	}

	redisClient, err := redisclient.NewClient(redisclient.Config{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := postgres.NewStore(db)

	q := queue.New(
		redisClient.RDB(),
		redisClient.Blocking(),
		cfg.Queue.BatchSize,
		cfg.Queue.LeaseTTL,
		cfg.Queue.MinBlock,
		cfg.Queue.DeadLetterThreshold,
	)

	rpcClient := rpc.NewClient(cfg.RPC.Providers[0].URL, cfg.RPC.Timeout)
	limiter := ratelimiter.New(redisClient.RDB(), rateLimitKey, cfg.RateLimit.CallsPerSec, time.Second)

	f := fetcher.New(rpcClient, limiter, cfg.Fetcher.MaxRetries)

	workerCfg := worker.DefaultConfig()
	workerCfg.Concurrency = cfg.Worker.MaxConcurrent

	workers := make([]*worker.Worker, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		id := fmt.Sprintf("worker-%d", i)
		workers = append(workers, worker.New(id, workerCfg, q, f, store))
	}

	sdr := seeder.New(rpcClient, q, cfg.Queue.SeedInterval)
	jan := janitor.New(q, cfg.Queue.JanitorInterval)

	healthMon := health.NewMonitor(q, rpcClient.Monitor, cfg.Queue.SeedInterval)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Supervisor{
		cfg:          cfg,
		redisClient:  redisClient,
		db:           db,
		store:        store,
		queue:        q,
		rpcClient:    rpcClient,
		limiter:      limiter,
		workers:      workers,
		seeder:       sdr,
		janitor:      jan,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default().With("component", "supervisor"),
	}, nil
}

// Start launches every component in its own goroutine and blocks until ctx
// is cancelled, then waits for all of them to exit before returning.
func (s *Supervisor) Start(ctx context.Context) error {
	height, err := s.store.LastPersistedHeight(ctx)
	if err != nil {
		return fmt.Errorf("read last persisted height: %w", err)
	}
	s.log.Info("starting supervisor", "workers", len(s.workers), "last_persisted_height", height)

	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("health server exited", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		return s.seeder.Run(gctx)
	})
	g.Go(func() error {
		return s.janitor.Run(gctx)
	})
	g.Go(func() error {
		return s.healthMon.Run(gctx)
	})

	err = g.Wait()
	s.log.Info("supervisor stopped")
	return err
}

// Stop signals every worker to finish its current range and stops the
// health server, then releases the Redis and Postgres connections. Workers
// observe ctx cancellation (from the caller cancelling the context passed
// to Start) independently of this call; Stop additionally flips each
// worker's stop flag so in-flight ranges finish cleanly.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.log.Info("stopping supervisor")
	for _, w := range s.workers {
		w.Stop()
	}

	if err := s.healthServer.Stop(ctx); err != nil {
		s.log.Warn("health server stop failed", "error", err)
	}

	if err := s.db.Close(); err != nil {
		s.log.Warn("postgres close failed", "error", err)
	}
	if err := s.redisClient.Close(); err != nil {
		s.log.Warn("redis close failed", "error", err)
	}
	return nil
}
