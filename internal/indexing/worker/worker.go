// Package worker implements the per-process loop that pulls leased ranges
// from the work queue, fetches and persists their blocks concurrently, and
// acknowledges or fails the range depending on the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evmwatch/indexer/internal/core/domain"
	"github.com/evmwatch/indexer/internal/coordination/queue"
	"github.com/evmwatch/indexer/internal/indexing/fetcher"
	"github.com/evmwatch/indexer/internal/indexing/metrics"
	"github.com/evmwatch/indexer/internal/infra/storage"
)

// Fetcher retrieves one height's assembled records.
type Fetcher interface {
	Fetch(ctx context.Context, height uint64) (*fetcher.FetchResult, error)
}

// Queue is the subset of queue.Queue the worker loop needs.
type Queue interface {
	Next(ctx context.Context, workerID string) (domain.Range, error)
	ExtendLease(ctx context.Context, r domain.Range) error
	Complete(ctx context.Context, r domain.Range) error
	Fail(ctx context.Context, r domain.Range) error
}

// Config holds worker loop tuning knobs.
type Config struct {
	Concurrency     int           // max concurrent height fetches per range, default 10
	HeartbeatEvery  time.Duration // ExtendLease cadence, default 30s
	FailSleep       time.Duration // pause after Fail before resuming, default 2s
	EmptyRetrySleep time.Duration // pause after Next returns ErrEmpty, default 2s
}

// DefaultConfig returns the worker loop's standard tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		HeartbeatEvery:  30 * time.Second,
		FailSleep:       2 * time.Second,
		EmptyRetrySleep: 2 * time.Second,
	}
}

// Worker runs a single IDLE -> LEASED -> ACK/FAIL loop against the shared
// work queue, identified by its own workerID for lease ownership.
type Worker struct {
	id      string
	cfg     Config
	queue   Queue
	fetcher Fetcher
	store   storage.Store
	log     *slog.Logger

	stopped atomic.Bool
}

// New creates a Worker with the given id (used as the lease owner tag).
func New(id string, cfg Config, q Queue, fetcher Fetcher, store storage.Store) *Worker {
	return &Worker{
		id:      id,
		cfg:     cfg,
		queue:   q,
		fetcher: fetcher,
		store:   store,
		log:     slog.Default().With("component", "worker", "worker_id", id),
	}
}

// Stop requests the loop exit after its current iteration.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// Run drives the worker loop until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting")
	for {
		if w.stopped.Load() {
			w.log.Info("worker stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		r, err := w.queue.Next(ctx, w.id)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || errors.Is(err, context.Canceled) {
				time.Sleep(w.cfg.EmptyRetrySleep)
				continue
			}
			w.log.Error("next failed", "error", err)
			time.Sleep(w.cfg.EmptyRetrySleep)
			continue
		}

		if err := w.processRange(ctx, r); err != nil {
			w.log.Error("range failed", "range", r.String(), "error", err)
			if failErr := w.queue.Fail(ctx, r); failErr != nil {
				w.log.Error("fail ack failed", "range", r.String(), "error", failErr)
			}
			metrics.RangesFailed.Inc()
			time.Sleep(w.cfg.FailSleep)
			continue
		}

		if err := w.queue.Complete(ctx, r); err != nil {
			w.log.Error("complete ack failed", "range", r.String(), "error", err)
			continue
		}
		w.log.Info("range completed", "range", r.String())
		metrics.RangesCompleted.Inc()
	}
}

// processRange runs the heartbeat, fan-out fetch, and persist steps for a
// single leased range.
func (w *Worker) processRange(ctx context.Context, r domain.Range) error {
	w.log.Info("range leased", "range", r.String(), "count", r.Len())

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, r)

	results, err := w.fetchRange(ctx, r)
	if err != nil {
		return fmt.Errorf("fetch range %s: %w", r, err)
	}

	var blocks []domain.Block
	var txs []domain.Transaction
	var logs []domain.Log
	for _, res := range results {
		blocks = append(blocks, res.Block)
		txs = append(txs, res.Txs...)
		logs = append(logs, res.Logs...)
	}

	if err := w.store.Save(ctx, blocks, txs, logs); err != nil {
		var storeErr *storage.StoreError
		if errors.As(err, &storeErr) && storeErr.Kind == storage.KindReorg {
			w.log.Error("reorg detected while saving range", "range", r.String(), "error", err)
		}
		return fmt.Errorf("save range %s: %w", r, err)
	}

	return nil
}

// heartbeat calls ExtendLease on a fixed cadence while ctx is alive.
func (w *Worker) heartbeat(ctx context.Context, r domain.Range) {
	ticker := time.NewTicker(w.cfg.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.ExtendLease(ctx, r); err != nil {
				w.log.Warn("extend lease failed", "range", r.String(), "error", err)
			} else {
				w.log.Debug("lease extended", "range", r.String())
			}
		}
	}
}

// fetchRange fans out one Fetch call per height in r, bounded by
// cfg.Concurrency, and propagates the first failure.
func (w *Worker) fetchRange(ctx context.Context, r domain.Range) ([]*fetcher.FetchResult, error) {
	limit := w.cfg.Concurrency
	if limit <= 0 {
		limit = 10
	}

	results := make([]*fetcher.FetchResult, r.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := uint64(0); i < r.Len(); i++ {
		i := i
		height := r.From + i
		g.Go(func() error {
			res, err := w.fetcher.Fetch(gctx, height)
			if err != nil {
				return fmt.Errorf("fetch height %d: %w", height, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
