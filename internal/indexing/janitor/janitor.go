// Package janitor runs the control-plane routine that recovers ranges
// whose lease expired without acknowledgement, returning them to the
// work queue for another worker to pick up.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/evmwatch/indexer/internal/indexing/metrics"
)

// Queue is the subset of queue.Queue the janitor needs.
type Queue interface {
	RecoverZombies(ctx context.Context) (int, error)
}

// Janitor polls the processing list for expired leases on a fixed
// cadence. Running more than one Janitor is tolerated, but RecoverZombies
// checks lease existence before, not inside, its atomic pipeline: two
// sweeps that see the same expired lease can both re-queue the range,
// leaving a duplicate entry in the work list.
type Janitor struct {
	queue    Queue
	interval time.Duration
	log      *slog.Logger
}

// New creates a Janitor that sweeps every interval.
func New(queue Queue, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Janitor{
		queue:    queue,
		interval: interval,
		log:      slog.Default().With("component", "janitor"),
	}
}

// Run sweeps on a fixed cadence until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	j.log.Info("janitor starting", "interval", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopped")
			return nil
		case <-ticker.C:
			recovered, err := j.queue.RecoverZombies(ctx)
			if err != nil {
				j.log.Error("recover zombies failed", "error", err)
				continue
			}
			if recovered > 0 {
				j.log.Info("recovered zombie ranges", "count", recovered)
				metrics.ZombiesRecovered.Add(float64(recovered))
			}
		}
	}
}
