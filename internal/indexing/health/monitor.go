package health

import (
	"context"
	"sync"
	"time"

	"github.com/evmwatch/indexer/internal/coordination/queue"
	"github.com/evmwatch/indexer/internal/indexing/metrics"
	"github.com/evmwatch/indexer/internal/infra/rpc"
)

// Queue is the subset of queue.Queue the health monitor needs, narrowed so
// tests can supply a fake without standing up a real Redis server.
type Queue interface {
	GetStats(ctx context.Context) (queue.Stats, error)
	DeadLetterRanges(ctx context.Context) ([]string, error)
}

// RPCMonitor is the subset of rpc.Monitor needed to fold endpoint health
// into the aggregate report. Passing nil disables RPC status reporting.
type RPCMonitor interface {
	GetStats() rpc.Stats
}

// Monitor aggregates health status from the work queue's own stats and,
// when an RPCMonitor is supplied, from the RPC endpoint's throttle and
// latency tracking. It polls at most once per interval; concurrent callers
// within that window get the cached report instead of hammering Redis on
// every /health hit.
type Monitor struct {
	queue      Queue
	rpcMonitor RPCMonitor
	interval   time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor backed by q, refreshing at most once
// per interval. rpcMon may be nil if RPC endpoint status should not be
// folded into the report.
func NewMonitor(q Queue, rpcMon RPCMonitor, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{queue: q, rpcMonitor: rpcMon, interval: interval}
}

// CheckHealth returns the current health report, using a cached value if
// the last check happened within the monitor's interval.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.interval && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	stats, err := m.queue.GetStats(ctx)
	if err != nil {
		m.lastReport = Report{Status: StatusCritical}
		m.lastCheck = time.Now()
		return m.lastReport
	}

	var lag uint64
	if stats.LastQueued > stats.LastProcessed {
		lag = stats.LastQueued - stats.LastProcessed
	}

	report := Report{
		Status:          StatusHealthy,
		LatestBlock:     stats.LastQueued,
		LastProcessed:   stats.LastProcessed,
		BlockLag:        lag,
		PendingRanges:   stats.PendingCount,
		ProcessingCount: stats.ProcessingCount,
		DeadLetterCount: stats.DeadLetterCount,
	}

	switch {
	case lag > 100 || stats.DeadLetterCount > 10:
		report.Status = StatusCritical
	case lag > 10 || stats.DeadLetterCount > 0:
		report.Status = StatusDegraded
	}

	if report.Status != StatusHealthy {
		if keys, err := m.queue.DeadLetterRanges(ctx); err == nil {
			report.DeadLetterKeys = keys
		}
	}

	if m.rpcMonitor != nil {
		rpcStats := m.rpcMonitor.GetStats()
		report.RPCStatus = rpcStats.Status.String()
		report.RPCThrottleCount = rpcStats.ThrottleCount
		if rpcStats.Status != rpc.StatusHealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report

	metrics.IndexerLastProcessed.Set(float64(report.LastProcessed))
	metrics.QueueDepth.WithLabelValues("pending").Set(float64(report.PendingRanges))
	metrics.QueueDepth.WithLabelValues("processing").Set(float64(report.ProcessingCount))
	metrics.QueueDepth.WithLabelValues("dead_letter").Set(float64(report.DeadLetterCount))

	return report
}

// Run polls CheckHealth on a fixed cadence until ctx is cancelled, so the
// queue-depth and last-processed gauges stay fresh even when nothing hits
// the HTTP endpoints directly.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckHealth(ctx)
		}
	}
}
