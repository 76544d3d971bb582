package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evmwatch/indexer/internal/coordination/queue"
	"github.com/evmwatch/indexer/internal/infra/rpc"
)

type fakeRPCMonitor struct {
	stats rpc.Stats
}

func (f *fakeRPCMonitor) GetStats() rpc.Stats {
	return f.stats
}

type fakeQueue struct {
	stats    queue.Stats
	statsErr error
	calls    int
}

func (q *fakeQueue) GetStats(ctx context.Context) (queue.Stats, error) {
	q.calls++
	if q.statsErr != nil {
		return queue.Stats{}, q.statsErr
	}
	return q.stats, nil
}

func (q *fakeQueue) DeadLetterRanges(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestMonitor_Healthy(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{LastQueued: 100, LastProcessed: 100}}
	monitor := NewMonitor(q, nil, time.Millisecond)

	report := monitor.CheckHealth(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
}

func TestMonitor_DegradedOnLag(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{LastQueued: 150, LastProcessed: 100}}
	monitor := NewMonitor(q, nil, time.Millisecond)

	report := monitor.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.BlockLag != 50 {
		t.Errorf("expected lag 50, got %d", report.BlockLag)
	}
}

func TestMonitor_CriticalOnHighLagOrQueueError(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{LastQueued: 500, LastProcessed: 100}}
	monitor := NewMonitor(q, nil, time.Millisecond)
	if report := monitor.CheckHealth(context.Background()); report.Status != StatusCritical {
		t.Errorf("expected critical on high lag, got %s", report.Status)
	}

	q2 := &fakeQueue{statsErr: errors.New("redis down")}
	monitor2 := NewMonitor(q2, nil, time.Millisecond)
	if report := monitor2.CheckHealth(context.Background()); report.Status != StatusCritical {
		t.Errorf("expected critical when queue is unreachable, got %s", report.Status)
	}
}

func TestMonitor_CachesWithinInterval(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{LastQueued: 50, LastProcessed: 50}}
	monitor := NewMonitor(q, nil, time.Hour)

	first := monitor.CheckHealth(context.Background())
	q.stats.LastQueued = 999 // should not be observed until the cache expires
	second := monitor.CheckHealth(context.Background())

	if second.LatestBlock != first.LatestBlock {
		t.Errorf("expected cached report to be reused, got %+v vs %+v", first, second)
	}
	if q.calls != 1 {
		t.Errorf("expected GetStats called once, got %d", q.calls)
	}
}

func TestMonitor_FoldsInRPCThrottleStatus(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{LastQueued: 100, LastProcessed: 100}}
	rpcMon := &fakeRPCMonitor{stats: rpc.Stats{Status: rpc.StatusThrottled, ThrottleCount: 3}}
	monitor := NewMonitor(q, rpcMon, time.Millisecond)

	report := monitor.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("expected degraded when RPC endpoint is throttled, got %s", report.Status)
	}
	if report.RPCStatus != "throttled" {
		t.Errorf("expected rpc_status throttled, got %s", report.RPCStatus)
	}
	if report.RPCThrottleCount != 3 {
		t.Errorf("expected rpc throttle count 3, got %d", report.RPCThrottleCount)
	}
}
