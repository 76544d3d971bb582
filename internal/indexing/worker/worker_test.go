package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evmwatch/indexer/internal/core/domain"
	"github.com/evmwatch/indexer/internal/coordination/queue"
	"github.com/evmwatch/indexer/internal/indexing/fetcher"
)

type fakeQueue struct {
	mu         sync.Mutex
	ranges     []domain.Range
	completed  []domain.Range
	failed     []domain.Range
	heartbeats int
}

func (q *fakeQueue) Next(ctx context.Context, workerID string) (domain.Range, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ranges) == 0 {
		return domain.Range{}, queue.ErrEmpty
	}
	r := q.ranges[0]
	q.ranges = q.ranges[1:]
	return r, nil
}

func (q *fakeQueue) ExtendLease(ctx context.Context, r domain.Range) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats++
	return nil
}

func (q *fakeQueue) Complete(ctx context.Context, r domain.Range) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, r)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, r domain.Range) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, r)
	return nil
}

type fakeFetcher struct {
	err func(height uint64) error
}

func (f *fakeFetcher) Fetch(ctx context.Context, height uint64) (*fetcher.FetchResult, error) {
	if f.err != nil {
		if err := f.err(height); err != nil {
			return nil, err
		}
	}
	return &fetcher.FetchResult{
		Block: domain.Block{Number: height, Hash: "0xh"},
	}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	saved  int
	saveFn func(blocks []domain.Block) error
}

func (s *fakeStore) Save(ctx context.Context, blocks []domain.Block, txs []domain.Transaction, logs []domain.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveFn != nil {
		if err := s.saveFn(blocks); err != nil {
			return err
		}
	}
	s.saved += len(blocks)
	return nil
}

func (s *fakeStore) LastPersistedHeight(ctx context.Context) (uint64, error) { return 0, nil }
func (s *fakeStore) Health(ctx context.Context) error                       { return nil }

func TestWorker_ProcessRange_Success(t *testing.T) {
	q := &fakeQueue{ranges: []domain.Range{{From: 1, To: 3}}}
	f := &fakeFetcher{}
	store := &fakeStore{}

	cfg := DefaultConfig()
	cfg.EmptyRetrySleep = time.Millisecond
	w := New("worker-1", cfg, q, f, store)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Stop()
	}()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(q.completed) != 1 {
		t.Fatalf("expected 1 completed range, got %d", len(q.completed))
	}
	if store.saved != 3 {
		t.Errorf("expected 3 blocks saved, got %d", store.saved)
	}
}

func TestWorker_ProcessRange_FetchFailureFailsRange(t *testing.T) {
	q := &fakeQueue{ranges: []domain.Range{{From: 1, To: 2}}}
	f := &fakeFetcher{err: func(height uint64) error {
		if height == 2 {
			return errors.New("rpc exhausted")
		}
		return nil
	}}
	store := &fakeStore{}

	cfg := DefaultConfig()
	cfg.EmptyRetrySleep = time.Millisecond
	cfg.FailSleep = time.Millisecond
	w := New("worker-1", cfg, q, f, store)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Stop()
	}()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(q.failed) != 1 {
		t.Fatalf("expected 1 failed range, got %d", len(q.failed))
	}
	if len(q.completed) != 0 {
		t.Errorf("expected 0 completed ranges, got %d", len(q.completed))
	}
}

func TestWorker_ProcessRange_StoreFailureFailsRange(t *testing.T) {
	q := &fakeQueue{ranges: []domain.Range{{From: 1, To: 1}}}
	f := &fakeFetcher{}
	store := &fakeStore{saveFn: func(blocks []domain.Block) error {
		return errors.New("db unavailable")
	}}

	cfg := DefaultConfig()
	cfg.EmptyRetrySleep = time.Millisecond
	cfg.FailSleep = time.Millisecond
	w := New("worker-1", cfg, q, f, store)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Stop()
	}()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(q.failed) != 1 {
		t.Fatalf("expected 1 failed range, got %d", len(q.failed))
	}
}
