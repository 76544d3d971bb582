package janitor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeQueue struct {
	recovered int
	err       error
	calls     int
}

func (q *fakeQueue) RecoverZombies(ctx context.Context) (int, error) {
	q.calls++
	if q.err != nil {
		return 0, q.err
	}
	return q.recovered, nil
}

func TestJanitor_Run_RecoversOnTick(t *testing.T) {
	q := &fakeQueue{recovered: 2}
	j := New(q, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.calls == 0 {
		t.Error("expected RecoverZombies to be called at least once")
	}
}

func TestJanitor_Run_ContinuesAfterError(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	j := New(q, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.calls < 2 {
		t.Errorf("expected multiple ticks despite errors, got %d calls", q.calls)
	}
}
