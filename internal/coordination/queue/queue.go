// Package queue implements the work-distribution queue with per-range
// leases described by the coordination store: two Redis lists hand ranges
// from "pending" to "in-flight", backed by TTL'd lease keys and two
// monotonic progress watermarks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evmwatch/indexer/internal/core/domain"
)

const (
	workKey       = "queue:work"
	processingKey = "queue:processing"
	lastQueuedKey = "queue:lastQueued"
	lastProcKey   = "queue:lastProcessed"
	deadLetterKey = "queue:deadLetter"

	lockPrefix = "lock:range:"
)

func lockKey(r domain.Range) string {
	return lockPrefix + r.String()
}

// ErrEmpty is returned by Next when ctx is cancelled while waiting on an
// empty queue.
var ErrEmpty = errors.New("queue: no range available")

// advanceWatermarkScript advances a watermark key to newVal only if newVal
// is greater than the current value, making Complete's watermark bump a
// monotonic compare-and-set.
var advanceWatermarkScript = redis.NewScript(`
local key = KEYS[1]
local newVal = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', key) or '0')
if newVal > current then
	redis.call('SET', key, newVal)
	return newVal
end
return current
`)

// Cmdable is the subset of redis.Cmdable the queue needs for its
// non-blocking commands, narrowed so tests can supply a fake without
// standing up a real Redis server.
type Cmdable interface {
	redis.Scripter

	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	ZIncrBy(ctx context.Context, key string, increment float64, member string) *redis.FloatCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// BlockingCmdable is the subset needed for Next's blocking pop, kept
// separate from Cmdable because it is served by a dedicated single
// connection rather than the pooled client.
type BlockingCmdable interface {
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
}

// Queue coordinates range hand-off between the Seeder, workers, and Janitor.
type Queue struct {
	rdb       Cmdable         // pooled, for non-blocking commands
	blocking  BlockingCmdable // dedicated single connection, for BLMove
	leaseTTL  time.Duration
	minBlock  uint64
	batchSize uint64

	deadLetterThreshold int
}

// New creates a Queue. rdb serves ordinary commands; blocking is a
// single-connection client reserved for Next's BLMOVE so it never queues
// behind other callers sharing a pool.
func New(rdb Cmdable, blocking BlockingCmdable, batchSize uint64, leaseTTL time.Duration, minBlock uint64, deadLetterThreshold int) *Queue {
	return &Queue{
		rdb:                 rdb,
		blocking:            blocking,
		leaseTTL:            leaseTTL,
		minBlock:            minBlock,
		batchSize:           batchSize,
		deadLetterThreshold: deadLetterThreshold,
	}
}

// Seed advances the queue's pending work up to target, appending newly
// computed ranges to queue:work. It is idempotent across restarts because
// last_queued only ever advances. Safe to call concurrently only from a
// single Seeder routine.
func (q *Queue) Seed(ctx context.Context, target uint64) error {
	lastQueued, err := q.rdb.Get(ctx, lastQueuedKey).Uint64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get last queued: %w", err)
	}

	start := q.minBlock
	if err != redis.Nil {
		start = lastQueued + 1
	}

	if start > target {
		return nil
	}

	ranges := domain.BuildRanges(start, target, q.batchSize)
	if len(ranges) == 0 {
		return nil
	}

	members := make([]any, len(ranges))
	for i, r := range ranges {
		members[i] = r.String()
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, workKey, members...)
		pipe.Set(ctx, lastQueuedKey, target, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed ranges: %w", err)
	}

	return nil
}

// Next blocks until a range is available, moves it from queue:work to
// queue:processing, and acquires its lease under workerID. It returns
// ErrEmpty if ctx is cancelled before a range arrives.
func (q *Queue) Next(ctx context.Context, workerID string) (domain.Range, error) {
	result, err := q.blocking.BLMove(ctx, workKey, processingKey, "LEFT", "RIGHT", 0).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Range{}, ErrEmpty
		}
		return domain.Range{}, fmt.Errorf("blmove: %w", err)
	}

	r, err := domain.ParseRange(result)
	if err != nil {
		return domain.Range{}, fmt.Errorf("next: %w", err)
	}

	if err := q.rdb.SetNX(ctx, lockKey(r), workerID, q.leaseTTL).Err(); err != nil {
		return domain.Range{}, fmt.Errorf("acquire lease for %s: %w", r, err)
	}

	return r, nil
}

// ExtendLease refreshes a range's lease TTL. Called on a fixed cadence by
// the worker's heartbeat goroutine while the range is being processed.
func (q *Queue) ExtendLease(ctx context.Context, r domain.Range) error {
	return q.rdb.Expire(ctx, lockKey(r), q.leaseTTL).Err()
}

// Complete removes a finished range from queue:processing, releases its
// lease, and advances last_processed if this range's upper bound exceeds
// the current watermark.
func (q *Queue) Complete(ctx context.Context, r domain.Range) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, r.String())
		pipe.Del(ctx, lockKey(r))
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete %s: %w", r, err)
	}

	if err := advanceWatermarkScript.Run(ctx, q.rdb, []string{lastProcKey}, r.To).Err(); err != nil {
		return fmt.Errorf("advance last processed for %s: %w", r, err)
	}

	q.clearDeadLetter(ctx, r)
	return nil
}

// Fail releases a range's lease and re-queues it at the tail of
// queue:work, so a poison range cannot head-of-line block others. Every
// failure also increments the range's score in the observability-only
// dead-letter set (Complete clears it); DeadLetterRanges reports the range
// once that score reaches deadLetterThreshold. It is never removed from the
// work queue by this alone.
func (q *Queue) Fail(ctx context.Context, r domain.Range) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, r.String())
		pipe.Del(ctx, lockKey(r))
		pipe.RPush(ctx, workKey, r.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail %s: %w", r, err)
	}

	if _, err := q.rdb.ZIncrBy(ctx, deadLetterKey, 1, r.String()).Result(); err != nil {
		return fmt.Errorf("record failure for %s: %w", r, err)
	}

	return nil
}

func (q *Queue) clearDeadLetter(ctx context.Context, r domain.Range) {
	q.rdb.ZRem(ctx, deadLetterKey, r.String())
}

// RecoverZombies scans queue:processing for ranges whose lease has expired
// (lock key no longer exists) and returns them to queue:work. It is the
// only path by which a worker crash without acknowledgement gets recovered.
func (q *Queue) RecoverZombies(ctx context.Context) (int, error) {
	inFlight, err := q.rdb.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list processing: %w", err)
	}

	recovered := 0
	for _, member := range inFlight {
		r, err := domain.ParseRange(member)
		if err != nil {
			continue
		}

		exists, err := q.rdb.Exists(ctx, lockKey(r)).Result()
		if err != nil {
			return recovered, fmt.Errorf("check lease for %s: %w", r, err)
		}
		if exists > 0 {
			continue
		}

		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, processingKey, 1, member)
			pipe.RPush(ctx, workKey, member)
			return nil
		})
		if err != nil {
			return recovered, fmt.Errorf("recover %s: %w", r, err)
		}
		recovered++
	}

	return recovered, nil
}

// Stats is a snapshot of queue depth and progress, used by the status CLI
// and the detailed health endpoint.
type Stats struct {
	PendingCount    int64
	ProcessingCount int64
	LastQueued      uint64
	LastProcessed   uint64
	DeadLetterCount int64
}

// GetStats returns current queue depth and watermarks.
func (q *Queue) GetStats(ctx context.Context) (Stats, error) {
	pending, err := q.rdb.LLen(ctx, workKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("llen work: %w", err)
	}
	processing, err := q.rdb.LLen(ctx, processingKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("llen processing: %w", err)
	}
	lastQueued, err := q.rdb.Get(ctx, lastQueuedKey).Uint64()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("get last queued: %w", err)
	}
	lastProcessed, err := q.rdb.Get(ctx, lastProcKey).Uint64()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("get last processed: %w", err)
	}
	deadLetter, err := q.rdb.ZCard(ctx, deadLetterKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("zcard dead letter: %w", err)
	}

	return Stats{
		PendingCount:    pending,
		ProcessingCount: processing,
		LastQueued:      lastQueued,
		LastProcessed:   lastProcessed,
		DeadLetterCount: deadLetter,
	}, nil
}

// DeadLetterRanges returns ranges whose consecutive failure count has
// crossed deadLetterThreshold, for operator visibility on /health/detailed.
func (q *Queue) DeadLetterRanges(ctx context.Context) ([]string, error) {
	entries, err := q.rdb.ZRangeByScore(ctx, deadLetterKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", q.deadLetterThreshold),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore dead letter: %w", err)
	}
	return entries, nil
}
