// Package ratelimiter implements a global sliding-window-log rate limiter
// backed by a Redis sorted set, shared by every worker process.
package ratelimiter

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript evicts entries older than the window, counts what
// remains, and admits the caller iff under limit — all inside one Lua
// script so the check-then-add is atomic across concurrent callers.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local member = ARGV[3]

local now = redis.call('TIME')
local now_ms = (tonumber(now[1]) * 1000) + math.floor(tonumber(now[2]) / 1000)

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now_ms - window_ms))

local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now_ms, member)
	redis.call('PEXPIRE', key, window_ms)
	return 1
end

return 0
`)

// Scripter is the subset of redis.Cmdable the limiter needs, narrowed so
// tests can supply a fake without standing up a real Redis server.
type Scripter interface {
	redis.Scripter
}

// Limiter enforces a global calls-per-window budget via a Redis sorted set
// keyed by call timestamp. Admission is strict: unlike a fixed window, no
// burst of up to 2x limit is possible at a window boundary.
type Limiter struct {
	client Scripter
	key    string
	limit  int
	window time.Duration
}

// New creates a Limiter enforcing limit calls per window against key.
func New(client Scripter, key string, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, key: key, limit: limit, window: window}
}

// TryAcquire makes one admission attempt, returning whether the caller was
// let through. It does not block or retry.
func (l *Limiter) TryAcquire(ctx context.Context) (bool, error) {
	member := uuid.NewString()
	result, err := slidingWindowScript.Run(
		ctx, l.client,
		[]string{l.key},
		l.limit, l.window.Milliseconds(), member,
	).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Acquire blocks until admitted, sleeping a randomized 50-250ms between
// attempts to desynchronize competing callers. There is no retry cap: the
// limiter is a flow-control device, not a failure source.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		delay := 50*time.Millisecond + time.Duration(rand.IntN(200))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
