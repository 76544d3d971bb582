package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeScripter implements redis.Scripter without a real Redis connection.
// EvalSha always reports NOSCRIPT so Script.Run falls back to Eval, which
// is the only call this fake actually needs to answer.
type fakeScripter struct {
	evalVal int64
	evalErr error
	calls   int
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.calls++
	cmd := redis.NewCmd(ctx)
	if f.evalErr != nil {
		cmd.SetErr(f.evalErr)
	} else {
		cmd.SetVal(f.evalVal)
	}
	return cmd
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

// noScriptErr implements redis.Error so that redis.Script.Run's
// HasErrorPrefix check recognizes it and falls back to Eval, the same way a
// real Redis NOSCRIPT reply would be surfaced by the client.
type noScriptErr string

func (e noScriptErr) Error() string { return string(e) }
func (e noScriptErr) RedisError()   {}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(noScriptErr("NOSCRIPT No matching script. Please use EVAL."))
	return cmd
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{false})
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("deadbeef")
	return cmd
}

func TestLimiter_TryAcquire_Admitted(t *testing.T) {
	fake := &fakeScripter{evalVal: 1}
	l := New(fake, "ratelimit:global", 50, time.Second)

	ok, err := l.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Error("expected admission, got rejection")
	}
	if fake.calls != 1 {
		t.Errorf("expected 1 eval call, got %d", fake.calls)
	}
}

func TestLimiter_TryAcquire_Rejected(t *testing.T) {
	fake := &fakeScripter{evalVal: 0}
	l := New(fake, "ratelimit:global", 50, time.Second)

	ok, err := l.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Error("expected rejection, got admission")
	}
}

func TestLimiter_Acquire_RetriesUntilAdmitted(t *testing.T) {
	fake := &fakeScripter{evalVal: 0}
	l := New(fake, "ratelimit:global", 50, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	fake.evalVal = 1

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after admission became available")
	}
}

func TestLimiter_Acquire_ContextCancelled(t *testing.T) {
	fake := &fakeScripter{evalVal: 0}
	l := New(fake, "ratelimit:global", 50, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}
