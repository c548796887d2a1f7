package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
)

type stubExpirer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (e *stubExpirer) ExpireHolds(context.Context) (int, error) {
	e.calls.Add(1)
	return e.n, e.err
}

func newCache(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRunOnceExpiresAndReleasesLock(t *testing.T) {
	mr, cache := newCache(t)
	expirer := &stubExpirer{n: 3}
	s, err := NewSweeper(expirer, cache, logging.Discard(), "@every 1m")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	before := testutil.ToFloat64(metrics.HoldSweepRunsTotal.WithLabelValues("ok"))
	n, err := s.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 expired, got %d (%v)", n, err)
	}
	if mr.Exists(lockKey) {
		t.Fatal("expected sweep lock to be released")
	}
	if got := testutil.ToFloat64(metrics.HoldSweepRunsTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("expected ok counter to grow, got %v", got)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	mr, cache := newCache(t)
	if err := mr.Set(lockKey, "other-instance"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	expirer := &stubExpirer{n: 1}
	s, err := NewSweeper(expirer, cache, logging.Discard(), "@every 1m")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected skipped sweep, got %d (%v)", n, err)
	}
	if expirer.calls.Load() != 0 {
		t.Fatal("expirer must not run while another instance holds the lock")
	}
	if v, _ := mr.Get(lockKey); v != "other-instance" {
		t.Fatalf("foreign lock must be left alone, got %q", v)
	}
}

func TestRunOnceReportsErrors(t *testing.T) {
	_, cache := newCache(t)
	boom := errors.New("db down")
	s, err := NewSweeper(&stubExpirer{err: boom}, cache, logging.Discard(), "@every 1m")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestRunOnceWithoutCache(t *testing.T) {
	expirer := &stubExpirer{n: 2}
	s, err := NewSweeper(expirer, nil, logging.Discard(), "*/5 * * * *")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	if n, err := s.RunOnce(context.Background()); err != nil || n != 2 {
		t.Fatalf("expected 2 expired, got %d (%v)", n, err)
	}
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	if _, err := NewSweeper(&stubExpirer{}, nil, logging.Discard(), "every so often"); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
}

func TestStartStop(t *testing.T) {
	expirer := &stubExpirer{}
	s, err := NewSweeper(expirer, nil, logging.Discard(), "@every 1s")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for expirer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if expirer.calls.Load() == 0 {
		t.Fatal("expected scheduled sweep to run")
	}
}
