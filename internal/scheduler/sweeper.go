package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
)

const (
	lockKey        = "scheduler:v1:hold-sweep"
	defaultLockTTL = 2 * time.Minute
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Expirer releases holds whose expiry has passed.
type Expirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// Sweeper runs hold expiry on a cron schedule. Overlapping runs are skipped
// inside one process, and a Redis lock keeps instances from sweeping together.
type Sweeper struct {
	expirer Expirer
	cache   *redis.Client
	logger  *slog.Logger
	cron    *cron.Cron
	lockTTL time.Duration
}

// NewSweeper validates schedule and registers the sweep job. cache may be nil
// for single-instance deployments.
func NewSweeper(expirer Expirer, cache *redis.Client, logger *slog.Logger, schedule string) (*Sweeper, error) {
	logger = logging.Component(logger, "hold_sweeper")
	s := &Sweeper{
		expirer: expirer,
		cache:   cache,
		logger:  logger,
		lockTTL: defaultLockTTL,
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(schedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid hold sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.logger.Info("hold sweeper started")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, up to ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep and returns how many holds expired. It
// returns zero without sweeping when another instance holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.cache != nil {
		token := uuid.NewString()
		acquired, err := s.cache.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		switch {
		case err != nil:
			// Row locks still keep concurrent sweeps correct.
			s.logger.Warn("sweep lock unavailable, sweeping without it", slog.Any("error", err))
		case !acquired:
			metrics.HoldSweepRunsTotal.WithLabelValues("skipped").Inc()
			s.logger.Debug("hold sweep already running elsewhere")
			return 0, nil
		default:
			defer s.unlock(token)
		}
	}

	start := time.Now()
	n, err := s.expirer.ExpireHolds(ctx)
	if err != nil {
		metrics.HoldSweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("hold sweep failed", slog.Any("error", err))
		return 0, err
	}
	metrics.HoldSweepRunsTotal.WithLabelValues("ok").Inc()
	if n > 0 {
		s.logger.Info("expired holds released",
			slog.Int("count", n),
			slog.Duration("duration", time.Since(start)))
	}
	return n, nil
}

func (s *Sweeper) unlock(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, s.cache, []string{lockKey}, token).Err(); err != nil {
		s.logger.Warn("release sweep lock", slog.Any("error", err))
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
