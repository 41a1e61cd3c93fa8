package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"library-api/internal/config"
	"library-api/internal/domain/loan"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	defaultSchedule = "0 0 * * *"
	defaultTimeout  = 5 * time.Minute
	defaultLockTTL  = 23 * time.Hour
	runLockPrefix   = "library:overdue-scan:"
	releaseTimeout  = 5 * time.Second
)

var (
	ErrScanInProgress = errors.New("overdue scan already in progress")
	ErrScanAlreadyRan = errors.New("overdue scan already ran for this date")
)

type Runner interface {
	Run(ctx context.Context) error
}

// RunLock grants a run key to a single replica for ttl. A released key can be acquired again.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisRunLock struct {
	client lockClient
}

func NewRedisRunLock(client *redis.Client) *RedisRunLock {
	return &RedisRunLock{client: client}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, runLockPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	return ok, nil
}

func (l *RedisRunLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, runLockPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", key, err)
	}
	return nil
}

type Scheduler struct {
	cron    *cron.Cron
	job     Runner
	spec    string
	timeout time.Duration
	lock    RunLock
	lockTTL time.Duration
	now     loan.Clock
	mu      sync.Mutex
	logger  *slog.Logger
}

type SchedulerOption func(*Scheduler)

func WithRunLock(lock RunLock) SchedulerOption {
	return func(s *Scheduler) {
		s.lock = lock
	}
}

func WithSchedulerClock(now loan.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler registers job on the configured cron spec. An invalid spec is an error.
func NewScheduler(job Runner, cfg config.BatchConfig, logger *slog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		job:     job,
		spec:    cfg.OverdueScanSchedule,
		timeout: cfg.OverdueScanTimeout,
		lockTTL: cfg.LockTTL,
		now:     time.Now,
		logger:  logger.With("component", "Scheduler"),
	}
	if s.spec == "" {
		s.spec = defaultSchedule
		s.logger.Warn("Overdue scan schedule not configured, using default", "schedule", s.spec)
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	for _, opt := range opts {
		opt(s)
	}

	id, err := s.cron.AddFunc(s.spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid overdue scan schedule %q: %w", s.spec, err)
	}
	s.logger.Info("Scheduled overdue scan job", "schedule", s.spec, "job_id", id)
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started.")
}

// Stop stops new triggers and waits for a running scan, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping cron scheduler...")
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Cron scheduler stopped gracefully.")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Cron scheduler shutdown timed out.")
		return ctx.Err()
	}
}

// RunNow runs the scan immediately under the same overlap rules as a cron trigger.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrScanInProgress
	}
	defer s.mu.Unlock()

	var key string
	if s.lock != nil {
		key = s.now().Format(time.DateOnly)
		acquired, err := s.lock.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return err
		}
		if !acquired {
			return ErrScanAlreadyRan
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.job.Run(runCtx)
	if err != nil && s.lock != nil {
		s.releaseLock(ctx, key)
	}
	return err
}

// releaseLock frees the day's key after a failed run so a later trigger or replica can retry.
func (s *Scheduler) releaseLock(ctx context.Context, key string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.lock.Release(releaseCtx, key); err != nil {
		s.logger.Error("Failed to release overdue scan run lock", "key", key, slog.Any("error", err))
	}
}

func (s *Scheduler) trigger() {
	s.logger.Info("Cron triggered: running overdue scan.")
	err := s.RunNow(context.Background())
	switch {
	case errors.Is(err, ErrScanInProgress), errors.Is(err, ErrScanAlreadyRan):
		s.logger.Info("Skipping overdue scan trigger", "reason", err.Error())
	case err != nil:
		s.logger.Error("Overdue scan finished with error", slog.Any("error", err))
	default:
		s.logger.Info("Overdue scan finished successfully.")
	}
}
