// Package worker runs the retention purge on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"piivault/internal/gdpr/models"
	"piivault/internal/platform/redis"
)

// DefaultLockKey guards the purge across replicas.
const DefaultLockKey = "piivault:purge-lock"

// Purger runs one retention purge.
type Purger interface {
	PurgeExpiredUsers(ctx context.Context, retentionDays int) (models.PurgeResult, error)
}

// Locker acquires a cluster-wide lease for one run. It returns
// redis.ErrLockHeld when another replica holds it.
type Locker func(ctx context.Context) (release func(context.Context) error, err error)

// RedisLocker leases key in Redis for at most ttl per run.
func RedisLocker(client *goredis.Client, key string, ttl time.Duration) Locker {
	return func(ctx context.Context) (func(context.Context) error, error) {
		lock, err := redis.TryLock(ctx, client, key, ttl)
		if err != nil {
			return nil, err
		}
		return lock.Release, nil
	}
}

// PurgeWorker periodically purges users past retention.
type PurgeWorker struct {
	purger        Purger
	retentionDays int
	interval      time.Duration
	locker        Locker
	logger        *slog.Logger
}

// Option configures PurgeWorker.
type Option func(*PurgeWorker)

// WithInterval overrides the run interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *PurgeWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithLocker makes each run skip when another replica holds the lease.
func WithLocker(l Locker) Option {
	return func(w *PurgeWorker) {
		w.locker = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *PurgeWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New constructs a PurgeWorker. retentionDays is passed to every run.
func New(purger Purger, retentionDays int, opts ...Option) (*PurgeWorker, error) {
	if purger == nil {
		return nil, fmt.Errorf("purger is required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive")
	}
	w := &PurgeWorker{
		purger:        purger,
		retentionDays: retentionDays,
		interval:      time.Hour,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start runs the purge periodically until ctx is cancelled.
func (w *PurgeWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "purge worker started",
		"interval", w.interval,
		"retention_days", w.retentionDays,
	)
	for {
		select {
		case <-ticker.C:
			if _, _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "retention purge failed", "error", err)
			}
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "purge worker stopped")
			return ctx.Err()
		}
	}
}

// RunOnce performs a single purge. ran is false when another replica held
// the lease and nothing was done.
func (w *PurgeWorker) RunOnce(ctx context.Context) (result models.PurgeResult, ran bool, err error) {
	if w.locker != nil {
		release, err := w.locker(ctx)
		if errors.Is(err, redis.ErrLockHeld) {
			w.logger.DebugContext(ctx, "purge skipped, lease held elsewhere")
			return models.PurgeResult{}, false, nil
		}
		if err != nil {
			return models.PurgeResult{}, false, fmt.Errorf("acquire purge lease: %w", err)
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				w.logger.WarnContext(ctx, "failed to release purge lease", "error", rerr)
			}
		}()
	}

	result, err = w.purger.PurgeExpiredUsers(ctx, w.retentionDays)
	if err != nil {
		return result, true, fmt.Errorf("purge expired users: %w", err)
	}
	return result, true, nil
}
