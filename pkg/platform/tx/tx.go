package tx

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "piivault/pkg/domain-errors"
	platformsync "piivault/pkg/platform/sync"
)

// Metrics holds the transaction collectors. Build it once per registry and
// share it between managers; a nil *Metrics records nothing.
type Metrics struct {
	ShardLockWait prometheus.Histogram
	Rollbacks     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ShardLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piivault_tx_shard_lock_wait_seconds",
			Help:    "Time spent waiting to acquire an in-memory transaction shard lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_tx_rollbacks_total",
			Help: "Transactions rolled back, labeled by backend",
		}, []string{"backend"}),
	}
}

func (m *Metrics) observeLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ShardLockWait.Observe(d.Seconds())
}

func (m *Metrics) incRollback(backend string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(backend).Inc()
}

// DefaultTimeout bounds a transaction when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Manager runs fn inside a transactional boundary shared by every store that
// reads the transaction from ctx. lockKey serializes in-memory runs per user;
// the postgres manager relies on row locks taken by the stores instead.
type Manager interface {
	RunInTx(ctx context.Context, lockKey string, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	timeout time.Duration
	metrics *Metrics
}

// WithTimeout overrides DefaultTimeout when greater than zero.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics records lock waits and rollbacks on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func prepare(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// PostgresManager runs transactions against a *sql.DB.
type PostgresManager struct {
	db   *sql.DB
	opts options
}

func NewPostgres(db *sql.DB, opts ...Option) *PostgresManager {
	return &PostgresManager{db: db, opts: buildOptions(opts)}
}

func (m *PostgresManager) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel, err := prepare(ctx, m.opts.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		m.opts.metrics.incRollback("postgres")
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// InMemoryManager serializes runs per lock key and rolls back by replaying
// compensations registered by the in-memory stores through OnRollback.
type InMemoryManager struct {
	mu   *platformsync.ShardedMutex
	opts options
}

func NewInMemory(opts ...Option) *InMemoryManager {
	return &InMemoryManager{mu: platformsync.NewShardedMutex(), opts: buildOptions(opts)}
}

type undoKey struct{}

type undoLog struct {
	steps []func()
}

func (m *InMemoryManager) RunInTx(ctx context.Context, lockKey string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	ctx, cancel, err := prepare(ctx, m.opts.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	lockStart := time.Now()
	m.mu.Lock(lockKey)
	m.opts.metrics.observeLockWait(time.Since(lockStart))
	defer m.mu.Unlock(lockKey)

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		m.opts.metrics.incRollback("memory")
		return err
	}
	return nil
}

// OnRollback registers a compensation for the in-memory transaction in ctx.
// Outside a transaction it does nothing: the write is already final.
func OnRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.steps = append(log.steps, undo)
	}
}

// Active reports whether ctx carries a transaction from either manager.
func Active(ctx context.Context) bool {
	if _, ok := From(ctx); ok {
		return true
	}
	_, ok := ctx.Value(undoKey{}).(*undoLog)
	return ok
}
