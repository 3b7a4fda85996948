// Package service implements the GDPR lifecycle manager: right to be
// forgotten, data export, and retention purge. It composes the user store,
// the consent ledger, and the audit trail under one transaction boundary.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"piivault/internal/audit"
	consentmodels "piivault/internal/consent/models"
	"piivault/internal/pii"
	"piivault/internal/platform/metrics"
	"piivault/internal/platform/tracer"
	usermodels "piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
	"piivault/pkg/platform/validation"
)

//go:generate mockgen -source=manager.go -destination=mocks/mocks.go -package=mocks

// UserStore is the slice of the user record store the lifecycle needs.
// Error Contract:
//   - lookups and transitions return sentinel.ErrNotFound for unknown users
//   - MarkDeletionRequested returns sentinel.ErrConflict while a fresh claim
//     exists or the record is already erased
type UserStore interface {
	FindByReferenceID(ctx context.Context, ref domain.ReferenceID) (*usermodels.UserRecord, error)
	FindForUpdate(ctx context.Context, ref domain.ReferenceID) (*usermodels.UserRecord, error)
	MarkDeletionRequested(ctx context.Context, ref domain.ReferenceID, staleBefore time.Time) (*usermodels.UserRecord, error)
	RevertDeletionRequest(ctx context.Context, ref domain.ReferenceID) (*usermodels.UserRecord, error)
	HardErase(ctx context.Context, ref domain.ReferenceID, reason string) (*usermodels.UserRecord, error)
	MarkPurged(ctx context.Context, ref domain.ReferenceID) (*usermodels.UserRecord, error)
	ListPurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReferenceID, error)
}

// Decoder decodes stored fields for a permission.
type Decoder interface {
	FromStorage(ctx context.Context, ref domain.ReferenceID, encrypted map[pii.Field]string, perm pii.Permission) pii.View
}

// ConsentLedger reads and removes a user's consent history.
type ConsentLedger interface {
	AllConsents(ctx context.Context, ref domain.ReferenceID) ([]*consentmodels.Record, error)
	DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error)
}

// AuditTrail records lifecycle events and removes a user's residue.
type AuditTrail interface {
	Record(ctx context.Context, event audit.Event) error
	ListByUser(ctx context.Context, ref domain.ReferenceID) ([]audit.Event, error)
	DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error)
	PurgeUserEventsBefore(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (int64, error)
	PurgeResidueBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sealer encrypts export bundles at rest in the cache.
type Sealer interface {
	Seal(plaintext, associatedData []byte) (string, error)
	Open(ciphertext string, associatedData []byte) ([]byte, error)
}

// ExportCache holds sealed bundles until they expire.
// Error Contract:
// - Get returns sentinel.ErrNotFound for unknown or expired exports
type ExportCache interface {
	Put(ctx context.Context, id domain.ExportID, sealed string, ttl time.Duration) error
	Get(ctx context.Context, id domain.ExportID) (string, error)
}

// Policy holds the retention settings of the manager.
type Policy struct {
	// MinRetentionDays is the smallest window PurgeExpiredUsers accepts.
	MinRetentionDays int
	// AuditRetention bounds how long a purged user's audit events are kept.
	// Zero keeps them indefinitely.
	AuditRetention time.Duration
	// ClaimTTL is how long a DELETION_REQUESTED claim blocks other requests.
	ClaimTTL time.Duration
	// ExportTTL is how long a sealed export stays downloadable.
	ExportTTL time.Duration
	// BatchSize is the number of purge candidates loaded per round.
	BatchSize int
	// Concurrency bounds the users purged in parallel.
	Concurrency int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinRetentionDays: 30,
		ClaimTTL:         15 * time.Minute,
		ExportTTL:        24 * time.Hour,
		BatchSize:        100,
		Concurrency:      4,
	}
}

type Manager struct {
	users    UserStore
	decoder  Decoder
	consents ConsentLedger
	trail    AuditTrail
	tx       tx.Manager
	sealer   Sealer
	cache    ExportCache
	policy   Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	purges   singleflight.Group
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithExportCache enables sealed export downloads.
func WithExportCache(sealer Sealer, cache ExportCache) Option {
	return func(m *Manager) {
		m.sealer = sealer
		m.cache = cache
	}
}

func New(users UserStore, decoder Decoder, consents ConsentLedger, trail AuditTrail, txm tx.Manager, opts ...Option) *Manager {
	m := &Manager{
		users:    users,
		decoder:  decoder,
		consents: consents,
		trail:    trail,
		tx:       txm,
		policy:   DefaultPolicy(),
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.BatchSize <= 0 {
		m.policy.BatchSize = DefaultPolicy().BatchSize
	}
	if m.policy.Concurrency <= 0 {
		m.policy.Concurrency = 1
	}
	return m
}

func (m *Manager) translate(ctx context.Context, ref domain.ReferenceID, err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.UserNotFound("user not found")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState),
		errors.Is(err, sentinel.ErrLockConflict), errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.Conflict(msg + ": concurrent lifecycle change, retry")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	m.logger.ErrorContext(ctx, msg, "reference_id", ref.String(), "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func normalizeReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if err := validation.CheckStringLength("reason", reason, validation.MaxReasonLength); err != nil {
		return "", err
	}
	return reason, nil
}
