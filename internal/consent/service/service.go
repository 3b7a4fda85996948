// Package service implements the consent ledger: an append-only history of
// grant and withdrawal decisions per user and consent key.
package service

import (
	"context"
	"errors"
	"log/slog"

	"piivault/internal/audit"
	"piivault/internal/consent/models"
	"piivault/internal/platform/metrics"
	"piivault/internal/platform/privacy"
	usermodels "piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
	"piivault/pkg/platform/validation"
	"piivault/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store persists ledger entries.
// Error Contract:
// - LatestByKey returns sentinel.ErrNotFound when no entry exists
// - LockUser must run inside a transaction
type Store interface {
	Append(ctx context.Context, rec *models.Record) error
	ListByUser(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error)
	LatestByKey(ctx context.Context, ref domain.ReferenceID, key models.Key) (*models.Record, error)
	LockUser(ctx context.Context, ref domain.ReferenceID) error
	DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error)
}

// Auditor records consent decisions on the audit trail.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// UserLookup reads the lifecycle state of the consenting user.
type UserLookup interface {
	FindByReferenceID(ctx context.Context, ref domain.ReferenceID) (*usermodels.UserRecord, error)
}

// maxIPLength fits the longest textual IPv6 form.
const maxIPLength = 45

type Service struct {
	store   Store
	auditor Auditor
	users   UserLookup
	tx      tx.Manager
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, auditor Auditor, users UserLookup, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		users:   users,
		tx:      txm,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grant appends a grant of key at policy version for an active user.
func (s *Service) Grant(ctx context.Context, ref domain.ReferenceID, key, version string, prov models.Provenance) (*models.Record, error) {
	k, err := models.ParseKey(key)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateVersion(version); err != nil {
		return nil, err
	}
	prov = clampProvenance(prov)

	var rec *models.Record
	err = s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, ref); err != nil {
			return err
		}
		if err := s.requireUser(ctx, ref, true); err != nil {
			return err
		}
		grant, err := models.NewGrant(ref, k, version, prov, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Append(ctx, grant); err != nil {
			return err
		}
		rec = grant
		return s.auditor.Record(ctx, auditEvent(audit.EventConsentGranted, grant, prov))
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to grant consent")
	}

	s.metrics.IncConsentEvent("grant")
	s.logger.InfoContext(ctx, "consent granted",
		"reference_id", ref.String(),
		"consent_key", k.String(),
		"consent_version", version,
	)
	return rec, nil
}

// Withdraw appends a withdrawal. It succeeds even when nothing was granted,
// so a user can always opt out.
func (s *Service) Withdraw(ctx context.Context, ref domain.ReferenceID, key string, prov models.Provenance) (*models.Record, error) {
	k, err := models.ParseKey(key)
	if err != nil {
		return nil, err
	}
	prov = clampProvenance(prov)

	var rec *models.Record
	err = s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, ref); err != nil {
			return err
		}
		if err := s.requireUser(ctx, ref, false); err != nil {
			return err
		}
		var version string
		latest, err := s.store.LatestByKey(ctx, ref, k)
		switch {
		case err == nil:
			version = latest.Version
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		withdrawal, err := models.NewWithdrawal(ref, k, version, prov, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Append(ctx, withdrawal); err != nil {
			return err
		}
		rec = withdrawal
		return s.auditor.Record(ctx, auditEvent(audit.EventConsentWithdrawn, withdrawal, prov))
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to withdraw consent")
	}

	s.metrics.IncConsentEvent("withdraw")
	s.logger.InfoContext(ctx, "consent withdrawn",
		"reference_id", ref.String(),
		"consent_key", k.String(),
	)
	return rec, nil
}

// CurrentState resolves the latest entry for key. No entry is StateUnknown.
func (s *Service) CurrentState(ctx context.Context, ref domain.ReferenceID, key string) (models.State, error) {
	k, err := models.ParseKey(key)
	if err != nil {
		return models.StateUnknown, err
	}
	latest, err := s.store.LatestByKey(ctx, ref, k)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.StateUnknown, nil
		}
		return models.StateUnknown, s.translate(ctx, ref, err, "failed to read consent state")
	}
	return latest.State(), nil
}

// AllConsents returns the full ledger of a user in append order.
func (s *Service) AllConsents(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error) {
	history, err := s.store.ListByUser(ctx, ref)
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to list consents")
	}
	return history, nil
}

// ActiveConsents returns the latest entry per key where that entry is a grant.
func (s *Service) ActiveConsents(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error) {
	history, err := s.AllConsents(ctx, ref)
	if err != nil {
		return nil, err
	}
	active := []*models.Record{}
	for _, rec := range models.Latest(history) {
		if rec.Granted {
			active = append(active, rec)
		}
	}
	return active, nil
}

// Statuses summarizes the current state of every key the user ever touched.
func (s *Service) Statuses(ctx context.Context, ref domain.ReferenceID) ([]models.Status, error) {
	history, err := s.AllConsents(ctx, ref)
	if err != nil {
		return nil, err
	}
	latest := models.Latest(history)
	out := make([]models.Status, 0, len(latest))
	for _, rec := range latest {
		at := rec.RecordedAt
		out = append(out, models.Status{Key: rec.Key, State: rec.State(), Version: rec.Version, UpdatedAt: &at})
	}
	return out, nil
}

// DeleteByUser removes the user's ledger, provenance included. It joins the
// transaction in ctx; erasure and purge call it next to the record overwrite.
// It takes the ledger lock first, so a grant that read the user as active
// either commits before the delete runs or sees the erased state afterwards.
func (s *Service) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	if err := s.store.LockUser(ctx, ref); err != nil {
		return 0, s.translate(ctx, ref, err, "failed to delete consents")
	}
	n, err := s.store.DeleteByUser(ctx, ref)
	if err != nil {
		return 0, s.translate(ctx, ref, err, "failed to delete consents")
	}
	return n, nil
}

// requireUser rejects consent changes for users that are being or have been
// erased. A grant also needs an active account; a withdrawal does not.
// Callers hold the ledger lock, so the state read here cannot be overtaken by
// an erasure's DeleteByUser.
func (s *Service) requireUser(ctx context.Context, ref domain.ReferenceID, forGrant bool) error {
	if s.users == nil {
		return nil
	}
	rec, err := s.users.FindByReferenceID(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			if forGrant {
				return dErrors.UserNotFound("user not found")
			}
			return nil
		}
		return err
	}
	if rec.State.Terminal() || rec.State == usermodels.StateDeletionRequested {
		return dErrors.Conflict("user is being erased")
	}
	if forGrant && rec.State != usermodels.StateActive {
		return dErrors.Conflict("consent cannot be granted for a closed account")
	}
	return nil
}

func (s *Service) translate(ctx context.Context, ref domain.ReferenceID, err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	s.logger.ErrorContext(ctx, msg, "reference_id", ref.String(), "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func clampProvenance(p models.Provenance) models.Provenance {
	return models.Provenance{
		IPAddress: validation.Truncate(p.IPAddress, maxIPLength),
		UserAgent: validation.Truncate(p.UserAgent, validation.MaxUserAgentLength),
	}
}

// auditEvent carries the key and version with anonymized provenance. The raw
// IP and User-Agent stay in the ledger only.
func auditEvent(eventType audit.EventType, rec *models.Record, prov models.Provenance) audit.Event {
	detail := map[string]string{
		"consent_key": rec.Key.String(),
		"ip_prefix":   privacy.AnonymizeIP(prov.IPAddress),
		"device":      privacy.DescribeAgent(prov.UserAgent).String(),
	}
	if rec.Version != "" {
		detail["consent_version"] = rec.Version
	}
	return audit.Event{
		UserReferenceID: rec.UserReferenceID,
		Type:            eventType,
		Timestamp:       rec.RecordedAt,
		Detail:          detail,
	}
}
