// Package service implements registration, lookup, profile updates, and
// soft-delete for encrypted user records.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"piivault/internal/audit"
	"piivault/internal/crypto"
	"piivault/internal/pii"
	"piivault/internal/platform/metrics"
	"piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
	limits "piivault/pkg/platform/validation"
	"piivault/pkg/validation"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store persists encrypted user records.
// Error Contract:
// - ErrNotFound when the record does not exist or is not visible to the lookup
// - ErrDuplicate when an HMAC token collides with another active record
// - ErrConflict when the reference ID is already registered
// - ErrInvalidState when the record's state forbids the change
// - ErrStaleVersion or ErrLockConflict when a concurrent writer won
type Store interface {
	Insert(ctx context.Context, rec *models.UserRecord) error
	FindByReferenceID(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	FindForUpdate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	FindByHMAC(ctx context.Context, field pii.Field, token string) (*models.UserRecord, error)
	Update(ctx context.Context, rec *models.UserRecord) error
	SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error)
	Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error)
	ListActive(ctx context.Context, page models.Page) ([]*models.UserRecord, error)
	ListAll(ctx context.Context, page models.Page) ([]*models.UserRecord, error)
}

// Auditor records audit events. *audit.Trail satisfies it.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	codec   *pii.Codec
	auditor Auditor
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

func New(store Store, codec *pii.Codec, auditor Auditor, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		store:   store,
		codec:   codec,
		auditor: auditor,
		tx:      txm,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register encrypts the profile and inserts a new active record. The insert
// and its audit event commit together.
func (s *Service) Register(ctx context.Context, ref domain.ReferenceID, profile pii.Profile) (*models.User, error) {
	if _, err := domain.ParseReferenceID(ref.String()); err != nil {
		return nil, err
	}
	profile = normalize(profile)
	if err := validation.Validate(profile); err != nil {
		return nil, err
	}
	values := profile.Values()
	if len(values) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "profile must contain at least one field")
	}

	sealed, err := s.codec.ToStorage(ref, profile)
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to encrypt profile")
	}
	rec := models.NewUserRecord(ref, sealed)

	err = s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		if err := s.store.Insert(ctx, rec); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{
			UserReferenceID: ref,
			Type:            audit.EventUserRegistered,
			Detail:          map[string]string{"fields": fieldList(values)},
		})
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to register user")
	}

	s.metrics.IncUsersRegistered()
	s.logger.InfoContext(ctx, "user registered", "reference_id", ref.String())
	return s.decode(ctx, rec, pii.PermissionOwner), nil
}

// Get returns the record decoded for perm. Non-owner reads of PII are
// audited as pii_accessed.
func (s *Service) Get(ctx context.Context, ref domain.ReferenceID, perm pii.Permission) (*models.User, error) {
	rec, err := s.store.FindByReferenceID(ctx, ref)
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to load user")
	}
	user := s.decode(ctx, rec, perm)
	s.recordAccess(ctx, ref, perm, "get")
	return user, nil
}

// LookupByEmail finds the active record holding email.
func (s *Service) LookupByEmail(ctx context.Context, email string, perm pii.Permission) (*models.User, error) {
	return s.lookup(ctx, pii.FieldEmail, email, perm)
}

// LookupByPhone finds the active record holding phone.
func (s *Service) LookupByPhone(ctx context.Context, phone string, perm pii.Permission) (*models.User, error) {
	return s.lookup(ctx, pii.FieldPhone, phone, perm)
}

func (s *Service) lookup(ctx context.Context, field pii.Field, value string, perm pii.Permission) (*models.User, error) {
	if strings.TrimSpace(value) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, field.String()+" is required")
	}
	token, err := s.codec.Token(field, value)
	if err != nil {
		return nil, s.translate(ctx, "", err, "failed to compute lookup token")
	}
	rec, err := s.store.FindByHMAC(ctx, field, token)
	if err != nil {
		return nil, s.translate(ctx, "", err, "failed to look up user")
	}
	user := s.decode(ctx, rec, perm)
	s.recordAccess(ctx, rec.ReferenceID, perm, "lookup_"+field.String())
	return user, nil
}

// UpdateProfile re-encrypts the fields present in changes and recomputes
// their HMAC tokens. Fields left empty keep their stored value.
func (s *Service) UpdateProfile(ctx context.Context, ref domain.ReferenceID, changes pii.Profile) (*models.User, error) {
	changes = normalize(changes)
	if err := validation.Validate(changes); err != nil {
		return nil, err
	}
	values := changes.Values()
	if len(values) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no fields to update")
	}

	sealed, err := s.codec.SealFields(ref, values)
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to encrypt profile")
	}

	var updated *models.UserRecord
	err = s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		rec, err := s.store.FindForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if rec.State != models.StateActive || !rec.Active {
			return sentinel.ErrInvalidState
		}
		if rec.EncryptedFields == nil {
			rec.EncryptedFields = make(map[pii.Field]string, len(sealed.EncryptedFields))
		}
		if rec.HMACIndex == nil {
			rec.HMACIndex = make(map[pii.Field]string, len(sealed.HMACIndex))
		}
		for f, ct := range sealed.EncryptedFields {
			rec.EncryptedFields[f] = ct
		}
		for f, token := range sealed.HMACIndex {
			rec.HMACIndex[f] = token
		}
		if err := s.store.Update(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return s.auditor.Record(ctx, audit.Event{
			UserReferenceID: ref,
			Type:            audit.EventProfileUpdated,
			Detail:          map[string]string{"fields": fieldList(values)},
		})
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to update profile")
	}
	return s.decode(ctx, updated, pii.PermissionOwner), nil
}

// SoftDelete closes the account. Ciphertext is kept so the user can be
// reactivated within the retention window.
func (s *Service) SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.User, error) {
	reason = strings.TrimSpace(reason)
	if err := limits.CheckStringLength("reason", reason, limits.MaxReasonLength); err != nil {
		return nil, err
	}
	var rec *models.UserRecord
	err := s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		var err error
		rec, err = s.store.SoftDelete(ctx, ref, reason)
		if err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{
			UserReferenceID: ref,
			Type:            audit.EventUserSoftDeleted,
			Detail:          reasonDetail(reason),
		})
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to soft-delete user")
	}
	s.metrics.IncSoftDeleted()
	return s.decode(ctx, rec, pii.PermissionAdmin), nil
}

// Reactivate reverses a soft delete. It fails for erased records and when a
// newer active record has taken the email or phone.
func (s *Service) Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.User, error) {
	var rec *models.UserRecord
	err := s.tx.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		var err error
		rec, err = s.store.Reactivate(ctx, ref)
		if err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.Event{UserReferenceID: ref, Type: audit.EventUserReactivated})
	})
	if err != nil {
		return nil, s.translate(ctx, ref, err, "failed to reactivate user")
	}
	s.metrics.IncReactivated()
	return s.decode(ctx, rec, pii.PermissionAdmin), nil
}

// ListActive pages over active records.
func (s *Service) ListActive(ctx context.Context, page models.Page, perm pii.Permission) ([]*models.User, error) {
	recs, err := s.store.ListActive(ctx, page.Normalize())
	if err != nil {
		return nil, s.translate(ctx, "", err, "failed to list users")
	}
	return s.decodeAll(ctx, recs, perm), nil
}

// ListAll pages over every record including soft-deleted and erased ones.
func (s *Service) ListAll(ctx context.Context, page models.Page, perm pii.Permission) ([]*models.User, error) {
	recs, err := s.store.ListAll(ctx, page.Normalize())
	if err != nil {
		return nil, s.translate(ctx, "", err, "failed to list users")
	}
	return s.decodeAll(ctx, recs, perm), nil
}

func (s *Service) decodeAll(ctx context.Context, recs []*models.UserRecord, perm pii.Permission) []*models.User {
	out := make([]*models.User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.decode(ctx, rec, perm))
	}
	return out
}

func (s *Service) decode(ctx context.Context, rec *models.UserRecord, perm pii.Permission) *models.User {
	return &models.User{
		ReferenceID: rec.ReferenceID,
		State:       rec.State,
		Active:      rec.Active,
		Fields:      s.codec.FromStorage(ctx, rec.ReferenceID, rec.EncryptedFields, perm),
		DeletedAt:   rec.DeletedAt,
		ErasedAt:    rec.ErasedAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

// recordAccess audits reads by staff. It never fails the read.
func (s *Service) recordAccess(ctx context.Context, ref domain.ReferenceID, perm pii.Permission, via string) {
	if perm == pii.PermissionOwner || perm == pii.PermissionNone {
		return
	}
	err := s.auditor.Record(ctx, audit.Event{
		UserReferenceID: ref,
		Type:            audit.EventPIIAccessed,
		Detail:          map[string]string{"permission": string(perm), "via": via},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to audit pii access", "reference_id", ref.String(), "error", err)
	}
}

// translate maps store sentinels and crypto failures to domain errors.
func (s *Service) translate(ctx context.Context, ref domain.ReferenceID, err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.UserNotFound("user not found")
	case errors.Is(err, sentinel.ErrDuplicate):
		s.metrics.IncDuplicateRejections()
		return dErrors.DuplicateUser("email or phone already registered")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Conflict("reference ID already registered or deletion in progress")
	case errors.Is(err, sentinel.ErrStaleVersion), errors.Is(err, sentinel.ErrLockConflict):
		return dErrors.Conflict("user was modified concurrently, retry")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Conflict("user state does not allow this operation")
	case errors.Is(err, sentinel.ErrInvalidInput):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, msg)
	case crypto.IsCryptoError(err):
		s.logger.ErrorContext(ctx, msg, "reference_id", ref.String(), "error", err)
		return dErrors.Wrap(err, dErrors.CodeCrypto, msg)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	s.logger.ErrorContext(ctx, msg, "reference_id", ref.String(), "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func normalize(p pii.Profile) pii.Profile {
	var out pii.Profile
	for _, f := range pii.AllFields {
		out.Set(f, pii.Normalize(f, p.Get(f)))
	}
	return out
}

// fieldList names the changed fields for audit detail. Values never leave
// the codec.
func fieldList(values map[pii.Field]string) string {
	names := make([]string, 0, len(values))
	for f := range values {
		names = append(names, f.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func reasonDetail(reason string) map[string]string {
	if reason == "" {
		return nil
	}
	return map[string]string{"reason": reason}
}
