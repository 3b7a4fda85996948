package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"piivault/internal/pii"
	"piivault/internal/users/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
)

// PostgresStore persists user records in PostgreSQL. It joins the transaction
// carried in ctx (see tx.WithTx) so writes compose with the consent ledger and
// audit trail.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const selectColumns = `
	reference_id,
	first_name_enc, last_name_enc, email_enc, phone_enc, date_of_birth_enc,
	email_hmac, phone_hmac,
	active, state, deleted_at, deletion_reason,
	deletion_requested_at, erased_at, purged_at,
	version, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, rec *models.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is required")
	}
	now := nowFrom(ctx)
	query := `
		INSERT INTO user_records (
			reference_id,
			first_name_enc, last_name_enc, email_enc, phone_enc, date_of_birth_enc,
			email_hmac, phone_hmac,
			active, state, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, 1, $10, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ReferenceID.String(),
		nullable(rec.EncryptedFields[pii.FieldFirstName]),
		nullable(rec.EncryptedFields[pii.FieldLastName]),
		nullable(rec.EncryptedFields[pii.FieldEmail]),
		nullable(rec.EncryptedFields[pii.FieldPhone]),
		nullable(rec.EncryptedFields[pii.FieldDateOfBirth]),
		nullable(rec.HMACIndex[pii.FieldEmail]),
		nullable(rec.HMACIndex[pii.FieldPhone]),
		string(models.StateActive),
		now,
	)
	if err != nil {
		return translateWriteError("insert user", err)
	}
	rec.Active = true
	rec.State = models.StateActive
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *PostgresStore) FindByReferenceID(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	query := `SELECT` + selectColumns + ` FROM user_records WHERE reference_id = $1`
	return s.findOne(ctx, "find user", query, ref.String())
}

// FindForUpdate locks the row until the surrounding transaction ends. Outside
// a transaction the lock is released immediately, so callers run it in one.
func (s *PostgresStore) FindForUpdate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	query := `SELECT` + selectColumns + ` FROM user_records WHERE reference_id = $1 FOR UPDATE`
	return s.findOne(ctx, "find user for update", query, ref.String())
}

func (s *PostgresStore) FindByHMAC(ctx context.Context, field pii.Field, token string) (*models.UserRecord, error) {
	column, err := hmacColumn(field)
	if err != nil {
		return nil, err
	}
	query := `SELECT` + selectColumns + ` FROM user_records WHERE active AND ` + column + ` = $1`
	return s.findOne(ctx, "find user by hmac", query, token)
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is required")
	}
	now := nowFrom(ctx)
	query := `
		UPDATE user_records SET
			first_name_enc = $3, last_name_enc = $4, email_enc = $5, phone_enc = $6, date_of_birth_enc = $7,
			email_hmac = $8, phone_hmac = $9,
			version = version + 1, updated_at = $10
		WHERE reference_id = $1 AND version = $2 AND active AND state = 'ACTIVE'
		RETURNING version
	`
	var version int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		rec.ReferenceID.String(),
		rec.Version,
		nullable(rec.EncryptedFields[pii.FieldFirstName]),
		nullable(rec.EncryptedFields[pii.FieldLastName]),
		nullable(rec.EncryptedFields[pii.FieldEmail]),
		nullable(rec.EncryptedFields[pii.FieldPhone]),
		nullable(rec.EncryptedFields[pii.FieldDateOfBirth]),
		nullable(rec.HMACIndex[pii.FieldEmail]),
		nullable(rec.HMACIndex[pii.FieldPhone]),
		now,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return s.explainMiss(ctx, rec.ReferenceID, rec.Version)
	}
	if err != nil {
		return translateWriteError("update user", err)
	}
	rec.Version = version
	rec.UpdatedAt = now
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			active = FALSE, state = 'SOFT_DELETED', deleted_at = $2, deletion_reason = $3,
			version = version + 1, updated_at = $2
		WHERE reference_id = $1 AND state = 'ACTIVE'
		RETURNING` + selectColumns
	return s.transition(ctx, "soft delete user", ref, sentinel.ErrInvalidState, query, ref.String(), nowFrom(ctx), reason)
}

// Reactivate relies on the partial unique indexes on the HMAC columns: a
// token taken by another active record fails with ErrDuplicate.
func (s *PostgresStore) Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			active = TRUE, state = 'ACTIVE', deleted_at = NULL, deletion_reason = NULL,
			version = version + 1, updated_at = $2
		WHERE reference_id = $1 AND state = 'SOFT_DELETED'
		RETURNING` + selectColumns
	return s.transition(ctx, "reactivate user", ref, sentinel.ErrInvalidState, query, ref.String(), nowFrom(ctx))
}

func (s *PostgresStore) HardErase(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			first_name_enc = $3, last_name_enc = $3, email_enc = $3, phone_enc = $3, date_of_birth_enc = $3,
			email_hmac = NULL, phone_hmac = NULL,
			active = FALSE, state = 'ERASED', erased_at = $2, deletion_requested_at = NULL,
			deleted_at = COALESCE(deleted_at, $2),
			deletion_reason = COALESCE(NULLIF($4, ''), deletion_reason),
			version = version + 1, updated_at = $2
		WHERE reference_id = $1 AND state NOT IN ('ERASED', 'PURGED')
		RETURNING` + selectColumns
	rec, err := s.transition(ctx, "hard erase user", ref, sentinel.ErrInvalidState, query, ref.String(), nowFrom(ctx), pii.Tombstone, reason)
	if errors.Is(err, sentinel.ErrInvalidState) {
		current, findErr := s.FindByReferenceID(ctx, ref)
		if findErr == nil && current.State == models.StateErased {
			return current, nil
		}
	}
	return rec, err
}

func (s *PostgresStore) MarkDeletionRequested(ctx context.Context, ref domain.ReferenceID, staleBefore time.Time) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			state = 'DELETION_REQUESTED', deletion_requested_at = $2,
			version = version + 1, updated_at = $2
		WHERE reference_id = $1
		  AND (state IN ('ACTIVE', 'SOFT_DELETED')
		       OR (state = 'DELETION_REQUESTED' AND deletion_requested_at < $3))
		RETURNING` + selectColumns
	return s.transition(ctx, "mark deletion requested", ref, sentinel.ErrConflict, query, ref.String(), nowFrom(ctx), staleBefore)
}

func (s *PostgresStore) RevertDeletionRequest(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			state = CASE WHEN deleted_at IS NULL THEN 'ACTIVE' ELSE 'SOFT_DELETED' END,
			deletion_requested_at = NULL,
			version = version + 1, updated_at = $2
		WHERE reference_id = $1 AND state = 'DELETION_REQUESTED'
		RETURNING` + selectColumns
	return s.transition(ctx, "revert deletion request", ref, sentinel.ErrInvalidState, query, ref.String(), nowFrom(ctx))
}

func (s *PostgresStore) MarkPurged(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	query := `
		UPDATE user_records SET
			first_name_enc = NULL, last_name_enc = NULL, email_enc = NULL, phone_enc = NULL, date_of_birth_enc = NULL,
			email_hmac = NULL, phone_hmac = NULL,
			state = 'PURGED', purged_at = $2,
			version = version + 1, updated_at = $2
		WHERE reference_id = $1 AND state = 'ERASED'
		RETURNING` + selectColumns
	return s.transition(ctx, "mark purged", ref, sentinel.ErrInvalidState, query, ref.String(), nowFrom(ctx))
}

func (s *PostgresStore) ListActive(ctx context.Context, page models.Page) ([]*models.UserRecord, error) {
	page = page.Normalize()
	query := `SELECT` + selectColumns + `
		FROM user_records WHERE active
		ORDER BY created_at, reference_id
		LIMIT $1 OFFSET $2`
	return s.findMany(ctx, "list active users", query, page.Limit, page.Offset)
}

func (s *PostgresStore) ListAll(ctx context.Context, page models.Page) ([]*models.UserRecord, error) {
	page = page.Normalize()
	query := `SELECT` + selectColumns + `
		FROM user_records
		ORDER BY created_at, reference_id
		LIMIT $1 OFFSET $2`
	return s.findMany(ctx, "list users", query, page.Limit, page.Offset)
}

func (s *PostgresStore) ListPurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReferenceID, error) {
	if limit <= 0 {
		limit = models.MaxPageLimit
	}
	query := `
		SELECT reference_id FROM (
			SELECT reference_id,
			       CASE WHEN state = 'ERASED' THEN COALESCE(erased_at, deleted_at) ELSE deleted_at END AS anchor
			FROM user_records
			WHERE state IN ('SOFT_DELETED', 'ERASED')
		) c
		WHERE anchor < $1
		ORDER BY anchor, reference_id
		LIMIT $2
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list purge candidates: %w", err)
	}
	defer rows.Close()

	var refs []domain.ReferenceID
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan purge candidate: %w", err)
		}
		refs = append(refs, domain.ReferenceID(ref))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purge candidates: %w", err)
	}
	return refs, nil
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, args ...any) (*models.UserRecord, error) {
	rec, err := scanUser(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return nil, translateWriteError(op, err)
	}
	return rec, nil
}

func (s *PostgresStore) findMany(ctx context.Context, op, query string, args ...any) ([]*models.UserRecord, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := []*models.UserRecord{}
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return records, nil
}

// transition runs a guarded UPDATE ... RETURNING. No row means the record is
// missing or its state does not allow the transition; miss tells which.
func (s *PostgresStore) transition(ctx context.Context, op string, ref domain.ReferenceID, miss error, query string, args ...any) (*models.UserRecord, error) {
	rec, err := scanUser(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, translateWriteError(op, err)
	}
	current, findErr := s.FindByReferenceID(ctx, ref)
	if findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("%s: user %s is %s: %w", op, ref, current.State, miss)
}

func (s *PostgresStore) explainMiss(ctx context.Context, ref domain.ReferenceID, version int64) error {
	current, err := s.FindByReferenceID(ctx, ref)
	if err != nil {
		return err
	}
	if current.Version != version {
		return fmt.Errorf("user %s: %w", ref, sentinel.ErrStaleVersion)
	}
	return fmt.Errorf("user %s is %s: %w", ref, current.State, sentinel.ErrInvalidState)
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (*models.UserRecord, error) {
	var (
		ref                                              string
		firstName, lastName, email, phone, dob           sql.NullString
		emailHMAC, phoneHMAC, reason                     sql.NullString
		state                                            string
		deletedAt, deletionRequestedAt, erasedAt, purged sql.NullTime
		rec                                              models.UserRecord
	)
	if err := row.Scan(
		&ref,
		&firstName, &lastName, &email, &phone, &dob,
		&emailHMAC, &phoneHMAC,
		&rec.Active, &state, &deletedAt, &reason,
		&deletionRequestedAt, &erasedAt, &purged,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.ReferenceID = domain.ReferenceID(ref)
	rec.State = models.State(state)
	rec.DeletionReason = reason.String
	rec.EncryptedFields = collect(map[pii.Field]sql.NullString{
		pii.FieldFirstName:   firstName,
		pii.FieldLastName:    lastName,
		pii.FieldEmail:       email,
		pii.FieldPhone:       phone,
		pii.FieldDateOfBirth: dob,
	})
	rec.HMACIndex = collect(map[pii.Field]sql.NullString{
		pii.FieldEmail: emailHMAC,
		pii.FieldPhone: phoneHMAC,
	})
	rec.DeletedAt = timePtr(deletedAt)
	rec.DeletionRequestedAt = timePtr(deletionRequestedAt)
	rec.ErasedAt = timePtr(erasedAt)
	rec.PurgedAt = timePtr(purged)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func collect(values map[pii.Field]sql.NullString) map[pii.Field]string {
	out := make(map[pii.Field]string, len(values))
	for f, v := range values {
		if v.Valid && v.String != "" {
			out[f] = v.String
		}
	}
	return out
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func hmacColumn(field pii.Field) (string, error) {
	switch field {
	case pii.FieldEmail:
		return "email_hmac", nil
	case pii.FieldPhone:
		return "phone_hmac", nil
	}
	return "", fmt.Errorf("field %s is not indexed: %w", field, sentinel.ErrInvalidInput)
}

func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "user_records_pkey" {
				return fmt.Errorf("%s: reference id already registered: %w", op, sentinel.ErrConflict)
			}
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, sentinel.ErrDuplicate)
		case "55P03":
			return fmt.Errorf("%s: %w", op, sentinel.ErrLockConflict)
		case "40001":
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
