package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"piivault/internal/consent/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
)

// PostgresStore persists the consent ledger in PostgreSQL. Rows are
// insert-only; a trigger rejects UPDATE. Append order is the BIGSERIAL
// sequence column, not the timestamp.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent ledger.
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
	SELECT id, sequence, user_reference_id, consent_key, granted, consent_version,
	       granted_at, withdrawn_at, ip_address, user_agent, recorded_at
	FROM consent_records`

func (s *PostgresStore) Append(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("consent record is required")
	}
	query := `
		INSERT INTO consent_records (id, user_reference_id, consent_key, granted, consent_version,
			granted_at, withdrawn_at, ip_address, user_agent, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(rec.ID),
		rec.UserReferenceID.String(),
		rec.Key.String(),
		rec.Granted,
		rec.Version,
		rec.GrantedAt,
		rec.WithdrawnAt,
		rec.IPAddress,
		rec.UserAgent,
		rec.RecordedAt,
	).Scan(&rec.Sequence)
	if err != nil {
		return fmt.Errorf("append consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		WHERE user_reference_id = $1
		ORDER BY sequence
	`, ref.String())
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) LatestByKey(ctx context.Context, ref domain.ReferenceID, key models.Key) (*models.Record, error) {
	record, err := scanRecord(s.execer(ctx).QueryRowContext(ctx, selectColumns+`
		WHERE user_reference_id = $1 AND consent_key = $2
		ORDER BY sequence DESC
		LIMIT 1
	`, ref.String(), key.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest consent: %w", err)
	}
	return record, nil
}

// LockUser serializes ledger writes for one user until the surrounding
// transaction ends. Ledger rows cannot be locked with FOR UPDATE because the
// first grant has no row yet, so it takes an advisory lock on the reference.
func (s *PostgresStore) LockUser(ctx context.Context, ref domain.ReferenceID) error {
	if _, ok := tx.From(ctx); !ok {
		return fmt.Errorf("lock consent ledger: transaction required")
	}
	if _, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('consent:' || $1))`, ref.String()); err != nil {
		return fmt.Errorf("lock consent ledger: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM consent_records WHERE user_reference_id = $1`, ref.String())
	if err != nil {
		return 0, fmt.Errorf("delete consents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete consents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec     models.Record
		id      uuid.UUID
		ref     string
		key     string
		granted sql.NullTime
		revoked sql.NullTime
	)
	if err := row.Scan(&id, &rec.Sequence, &ref, &key, &rec.Granted, &rec.Version,
		&granted, &revoked, &rec.IPAddress, &rec.UserAgent, &rec.RecordedAt); err != nil {
		return nil, err
	}
	rec.ID = domain.ConsentRecordID(id)
	rec.UserReferenceID = domain.ReferenceID(ref)
	rec.Key = models.Key(key)
	if granted.Valid {
		t := granted.Time.UTC()
		rec.GrantedAt = &t
	}
	if revoked.Valid {
		t := revoked.Time.UTC()
		rec.WithdrawnAt = &t
	}
	rec.RecordedAt = rec.RecordedAt.UTC()
	return &rec, nil
}
