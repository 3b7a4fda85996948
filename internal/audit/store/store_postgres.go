package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"piivault/internal/audit"
	"piivault/internal/audit/outbox"
	"piivault/pkg/domain"
	"piivault/pkg/platform/tx"
)

// Outbox aggregate types.
const (
	aggregateUser   = "user"
	aggregateSystem = "system"
)

// PostgresStore writes audit events and their outbox entries in one
// transaction. It joins the transaction in ctx when there is one, so an audit
// write commits or rolls back with the business change it records.
type PostgresStore struct {
	db     *sql.DB
	txm    *tx.PostgresManager
	outbox outbox.Store
}

func NewPostgres(db *sql.DB, ob outbox.Store) *PostgresStore {
	return &PostgresStore{db: db, txm: tx.NewPostgres(db), outbox: ob}
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

func (s *PostgresStore) Append(ctx context.Context, event audit.Event) error {
	detail, err := json.Marshal(detailOrEmpty(event.Detail))
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	return s.txm.RunInTx(ctx, event.UserReferenceID.String(), func(ctx context.Context) error {
		query := `
			INSERT INTO audit_events (id, user_reference_id, event_type, occurred_at, detail, request_id, actor_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(event.ID),
			nullableRef(event.UserReferenceID),
			string(event.Type),
			event.Timestamp,
			detail,
			event.RequestID,
			event.ActorID,
		); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		if s.outbox == nil {
			return nil
		}
		aggregateType, aggregateID := aggregateSystem, ""
		if event.UserReferenceID != "" {
			aggregateType, aggregateID = aggregateUser, event.UserReferenceID.String()
		}
		return s.outbox.Append(ctx, outbox.NewEntry(aggregateType, aggregateID, string(event.Type), payload, event.Timestamp))
	})
}

func (s *PostgresStore) ListByUser(ctx context.Context, ref domain.ReferenceID) ([]audit.Event, error) {
	query := `
		SELECT id, user_reference_id, event_type, occurred_at, detail, request_id, actor_id
		FROM audit_events
		WHERE user_reference_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var (
			event   audit.Event
			id      uuid.UUID
			userRef sql.NullString
			typ     string
			detail  []byte
		)
		if err := rows.Scan(&id, &userRef, &typ, &event.Timestamp, &detail, &event.RequestID, &event.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = domain.EventID(id)
		event.UserReferenceID = domain.ReferenceID(userRef.String)
		event.Type = audit.EventType(typ)
		event.Timestamp = event.Timestamp.UTC()
		if err := json.Unmarshal(detail, &event.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		if len(event.Detail) == 0 {
			event.Detail = nil
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) StatisticsSince(ctx context.Context, since time.Time) (audit.Statistics, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM audit_events
		WHERE occurred_at >= $1
		GROUP BY event_type
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, since)
	if err != nil {
		return audit.Statistics{}, fmt.Errorf("query audit statistics: %w", err)
	}
	defer rows.Close()

	stats := audit.Statistics{Since: since, ByType: map[audit.EventType]int{}}
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return audit.Statistics{}, fmt.Errorf("scan audit statistics: %w", err)
		}
		stats.ByType[audit.EventType(typ)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return audit.Statistics{}, fmt.Errorf("iterate audit statistics: %w", err)
	}

	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_reference_id) FROM audit_events WHERE occurred_at >= $1 AND user_reference_id IS NOT NULL`, since,
	).Scan(&stats.DistinctUsers)
	if err != nil {
		return audit.Statistics{}, fmt.Errorf("count audit users: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) FailedLoginsSince(ctx context.Context, since time.Time) ([]audit.FailedLogins, error) {
	query := `
		SELECT user_reference_id, COUNT(*), MAX(occurred_at)
		FROM audit_events
		WHERE event_type = $1 AND occurred_at >= $2 AND user_reference_id IS NOT NULL
		GROUP BY user_reference_id
		ORDER BY COUNT(*) DESC, user_reference_id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(audit.EventLoginFailed), since)
	if err != nil {
		return nil, fmt.Errorf("query failed logins: %w", err)
	}
	defer rows.Close()

	out := []audit.FailedLogins{}
	for rows.Next() {
		var (
			fl  audit.FailedLogins
			ref string
		)
		if err := rows.Scan(&ref, &fl.Failures, &fl.LastFailureAt); err != nil {
			return nil, fmt.Errorf("scan failed logins: %w", err)
		}
		fl.UserReferenceID = domain.ReferenceID(ref)
		fl.LastFailureAt = fl.LastFailureAt.UTC()
		out = append(out, fl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed logins: %w", err)
	}
	return out, nil
}

// DeleteByUser removes every event of a user along with its outbox entries.
func (s *PostgresStore) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	var deleted int64
	err := s.txm.RunInTx(ctx, ref.String(), func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM audit_events WHERE user_reference_id = $1`, ref.String())
		if err != nil {
			return fmt.Errorf("delete audit events: %w", err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("delete audit events rows: %w", err)
		}
		if s.outbox == nil {
			return nil
		}
		_, err = s.outbox.DeleteByAggregate(ctx, aggregateUser, ref.String())
		return err
	})
	return deleted, err
}

func (s *PostgresStore) DeleteUserEventsBefore(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM audit_events WHERE user_reference_id = $1 AND occurred_at < $2`, ref.String(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit events before cutoff: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeletePurgedUserEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM audit_events e
		USING user_records u
		WHERE e.user_reference_id = u.reference_id
		  AND u.state = 'PURGED'
		  AND e.occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete purged user audit events: %w", err)
	}
	return res.RowsAffected()
}

func nullableRef(ref domain.ReferenceID) sql.NullString {
	return sql.NullString{String: ref.String(), Valid: ref != ""}
}

func detailOrEmpty(d map[string]string) map[string]string {
	if d == nil {
		return map[string]string{}
	}
	return d
}
