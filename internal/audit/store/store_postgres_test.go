//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"piivault/internal/audit"
	"piivault/internal/audit/outbox"
	"piivault/internal/audit/store"
	"piivault/pkg/domain"
	"piivault/pkg/platform/tx"
	"piivault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	outbox   *outbox.PostgresStore
	store    *store.PostgresStore
	base     time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.outbox = outbox.NewPostgres(s.postgres.DB)
	s.store = store.NewPostgres(s.postgres.DB, s.outbox)
	s.base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) event(ref domain.ReferenceID, t audit.EventType, offset time.Duration) audit.Event {
	return audit.Event{
		ID:              domain.NewEventID(),
		UserReferenceID: ref,
		Type:            t,
		Timestamp:       s.base.Add(offset),
		Detail:          map[string]string{"reason": "test"},
		RequestID:       "req-1",
	}
}

func (s *PostgresStoreSuite) TestAppendWritesOutboxEntry() {
	ctx := context.Background()
	e := s.event("u1", audit.EventUserRegistered, 0)
	s.Require().NoError(s.store.Append(ctx, e))

	events, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(e.ID, events[0].ID)
	s.Equal("test", events[0].Detail["reason"])
	s.True(e.Timestamp.Equal(events[0].Timestamp))

	pending, err := s.outbox.CountPending(ctx)
	s.Require().NoError(err)
	s.EqualValues(1, pending)
}

func (s *PostgresStoreSuite) TestAppendRollsBackWithCaller() {
	ctx := context.Background()
	err := tx.NewPostgres(s.postgres.DB).RunInTx(ctx, "u1", func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserErased, 0)))
		return errors.New("abort")
	})
	s.Require().Error(err)

	events, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Empty(events)
	pending, err := s.outbox.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *PostgresStoreSuite) TestRowsAreImmutable() {
	ctx := context.Background()
	e := s.event("u1", audit.EventUserRegistered, 0)
	s.Require().NoError(s.store.Append(ctx, e))

	_, err := s.postgres.Exec(ctx, `UPDATE audit_events SET event_type = 'tampered'`)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestStatisticsAndFailedLogins() {
	ctx := context.Background()
	for _, e := range []audit.Event{
		s.event("u1", audit.EventLoginFailed, time.Minute),
		s.event("u1", audit.EventLoginFailed, 2*time.Minute),
		s.event("u2", audit.EventLoginFailed, 3*time.Minute),
		s.event("u2", audit.EventLoginSucceeded, 4*time.Minute),
		s.event("u3", audit.EventLoginFailed, -time.Hour),
		s.event("", audit.EventUserPurged, time.Minute),
	} {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	stats, err := s.store.StatisticsSince(ctx, s.base)
	s.Require().NoError(err)
	s.Equal(5, stats.Total)
	s.Equal(3, stats.ByType[audit.EventLoginFailed])
	s.Equal(2, stats.DistinctUsers)

	failed, err := s.store.FailedLoginsSince(ctx, s.base)
	s.Require().NoError(err)
	s.Require().Len(failed, 2)
	s.Equal(domain.ReferenceID("u1"), failed[0].UserReferenceID)
	s.Equal(2, failed[0].Failures)
	s.True(s.base.Add(2 * time.Minute).Equal(failed[0].LastFailureAt))
}

func (s *PostgresStoreSuite) TestDeleteByUserRemovesOutboxRows() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserRegistered, 0)))
	s.Require().NoError(s.store.Append(ctx, s.event("u2", audit.EventUserRegistered, 0)))

	n, err := s.store.DeleteByUser(ctx, "u1")
	s.Require().NoError(err)
	s.EqualValues(1, n)

	pending, err := s.outbox.CountPending(ctx)
	s.Require().NoError(err)
	s.EqualValues(1, pending)
}

func (s *PostgresStoreSuite) TestDeleteUserEventsBefore() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserRegistered, -48*time.Hour)))
	s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserErased, 0)))

	n, err := s.store.DeleteUserEventsBefore(ctx, "u1", s.base.Add(-time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *PostgresStoreSuite) TestDeletePurgedUserEventsBefore() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO user_records (reference_id, active, state, deleted_at, purged_at)
		VALUES ('u1', FALSE, 'PURGED', $1, $1), ('u2', TRUE, 'ACTIVE', NULL, NULL)`, s.base)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserErased, -48*time.Hour)))
	s.Require().NoError(s.store.Append(ctx, s.event("u1", audit.EventUserPurged, 0)))
	s.Require().NoError(s.store.Append(ctx, s.event("u2", audit.EventUserRegistered, -48*time.Hour)))

	n, err := s.store.DeletePurgedUserEventsBefore(ctx, s.base.Add(-time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)

	purged, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(purged, 1)
	s.Equal(audit.EventUserPurged, purged[0].Type)

	active, err := s.store.ListByUser(ctx, "u2")
	s.Require().NoError(err)
	s.Len(active, 1, "active users are outside the sweep")
}
