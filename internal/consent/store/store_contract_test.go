package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"piivault/internal/consent/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
)

type ledgerStore interface {
	Append(ctx context.Context, rec *models.Record) error
	ListByUser(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error)
	LatestByKey(ctx context.Context, ref domain.ReferenceID, key models.Key) (*models.Record, error)
	LockUser(ctx context.Context, ref domain.ReferenceID) error
	DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error)
}

// LedgerContractSuite is shared by the memory and postgres backends.
type LedgerContractSuite struct {
	suite.Suite
	store ledgerStore
	txm   tx.Manager
	reset func()
	base  time.Time
}

func (s *LedgerContractSuite) SetupTest() {
	s.base = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	if s.reset != nil {
		s.reset()
	}
}

var prov = models.Provenance{IPAddress: "198.51.100.23", UserAgent: "Mozilla/5.0"}

func (s *LedgerContractSuite) grant(ref domain.ReferenceID, key models.Key, version string, offset time.Duration) *models.Record {
	rec, err := models.NewGrant(ref, key, version, prov, s.base.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(context.Background(), rec))
	return rec
}

func (s *LedgerContractSuite) withdraw(ref domain.ReferenceID, key models.Key, offset time.Duration) *models.Record {
	rec, err := models.NewWithdrawal(ref, key, "v1", prov, s.base.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(context.Background(), rec))
	return rec
}

func (s *LedgerContractSuite) TestAppendKeepsHistory() {
	ctx := context.Background()
	g := s.grant("user-1", "marketing_emails", "v1", 0)
	w := s.withdraw("user-1", "marketing_emails", time.Minute)

	history, err := s.store.ListByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(g.ID, history[0].ID)
	s.True(history[0].Granted)
	s.Equal("v1", history[0].Version)
	s.Equal(prov.IPAddress, history[0].IPAddress)
	s.Require().NotNil(history[0].GrantedAt)
	s.Nil(history[0].WithdrawnAt)
	s.Equal(w.ID, history[1].ID)
	s.False(history[1].Granted)
	s.Require().NotNil(history[1].WithdrawnAt)

	s.Positive(g.Sequence)
	s.Equal(g.Sequence, history[0].Sequence)
	s.Equal(w.Sequence, history[1].Sequence)
	s.Greater(history[1].Sequence, history[0].Sequence)
}

func (s *LedgerContractSuite) TestLatestByKeyFollowsAppendOrder() {
	ctx := context.Background()
	s.grant("user-1", "marketing_emails", "v1", 0)
	s.grant("user-1", "analytics", "v1", time.Second)
	// same timestamp as the grant: order must come from append order
	w := s.withdraw("user-1", "marketing_emails", 0)

	latest, err := s.store.LatestByKey(ctx, "user-1", "marketing_emails")
	s.Require().NoError(err)
	s.Equal(w.ID, latest.ID)

	latest, err = s.store.LatestByKey(ctx, "user-1", "analytics")
	s.Require().NoError(err)
	s.True(latest.Granted)
}

func (s *LedgerContractSuite) TestLatestByKeyMissing() {
	s.grant("user-1", "marketing_emails", "v1", 0)

	_, err := s.store.LatestByKey(context.Background(), "user-1", "analytics")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.LatestByKey(context.Background(), "user-2", "marketing_emails")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerContractSuite) TestListIsScopedToUser() {
	s.grant("user-1", "marketing_emails", "v1", 0)
	s.grant("user-2", "marketing_emails", "v1", 0)

	history, err := s.store.ListByUser(context.Background(), "user-2")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(domain.ReferenceID("user-2"), history[0].UserReferenceID)

	empty, err := s.store.ListByUser(context.Background(), "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *LedgerContractSuite) TestDeleteByUser() {
	ctx := context.Background()
	s.grant("user-1", "marketing_emails", "v1", 0)
	s.withdraw("user-1", "marketing_emails", time.Minute)
	s.grant("user-2", "marketing_emails", "v1", 0)

	n, err := s.store.DeleteByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	history, err := s.store.ListByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Empty(history)

	n, err = s.store.DeleteByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Zero(n)

	others, err := s.store.ListByUser(ctx, "user-2")
	s.Require().NoError(err)
	s.Len(others, 1)
}

func (s *LedgerContractSuite) TestRollbackDiscardsWrites() {
	ctx := context.Background()
	s.grant("user-1", "analytics", "v1", 0)
	boom := errors.New("boom")

	err := s.txm.RunInTx(ctx, "user-1", func(ctx context.Context) error {
		s.Require().NoError(s.store.LockUser(ctx, "user-1"))
		rec, err := models.NewGrant("user-1", "marketing_emails", "v1", prov, s.base)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(ctx, rec))
		_, err = s.store.DeleteByUser(ctx, "user-1")
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	history, err := s.store.ListByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(models.Key("analytics"), history[0].Key)
}
