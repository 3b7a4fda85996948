//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"piivault/internal/consent/models"
	"piivault/internal/consent/store"
	"piivault/pkg/platform/tx"
	"piivault/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	LedgerContractSuite
	pg *containers.PostgresContainer
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	s := &PostgresLedgerSuite{pg: pg}
	s.store = store.NewPostgres(pg.DB)
	s.txm = tx.NewPostgres(pg.DB)
	s.reset = func() {
		if err := pg.TruncateTables(context.Background(), "consent_records"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	suite.Run(t, s)
}

func (s *PostgresLedgerSuite) TestLedgerRowsAreImmutable() {
	rec := s.grant("user-1", models.Key("marketing_emails"), "v1", 0)

	_, err := s.pg.Exec(context.Background(),
		`UPDATE consent_records SET granted = FALSE WHERE id = $1`, rec.ID.String())
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")
}

func (s *PostgresLedgerSuite) TestLockUserRequiresTransaction() {
	err := s.store.(*store.PostgresStore).LockUser(context.Background(), "user-1")
	s.Require().Error(err)
}
