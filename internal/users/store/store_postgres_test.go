//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"piivault/internal/users/store"
	"piivault/pkg/platform/tx"
	"piivault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	StoreContractSuite
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	s := new(PostgresStoreSuite)
	s.store = store.NewPostgres(pg.DB)
	s.txm = tx.NewPostgres(pg.DB)
	s.reset = func() {
		if err := pg.TruncateTables(context.Background(), "user_records"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	suite.Run(t, s)
}
