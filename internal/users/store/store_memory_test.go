package store_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"piivault/internal/users/store"
	"piivault/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	StoreContractSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	s := new(InMemoryStoreSuite)
	s.txm = tx.NewInMemory()
	s.reset = func() { s.store = store.NewInMemory() }
	suite.Run(t, s)
}
