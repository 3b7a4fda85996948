package store_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"piivault/internal/consent/store"
	"piivault/pkg/platform/tx"
)

type InMemoryLedgerSuite struct {
	LedgerContractSuite
}

func TestInMemoryLedgerSuite(t *testing.T) {
	s := new(InMemoryLedgerSuite)
	s.txm = tx.NewInMemory()
	s.reset = func() { s.store = store.NewInMemory() }
	suite.Run(t, s)
}
