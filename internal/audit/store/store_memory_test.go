package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piivault/internal/audit"
	"piivault/internal/audit/store"
	"piivault/pkg/domain"
	"piivault/pkg/platform/tx"
)

type purgedSet map[domain.ReferenceID]bool

func (p purgedSet) IsPurged(_ context.Context, ref domain.ReferenceID) (bool, error) {
	return p[ref], nil
}

func TestInMemoryDeletePurgedUserEventsBefore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	appendAt := func(s *store.InMemoryStore, ref domain.ReferenceID, typ audit.EventType, at time.Time) {
		require.NoError(t, s.Append(ctx, audit.Event{ID: domain.NewEventID(), UserReferenceID: ref, Type: typ, Timestamp: at}))
	}

	t.Run("removes only expired events of purged users", func(t *testing.T) {
		s := store.NewInMemory(store.WithPurgedLookup(purgedSet{"u1": true}))
		appendAt(s, "u1", audit.EventUserErased, base.Add(-48*time.Hour))
		appendAt(s, "u1", audit.EventUserPurged, base)
		appendAt(s, "u2", audit.EventUserRegistered, base.Add(-48*time.Hour))

		n, err := s.DeletePurgedUserEventsBefore(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		u1, err := s.ListByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, u1, 1)
		assert.Equal(t, audit.EventUserPurged, u1[0].Type)

		u2, err := s.ListByUser(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, u2, 1)
	})

	t.Run("without a lookup nothing counts as purged", func(t *testing.T) {
		s := store.NewInMemory()
		appendAt(s, "u1", audit.EventUserErased, base.Add(-48*time.Hour))

		n, err := s.DeletePurgedUserEventsBefore(ctx, base)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rolls back with the transaction", func(t *testing.T) {
		s := store.NewInMemory(store.WithPurgedLookup(purgedSet{"u1": true}))
		appendAt(s, "u1", audit.EventUserErased, base.Add(-48*time.Hour))

		err := tx.NewInMemory().RunInTx(ctx, "sweep", func(ctx context.Context) error {
			if _, err := s.DeletePurgedUserEventsBefore(ctx, base); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)

		u1, err := s.ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, u1, 1)
	})
}
