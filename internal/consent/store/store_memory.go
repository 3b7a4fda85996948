package store

import (
	"context"
	"sync"

	"piivault/internal/consent/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
)

// Error Contract:
// - LatestByKey returns sentinel.ErrNotFound when the user has no entry for the key
// - list and delete operations never return ErrNotFound; an empty ledger is a valid result

// InMemoryStore keeps the consent ledger in memory for tests and local runs.
// Per-user serialization comes from the in-memory tx manager's sharded lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.ReferenceID][]*models.Record
	seq     int64
}

// NewInMemory constructs an empty in-memory consent ledger.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[domain.ReferenceID][]*models.Record)}
}

func (s *InMemoryStore) Append(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := rec.UserReferenceID
	s.seq++
	rec.Sequence = s.seq
	s.entries[ref] = append(s.entries[ref], rec.Clone())
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.entries[ref]
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].ID == rec.ID {
				s.entries[ref] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	})
	return nil
}

// ListByUser returns every entry of the user in append order.
func (s *InMemoryStore) ListByUser(_ context.Context, ref domain.ReferenceID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[ref]
	out := make([]*models.Record, 0, len(list))
	for _, r := range list {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) LatestByKey(_ context.Context, ref domain.ReferenceID, key models.Key) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[ref]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Key == key {
			return list[i].Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// LockUser is a no-op: the in-memory tx manager already holds the user's shard.
func (s *InMemoryStore) LockUser(context.Context, domain.ReferenceID) error {
	return nil
}

// DeleteByUser drops a user's whole ledger. Erasure and purge call it.
func (s *InMemoryStore) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.entries[ref]
	if len(removed) == 0 {
		return 0, nil
	}
	delete(s.entries, ref)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries[ref] = append(removed, s.entries[ref]...)
	})
	return int64(len(removed)), nil
}
