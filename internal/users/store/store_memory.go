package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"piivault/internal/pii"
	"piivault/internal/users/models"
	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/platform/tx"
)

// Error Contract:
// - ErrNotFound when the reference ID does not exist (or is not visible to the lookup)
// - ErrDuplicate when an HMAC token collides with another active record
// - ErrInvalidState when the requested transition is not allowed from the current state
// - ErrConflict when a deletion is already in progress
// - ErrStaleVersion when Update loses an optimistic race
//
// Every mutation registers a compensation with tx.OnRollback, so writes made
// inside an in-memory transaction are undone when the transaction fails.

// InMemoryStore keeps user records in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.ReferenceID]*models.UserRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.ReferenceID]*models.UserRecord)}
}

func (s *InMemoryStore) Insert(ctx context.Context, rec *models.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ReferenceID]; ok {
		return fmt.Errorf("reference id already registered: %w", sentinel.ErrConflict)
	}
	if err := s.checkUnique(rec.ReferenceID, rec.HMACIndex); err != nil {
		return err
	}
	now := nowFrom(ctx)
	stored := rec.Clone()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records[rec.ReferenceID] = stored
	s.onRollback(ctx, rec.ReferenceID, nil)

	rec.Version = stored.Version
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) FindByReferenceID(_ context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ref]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindForUpdate is FindByReferenceID here; the in-memory transaction manager
// already serializes callers per reference ID.
func (s *InMemoryStore) FindForUpdate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	return s.FindByReferenceID(ctx, ref)
}

// IsPurged reports whether ref names a record in the PURGED state.
// Unknown references are not purged.
func (s *InMemoryStore) IsPurged(_ context.Context, ref domain.ReferenceID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ref]
	return ok && rec.State == models.StatePurged, nil
}

func (s *InMemoryStore) FindByHMAC(_ context.Context, field pii.Field, token string) (*models.UserRecord, error) {
	if !field.Indexed() {
		return nil, fmt.Errorf("field %s is not indexed: %w", field, sentinel.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Active && token != "" && rec.HMACIndex[field] == token {
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

// Update replaces the encrypted fields and HMAC index of an active record.
// rec.Version must match the stored version.
func (s *InMemoryStore) Update(ctx context.Context, rec *models.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ReferenceID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if current.Version != rec.Version {
		return fmt.Errorf("user %s: %w", rec.ReferenceID, sentinel.ErrStaleVersion)
	}
	if !current.Active || current.State != models.StateActive {
		return fmt.Errorf("user %s is %s: %w", rec.ReferenceID, current.State, sentinel.ErrInvalidState)
	}
	if err := s.checkUnique(rec.ReferenceID, rec.HMACIndex); err != nil {
		return err
	}

	updated := current.Clone()
	updated.EncryptedFields = rec.Clone().EncryptedFields
	updated.HMACIndex = rec.Clone().HMACIndex
	s.commit(ctx, current, updated)

	rec.Version = updated.Version
	rec.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *InMemoryStore) SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, now time.Time) error {
		if rec.State != models.StateActive {
			return fmt.Errorf("user %s is %s: %w", ref, rec.State, sentinel.ErrInvalidState)
		}
		rec.Active = false
		rec.State = models.StateSoftDeleted
		rec.DeletedAt = &now
		rec.DeletionReason = reason
		return nil
	})
}

func (s *InMemoryStore) Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, _ time.Time) error {
		if rec.State != models.StateSoftDeleted {
			return fmt.Errorf("user %s is %s: %w", ref, rec.State, sentinel.ErrInvalidState)
		}
		if err := s.checkUnique(ref, rec.HMACIndex); err != nil {
			return err
		}
		rec.Active = true
		rec.State = models.StateActive
		rec.DeletedAt = nil
		rec.DeletionReason = ""
		return nil
	})
}

// HardErase overwrites every encrypted field with a tombstone and clears the
// HMAC index. Erasing an erased record is a no-op; a purged record is final.
func (s *InMemoryStore) HardErase(ctx context.Context, ref domain.ReferenceID, reason string) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, now time.Time) error {
		switch rec.State {
		case models.StateErased:
			return nil
		case models.StatePurged:
			return fmt.Errorf("user %s is purged: %w", ref, sentinel.ErrInvalidState)
		}
		rec.EncryptedFields = pii.Tombstones()
		rec.HMACIndex = map[pii.Field]string{}
		rec.Active = false
		rec.State = models.StateErased
		rec.ErasedAt = &now
		rec.DeletionRequestedAt = nil
		if rec.DeletedAt == nil {
			rec.DeletedAt = &now
		}
		if reason != "" {
			rec.DeletionReason = reason
		}
		return nil
	})
}

// MarkDeletionRequested claims the record for erasure. A claim older than
// staleBefore is abandoned and may be taken over.
func (s *InMemoryStore) MarkDeletionRequested(ctx context.Context, ref domain.ReferenceID, staleBefore time.Time) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, now time.Time) error {
		switch rec.State {
		case models.StateActive, models.StateSoftDeleted:
		case models.StateDeletionRequested:
			if rec.DeletionRequestedAt != nil && !rec.DeletionRequestedAt.Before(staleBefore) {
				return fmt.Errorf("deletion already in progress for %s: %w", ref, sentinel.ErrConflict)
			}
		default:
			return fmt.Errorf("user %s is %s: %w", ref, rec.State, sentinel.ErrConflict)
		}
		rec.State = models.StateDeletionRequested
		rec.DeletionRequestedAt = &now
		return nil
	})
}

func (s *InMemoryStore) RevertDeletionRequest(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, _ time.Time) error {
		if rec.State != models.StateDeletionRequested {
			return fmt.Errorf("user %s is %s: %w", ref, rec.State, sentinel.ErrInvalidState)
		}
		rec.State = rec.RestingState()
		rec.DeletionRequestedAt = nil
		return nil
	})
}

// MarkPurged drops all remaining field data from an erased record. Only the
// reference ID and lifecycle timestamps survive.
func (s *InMemoryStore) MarkPurged(ctx context.Context, ref domain.ReferenceID) (*models.UserRecord, error) {
	return s.transition(ctx, ref, func(rec *models.UserRecord, now time.Time) error {
		if rec.State != models.StateErased {
			return fmt.Errorf("user %s is %s: %w", ref, rec.State, sentinel.ErrInvalidState)
		}
		rec.EncryptedFields = map[pii.Field]string{}
		rec.HMACIndex = map[pii.Field]string{}
		rec.State = models.StatePurged
		rec.PurgedAt = &now
		return nil
	})
}

func (s *InMemoryStore) ListActive(_ context.Context, page models.Page) ([]*models.UserRecord, error) {
	return s.list(page, func(rec *models.UserRecord) bool { return rec.Active }), nil
}

func (s *InMemoryStore) ListAll(_ context.Context, page models.Page) ([]*models.UserRecord, error) {
	return s.list(page, func(*models.UserRecord) bool { return true }), nil
}

// ListPurgeCandidates returns soft-deleted or erased records whose retention
// anchor is before cutoff, oldest first.
func (s *InMemoryStore) ListPurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]domain.ReferenceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []*models.UserRecord
	for _, rec := range s.records {
		if rec.PurgeEligible(cutoff) {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].RetentionAnchor(), candidates[j].RetentionAnchor()
		if a.Equal(*b) {
			return candidates[i].ReferenceID < candidates[j].ReferenceID
		}
		return a.Before(*b)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	refs := make([]domain.ReferenceID, 0, len(candidates))
	for _, rec := range candidates {
		refs = append(refs, rec.ReferenceID)
	}
	return refs, nil
}

func (s *InMemoryStore) list(page models.Page, keep func(*models.UserRecord) bool) []*models.UserRecord {
	page = page.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.UserRecord
	for _, rec := range s.records {
		if keep(rec) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ReferenceID < matched[j].ReferenceID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if page.Offset >= len(matched) {
		return []*models.UserRecord{}
	}
	end := min(page.Offset+page.Limit, len(matched))
	out := make([]*models.UserRecord, 0, end-page.Offset)
	for _, rec := range matched[page.Offset:end] {
		out = append(out, rec.Clone())
	}
	return out
}

// transition applies mutate to a copy of the record and stores it if mutate
// succeeds.
func (s *InMemoryStore) transition(ctx context.Context, ref domain.ReferenceID, mutate func(*models.UserRecord, time.Time) error) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[ref]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	updated := current.Clone()
	if err := mutate(updated, nowFrom(ctx)); err != nil {
		return nil, err
	}
	s.commit(ctx, current, updated)
	return updated.Clone(), nil
}

// commit stores updated in place of current. Callers hold s.mu.
func (s *InMemoryStore) commit(ctx context.Context, current, updated *models.UserRecord) {
	updated.Version = current.Version + 1
	updated.UpdatedAt = nowFrom(ctx)
	s.records[updated.ReferenceID] = updated
	s.onRollback(ctx, updated.ReferenceID, current)
}

func (s *InMemoryStore) onRollback(ctx context.Context, ref domain.ReferenceID, previous *models.UserRecord) {
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if previous == nil {
			delete(s.records, ref)
			return
		}
		s.records[ref] = previous
	})
}

// checkUnique enforces HMAC uniqueness among active records. Callers hold s.mu.
func (s *InMemoryStore) checkUnique(self domain.ReferenceID, index map[pii.Field]string) error {
	for _, rec := range s.records {
		if rec.ReferenceID == self || !rec.Active {
			continue
		}
		for field, token := range index {
			if token != "" && rec.HMACIndex[field] == token {
				return fmt.Errorf("%s already registered: %w", field, sentinel.ErrDuplicate)
			}
		}
	}
	return nil
}
