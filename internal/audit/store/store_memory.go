package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"piivault/internal/audit"
	"piivault/pkg/domain"
	"piivault/pkg/platform/tx"
)

// InMemoryStore keeps audit events in memory for tests and local runs.
// Writes register compensations with tx.OnRollback so they commit or roll
// back with the surrounding in-memory transaction.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	purged PurgedLookup
}

// PurgedLookup reports whether a user record has been purged. The postgres
// store answers this with a join on user_records.
type PurgedLookup interface {
	IsPurged(ctx context.Context, ref domain.ReferenceID) (bool, error)
}

type Option func(*InMemoryStore)

// WithPurgedLookup lets DeletePurgedUserEventsBefore see user lifecycle
// state. Without it no user counts as purged.
func WithPurgedLookup(lookup PurgedLookup) Option {
	return func(s *InMemoryStore) {
		s.purged = lookup
	}
}

func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = slices.DeleteFunc(s.events, func(e audit.Event) bool { return e.ID == event.ID })
	})
	return nil
}

// ListByUser returns a user's events, oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, ref domain.ReferenceID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []audit.Event{}
	for _, e := range s.events {
		if e.UserReferenceID == ref {
			out = append(out, cloneEvent(e))
		}
	}
	sortByTime(out)
	return out, nil
}

func (s *InMemoryStore) StatisticsSince(_ context.Context, since time.Time) (audit.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := audit.Statistics{Since: since, ByType: map[audit.EventType]int{}}
	users := map[domain.ReferenceID]struct{}{}
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		stats.ByType[e.Type]++
		if e.UserReferenceID != "" {
			users[e.UserReferenceID] = struct{}{}
		}
	}
	stats.DistinctUsers = len(users)
	return stats, nil
}

func (s *InMemoryStore) FailedLoginsSince(_ context.Context, since time.Time) ([]audit.FailedLogins, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := map[domain.ReferenceID]*audit.FailedLogins{}
	for _, e := range s.events {
		if e.Type != audit.EventLoginFailed || e.UserReferenceID == "" || e.Timestamp.Before(since) {
			continue
		}
		fl, ok := byUser[e.UserReferenceID]
		if !ok {
			fl = &audit.FailedLogins{UserReferenceID: e.UserReferenceID}
			byUser[e.UserReferenceID] = fl
		}
		fl.Failures++
		if e.Timestamp.After(fl.LastFailureAt) {
			fl.LastFailureAt = e.Timestamp
		}
	}
	out := make([]audit.FailedLogins, 0, len(byUser))
	for _, fl := range byUser {
		out = append(out, *fl)
	}
	sortFailedLogins(out)
	return out, nil
}

func (s *InMemoryStore) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	return s.deleteWhere(ctx, func(e audit.Event) bool { return e.UserReferenceID == ref })
}

func (s *InMemoryStore) DeleteUserEventsBefore(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx, func(e audit.Event) bool {
		return e.UserReferenceID == ref && e.Timestamp.Before(cutoff)
	})
}

func (s *InMemoryStore) DeletePurgedUserEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.purged == nil {
		return 0, nil
	}
	s.mu.RLock()
	refs := map[domain.ReferenceID]bool{}
	for _, e := range s.events {
		if e.UserReferenceID != "" && e.Timestamp.Before(cutoff) {
			refs[e.UserReferenceID] = false
		}
	}
	s.mu.RUnlock()

	for ref := range refs {
		purged, err := s.purged.IsPurged(ctx, ref)
		if err != nil {
			return 0, err
		}
		refs[ref] = purged
	}
	return s.deleteWhere(ctx, func(e audit.Event) bool {
		return refs[e.UserReferenceID] && e.Timestamp.Before(cutoff)
	})
}

func (s *InMemoryStore) deleteWhere(ctx context.Context, match func(audit.Event) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []audit.Event
	kept := s.events[:0:0]
	for _, e := range s.events {
		if match(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	if len(removed) > 0 {
		tx.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.events = append(s.events, removed...)
		})
	}
	return int64(len(removed)), nil
}

func cloneEvent(e audit.Event) audit.Event {
	if e.Detail != nil {
		detail := make(map[string]string, len(e.Detail))
		for k, v := range e.Detail {
			detail[k] = v
		}
		e.Detail = detail
	}
	return e
}

func sortByTime(events []audit.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
}

func sortFailedLogins(out []audit.FailedLogins) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].UserReferenceID < out[j].UserReferenceID
	})
}
