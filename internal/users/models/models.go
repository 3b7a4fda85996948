package models

import (
	"time"

	"piivault/internal/pii"
	"piivault/pkg/domain"
)

// State is the lifecycle state of a user record.
//
//	ACTIVE -> DELETION_REQUESTED -> ERASED -> PURGED
//
// SOFT_DELETED is a side state of ACTIVE that Reactivate reverses.
// Purge eligibility is derived from time and never stored.
type State string

const (
	StateActive            State = "ACTIVE"
	StateSoftDeleted       State = "SOFT_DELETED"
	StateDeletionRequested State = "DELETION_REQUESTED"
	StateErased            State = "ERASED"
	StatePurged            State = "PURGED"
)

func (s State) IsValid() bool {
	switch s {
	case StateActive, StateSoftDeleted, StateDeletionRequested, StateErased, StatePurged:
		return true
	}
	return false
}

// Terminal reports whether PII can no longer be recovered from the record.
func (s State) Terminal() bool {
	return s == StateErased || s == StatePurged
}

// UserRecord is the encrypted-at-rest form of a platform user.
//
// Active is false for soft-deleted, erased, and purged records; such records
// are invisible to FindByHMAC and ListActive. FindByReferenceID returns them in
// every state so tombstones stay addressable.
type UserRecord struct {
	ReferenceID     domain.ReferenceID
	EncryptedFields map[pii.Field]string
	HMACIndex       map[pii.Field]string

	Active         bool
	State          State
	DeletedAt      *time.Time
	DeletionReason string

	DeletionRequestedAt *time.Time
	ErasedAt            *time.Time
	PurgedAt            *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserRecord builds an active record from sealed fields.
func NewUserRecord(ref domain.ReferenceID, sealed pii.Sealed) *UserRecord {
	return &UserRecord{
		ReferenceID:     ref,
		EncryptedFields: sealed.EncryptedFields,
		HMACIndex:       sealed.HMACIndex,
		Active:          true,
		State:           StateActive,
	}
}

// Clone returns a deep copy so stores never share maps with callers.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.EncryptedFields = cloneMap(r.EncryptedFields)
	out.HMACIndex = cloneMap(r.HMACIndex)
	out.DeletedAt = cloneTime(r.DeletedAt)
	out.DeletionRequestedAt = cloneTime(r.DeletionRequestedAt)
	out.ErasedAt = cloneTime(r.ErasedAt)
	out.PurgedAt = cloneTime(r.PurgedAt)
	return &out
}

// IsErased reports whether the record's PII has been destroyed.
func (r *UserRecord) IsErased() bool {
	return r.State.Terminal()
}

// RestingState is the state a pending deletion reverts to.
func (r *UserRecord) RestingState() State {
	if r.DeletedAt != nil {
		return StateSoftDeleted
	}
	return StateActive
}

// RetentionAnchor is the time the retention window counts from: erasure for
// erased records, closure for soft-deleted ones.
func (r *UserRecord) RetentionAnchor() *time.Time {
	switch r.State {
	case StateErased:
		if r.ErasedAt != nil {
			return r.ErasedAt
		}
		return r.DeletedAt
	case StateSoftDeleted:
		return r.DeletedAt
	}
	return nil
}

// PurgeEligible reports whether the record is past retention at cutoff.
func (r *UserRecord) PurgeEligible(cutoff time.Time) bool {
	anchor := r.RetentionAnchor()
	return anchor != nil && anchor.Before(cutoff)
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func cloneMap(m map[pii.Field]string) map[pii.Field]string {
	out := make(map[pii.Field]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// User is a decoded record as returned to callers. Fields holds only what
// the caller's permission allows.
type User struct {
	ReferenceID domain.ReferenceID `json:"reference_id"`
	State       State              `json:"state"`
	Active      bool               `json:"active"`
	Fields      pii.View           `json:"fields"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
	ErasedAt    *time.Time         `json:"erased_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
