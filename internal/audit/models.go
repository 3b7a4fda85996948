package audit

import (
	"fmt"
	"time"

	"piivault/internal/pii"
	"piivault/pkg/domain"
)

// EventType names a security-relevant action.
type EventType string

const (
	EventUserRegistered   EventType = "user_registered"
	EventProfileUpdated   EventType = "profile_updated"
	EventUserSoftDeleted  EventType = "user_soft_deleted"
	EventUserReactivated  EventType = "user_reactivated"
	EventErasureRequested EventType = "erasure_requested"
	EventUserErased       EventType = "user_erased"
	EventUserPurged       EventType = "user_purged"
	EventDataExported     EventType = "data_exported"
	EventConsentGranted   EventType = "consent_granted"
	EventConsentWithdrawn EventType = "consent_withdrawn"
	EventLoginSucceeded   EventType = "login_succeeded"
	EventLoginFailed      EventType = "login_failed"
	EventPIIAccessed      EventType = "pii_accessed"
)

// Event is an append-only audit record. UserReferenceID is empty for system
// events. Detail must never carry PII; callers put field names, reasons, and
// anonymized provenance there, not values.
type Event struct {
	ID              domain.EventID     `json:"id"`
	UserReferenceID domain.ReferenceID `json:"user_reference_id,omitempty"`
	Type            EventType          `json:"type"`
	Timestamp       time.Time          `json:"timestamp"`
	Detail          map[string]string  `json:"detail,omitempty"`
	RequestID       string             `json:"request_id,omitempty"`
	ActorID         string             `json:"actor_id,omitempty"`
}

// Validate rejects events that cannot be stored.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("audit event type is required")
	}
	for key := range e.Detail {
		if pii.Field(key).IsValid() {
			return fmt.Errorf("audit detail must not carry pii field %q", key)
		}
	}
	return nil
}

// Statistics summarizes the trail since a point in time.
type Statistics struct {
	Since         time.Time         `json:"since"`
	Total         int               `json:"total"`
	ByType        map[EventType]int `json:"by_type"`
	DistinctUsers int               `json:"distinct_users"`
}

// FailedLogins counts failed logins for one user.
type FailedLogins struct {
	UserReferenceID domain.ReferenceID `json:"user_reference_id"`
	Failures        int                `json:"failures"`
	LastFailureAt   time.Time          `json:"last_failure_at"`
}
