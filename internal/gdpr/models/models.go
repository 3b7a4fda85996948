// Package models holds the artifacts returned by the lifecycle manager. None
// of them is persisted as a domain entity; exports are cached sealed for
// download only.
package models

import (
	"time"

	"piivault/internal/audit"
	consentmodels "piivault/internal/consent/models"
	"piivault/internal/pii"
	usermodels "piivault/internal/users/models"
	"piivault/pkg/domain"
)

// DeletionResult reports a completed right-to-be-forgotten request.
type DeletionResult struct {
	ReferenceID        domain.ReferenceID `json:"reference_id"`
	Reason             string             `json:"reason,omitempty"`
	ErasedAt           time.Time          `json:"erased_at"`
	ConsentsDeleted    int64              `json:"consents_deleted"`
	AuditRetained      bool               `json:"audit_retained"`
	AuditEventsDeleted int64              `json:"audit_events_deleted"`
	AuditEventID       domain.EventID     `json:"audit_event_id"`
}

// Account is the non-PII lifecycle state of a record.
type Account struct {
	State               usermodels.State `json:"state"`
	Active              bool             `json:"active"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	DeletedAt           *time.Time       `json:"deleted_at,omitempty"`
	DeletionReason      string           `json:"deletion_reason,omitempty"`
	DeletionRequestedAt *time.Time       `json:"deletion_requested_at,omitempty"`
	ErasedAt            *time.Time       `json:"erased_at,omitempty"`
	PurgedAt            *time.Time       `json:"purged_at,omitempty"`
}

// ExportBundle is everything held about one user at GeneratedAt. Consents
// include their raw provenance: it is the user's own data.
type ExportBundle struct {
	ExportID    domain.ExportID         `json:"export_id"`
	ReferenceID domain.ReferenceID      `json:"reference_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	Account     Account                 `json:"account"`
	Profile     pii.View                `json:"profile"`
	Consents    []*consentmodels.Record `json:"consents"`
	AuditEvents []audit.Event           `json:"audit_events"`
}

// ProfileErased reports whether the profile section holds only tombstones
// or nothing at all.
func (b *ExportBundle) ProfileErased() bool {
	return len(b.Profile) == 0 || b.Profile.Erased()
}

// PurgeResult summarizes one retention purge run. Failed users stay
// candidates and are retried on the next run.
type PurgeResult struct {
	RetentionDays      int                  `json:"retention_days"`
	Cutoff             time.Time            `json:"cutoff"`
	Candidates         int                  `json:"candidates"`
	Purged             int                  `json:"purged"`
	Skipped            int                  `json:"skipped"`
	Failed             []domain.ReferenceID `json:"failed,omitempty"`
	AuditEventsDeleted int64                `json:"audit_events_deleted"`
	// ResidueEventsDeleted counts expired events of users purged on earlier runs.
	ResidueEventsDeleted int64         `json:"residue_events_deleted"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration_ns"`
}

// AccountFrom copies the lifecycle columns of rec.
func AccountFrom(rec *usermodels.UserRecord) Account {
	return Account{
		State:               rec.State,
		Active:              rec.Active,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
		DeletedAt:           rec.DeletedAt,
		DeletionReason:      rec.DeletionReason,
		DeletionRequestedAt: rec.DeletionRequestedAt,
		ErasedAt:            rec.ErasedAt,
		PurgedAt:            rec.PurgedAt,
	}
}
