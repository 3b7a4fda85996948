package handler

import (
	"strings"

	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/validation"
)

// ErasureRequest is the optional body of a right-to-be-forgotten request.
// RetainAuditTrail defaults to true when omitted.
type ErasureRequest struct {
	Reason           string `json:"reason"`
	RetainAuditTrail *bool  `json:"retain_audit_trail"`
}

func (r *ErasureRequest) Sanitize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ErasureRequest) Validate() error {
	if r == nil {
		return nil
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

func (r *ErasureRequest) retainAudit() bool {
	return r == nil || r.RetainAuditTrail == nil || *r.RetainAuditTrail
}

// PurgeRequest starts a retention purge.
type PurgeRequest struct {
	RetentionDays int `json:"retention_days"`
}

func (r *PurgeRequest) Validate() error {
	if r == nil || r.RetentionDays <= 0 {
		return dErrors.New(dErrors.CodeValidation, "retention_days must be positive")
	}
	return nil
}
