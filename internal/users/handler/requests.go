package handler

import (
	"strings"

	"piivault/internal/pii"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/validation"
)

// RegisterRequest registers a user. ReferenceID defaults to the caller's
// subject when omitted.
type RegisterRequest struct {
	ReferenceID string `json:"reference_id"`
	pii.Profile
}

func (r *RegisterRequest) Sanitize() {
	if r == nil {
		return
	}
	r.ReferenceID = strings.TrimSpace(r.ReferenceID)
	trimProfile(&r.Profile)
}

// UpdateRequest carries the profile fields to change. Empty fields are left
// untouched.
type UpdateRequest struct {
	pii.Profile
}

func (r *UpdateRequest) Sanitize() {
	if r == nil {
		return
	}
	trimProfile(&r.Profile)
}

func (r *UpdateRequest) Validate() error {
	if r == nil || len(r.Values()) == 0 {
		return dErrors.New(dErrors.CodeValidation, "no fields to update")
	}
	return nil
}

// SoftDeleteRequest is the optional body of DELETE /users/{ref}.
type SoftDeleteRequest struct {
	Reason string `json:"reason"`
}

func (r *SoftDeleteRequest) Sanitize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *SoftDeleteRequest) Validate() error {
	if r == nil {
		return nil
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

func trimProfile(p *pii.Profile) {
	for _, f := range pii.AllFields {
		p.Set(f, strings.TrimSpace(p.Get(f)))
	}
}
