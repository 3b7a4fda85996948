package handler

import (
	"strings"

	"piivault/internal/consent/models"
)

// GrantRequest carries the policy version the user agreed to. The consent
// key comes from the path.
type GrantRequest struct {
	Version string `json:"version"`
}

func (r *GrantRequest) Sanitize() {
	if r == nil {
		return
	}
	r.Version = strings.TrimSpace(r.Version)
}

func (r *GrantRequest) Validate() error {
	if r == nil {
		return models.ValidateVersion("")
	}
	return models.ValidateVersion(r.Version)
}
