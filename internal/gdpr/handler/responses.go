package handler

import (
	"time"

	"piivault/internal/gdpr/models"
)

// ExportResponse wraps a bundle with its download location when it was
// cached.
type ExportResponse struct {
	*models.ExportBundle
	DownloadURL string `json:"download_url,omitempty"`
}

// PurgeAcceptedResponse acknowledges a purge started in the background.
type PurgeAcceptedResponse struct {
	Status        string    `json:"status"`
	RetentionDays int       `json:"retention_days"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

func toExportResponse(bundle *models.ExportBundle) ExportResponse {
	res := ExportResponse{ExportBundle: bundle}
	if bundle.ExpiresAt != nil {
		res.DownloadURL = "/exports/" + bundle.ExportID.String()
	}
	return res
}
