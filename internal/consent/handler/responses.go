package handler

import (
	"time"

	"piivault/internal/consent/models"
)

// RecordResponse is a ledger entry without its raw provenance.
type RecordResponse struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	State       string     `json:"state"`
	Version     string     `json:"version,omitempty"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
	RecordedAt  time.Time  `json:"recorded_at"`
}

// ListResponse holds the current consents and, when requested, the full ledger.
type ListResponse struct {
	UserReferenceID string           `json:"user_reference_id"`
	Active          []RecordResponse `json:"active"`
	History         []RecordResponse `json:"history,omitempty"`
}

// StateResponse reports the resolved state of one key.
type StateResponse struct {
	Key   string `json:"key"`
	State string `json:"state"`
}

func toRecordResponse(rec *models.Record) RecordResponse {
	return RecordResponse{
		ID:          rec.ID.String(),
		Key:         rec.Key.String(),
		State:       string(rec.State()),
		Version:     rec.Version,
		GrantedAt:   rec.GrantedAt,
		WithdrawnAt: rec.WithdrawnAt,
		RecordedAt:  rec.RecordedAt,
	}
}

func toRecordResponses(records []*models.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}
