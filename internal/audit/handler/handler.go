package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"piivault/internal/audit"
	"piivault/internal/pii"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/httputil"
	"piivault/pkg/platform/validation"
	"piivault/pkg/requestcontext"
)

// DefaultWindow is the lookback used when ?since= is omitted.
const DefaultWindow = 24 * time.Hour

// Service defines the audit trail operations exposed over HTTP.
type Service interface {
	RecordLogin(ctx context.Context, ref domain.ReferenceID, success bool, reason string) error
	StatisticsSince(ctx context.Context, since time.Time) (audit.Statistics, error)
	UsersWithFailedLogins(ctx context.Context, since time.Time) ([]audit.FailedLogins, error)
}

type Handler struct {
	trail  Service
	logger *slog.Logger
}

func New(trail Service, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

// Register mounts the audit routes. All of them are admin-only; the identity
// gateway reports logins with an admin token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/logins", h.HandleRecordLogin)
	r.Get("/audit/statistics", h.HandleStatistics)
	r.Get("/audit/failed-logins", h.HandleFailedLogins)
}

// LoginRequest reports the outcome of one login attempt.
type LoginRequest struct {
	ReferenceID string `json:"reference_id"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
}

func (r *LoginRequest) Sanitize() {
	if r == nil {
		return
	}
	r.ReferenceID = strings.TrimSpace(r.ReferenceID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := domain.ParseReferenceID(r.ReferenceID); err != nil {
		return err
	}
	if r.Success && r.Reason != "" {
		return dErrors.New(dErrors.CodeValidation, "reason is only accepted for failed logins")
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxLoginReasonLength)
}

func (h *Handler) HandleRecordLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !requireAdmin(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.trail.RecordLogin(ctx, domain.ReferenceID(req.ReferenceID), req.Success, req.Reason); err != nil {
		h.logger.ErrorContext(ctx, "record login failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAdmin(w, r) {
		return
	}
	since, err := parseSince(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.trail.StatisticsSince(ctx, since)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// FailedLoginsResponse lists users with failed logins in the window.
type FailedLoginsResponse struct {
	Since time.Time            `json:"since"`
	Users []audit.FailedLogins `json:"users"`
}

func (h *Handler) HandleFailedLogins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAdmin(w, r) {
		return
	}
	since, err := parseSince(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	users, err := h.trail.UsersWithFailedLogins(ctx, since)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if users == nil {
		users = []audit.FailedLogins{}
	}
	httputil.WriteJSON(w, http.StatusOK, FailedLoginsResponse{Since: since, Users: users})
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	caller, err := httputil.RequireCaller(r.Context())
	if err == nil {
		err = pii.Require(pii.ParsePermission(caller.Permission), pii.PermissionAdmin)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return false
	}
	return true
}

// parseSince reads ?since= as RFC 3339. Omitted means the last DefaultWindow.
func parseSince(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return requestcontext.Now(r.Context()).Add(-DefaultWindow), nil
	}
	since, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "since must be an RFC 3339 timestamp")
	}
	return since.UTC(), nil
}
