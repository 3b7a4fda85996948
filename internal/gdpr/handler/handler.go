package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"piivault/internal/gdpr/models"
	"piivault/internal/pii"
	"piivault/internal/platform/middleware"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/httputil"
	"piivault/pkg/requestcontext"
)

// Service defines the GDPR lifecycle operations exposed over HTTP.
type Service interface {
	ProcessRightToBeForgotten(ctx context.Context, ref domain.ReferenceID, reason string, retainAuditTrail bool) (*models.DeletionResult, error)
	GenerateDataExport(ctx context.Context, ref domain.ReferenceID) (*models.ExportBundle, error)
	FetchExport(ctx context.Context, id domain.ExportID) (*models.ExportBundle, error)
	PurgeExpiredUsers(ctx context.Context, retentionDays int) (models.PurgeResult, error)
	PurgeExpiredUsersAsync(ctx context.Context, retentionDays int) (<-chan singleflight.Result, error)
}

// Handler handles GDPR endpoints.
type Handler struct {
	logger *slog.Logger
	gdpr   Service
}

func New(gdpr Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, gdpr: gdpr}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/users/{ref}/erasure", h.HandleErasure)
	r.Post("/users/{ref}/exports", h.HandleExport)
	r.Get("/exports/{id}", h.HandleFetchExport)
}

// RegisterAdmin mounts the operator endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.With(middleware.RequirePermission(string(pii.PermissionAdmin))).Post("/admin/purge", h.HandlePurge)
}

// HandleErasure processes a right-to-be-forgotten request. The body is
// optional.
func (h *Handler) HandleErasure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	req, ok := httputil.DecodeOptionalAndPrepare[ErasureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	reason := ""
	if req != nil {
		reason = req.Reason
	}

	result, err := h.gdpr.ProcessRightToBeForgotten(ctx, ref, reason, req.retainAudit())
	if err != nil {
		h.logger.WarnContext(ctx, "erasure failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleExport generates a data export for the user.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	bundle, err := h.gdpr.GenerateDataExport(ctx, ref)
	if err != nil {
		h.logger.WarnContext(ctx, "export failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toExportResponse(bundle))
}

// HandleFetchExport downloads a cached export. Callers who may not read the
// bundle's owner get the same not-found as for an unknown export.
func (h *Handler) HandleFetchExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := httputil.RequireCaller(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseExportID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bundle, err := h.gdpr.FetchExport(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	perm, err := pii.CallerPermission(ctx, bundle.ReferenceID)
	if err == nil {
		err = pii.Require(perm, pii.PermissionOwner, pii.PermissionAdmin)
	}
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "export not found or expired"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toExportResponse(bundle))
}

// HandlePurge starts a retention purge in the background and answers 202.
// With ?wait=true it runs inline and returns the summary. Only admins reach
// it; RegisterAdmin mounts it behind RequirePermission.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[PurgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.gdpr.PurgeExpiredUsers(ctx, req.RetentionDays)
		if err != nil {
			h.logger.WarnContext(ctx, "purge failed", "error", err, "request_id", requestID)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
		return
	}

	done, err := h.gdpr.PurgeExpiredUsersAsync(ctx, req.RetentionDays)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	logger := h.logger
	go func() {
		res := <-done
		if res.Err != nil {
			logger.Error("background purge failed", "error", res.Err, "request_id", requestID)
			return
		}
		logger.Info("background purge finished", "request_id", requestID, "shared", res.Shared)
	}()

	httputil.WriteJSON(w, http.StatusAccepted, PurgeAcceptedResponse{
		Status:        "accepted",
		RetentionDays: req.RetentionDays,
		AcceptedAt:    requestcontext.Now(ctx),
	})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, allowed ...pii.Permission) (domain.ReferenceID, bool) {
	ref, err := domain.ParseReferenceID(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	perm, err := pii.CallerPermission(r.Context(), ref)
	if err == nil {
		err = pii.Require(perm, allowed...)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return ref, true
}
