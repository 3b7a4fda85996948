package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"piivault/internal/consent/models"
	"piivault/internal/pii"
	"piivault/pkg/domain"
	"piivault/pkg/platform/httputil"
	"piivault/pkg/requestcontext"
)

// Service defines the consent ledger operations exposed over HTTP.
type Service interface {
	Grant(ctx context.Context, ref domain.ReferenceID, key, version string, prov models.Provenance) (*models.Record, error)
	Withdraw(ctx context.Context, ref domain.ReferenceID, key string, prov models.Provenance) (*models.Record, error)
	CurrentState(ctx context.Context, ref domain.ReferenceID, key string) (models.State, error)
	AllConsents(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error)
	ActiveConsents(ctx context.Context, ref domain.ReferenceID) ([]*models.Record, error)
}

// Handler handles consent endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, consent: consent}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/users/{ref}/consents", h.HandleList)
	r.Get("/users/{ref}/consents/{key}", h.HandleState)
	r.Post("/users/{ref}/consents/{key}", h.HandleGrant)
	r.Delete("/users/{ref}/consents/{key}", h.HandleWithdraw)
}

// HandleGrant appends a grant. Only the user or an admin may change consents.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.consent.Grant(ctx, ref, chi.URLParam(r, "key"), req.Version, provenance(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "grant consent failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// HandleWithdraw appends a withdrawal, whether or not a grant exists.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	rec, err := h.consent.Withdraw(ctx, ref, chi.URLParam(r, "key"), provenance(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "withdraw consent failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

// HandleList returns the active consents; ?history=true adds the full ledger.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin, pii.PermissionSupport)
	if !ok {
		return
	}

	active, err := h.consent.ActiveConsents(ctx, ref)
	if err != nil {
		h.logger.ErrorContext(ctx, "list consents failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	res := ListResponse{UserReferenceID: ref.String(), Active: toRecordResponses(active)}

	if r.URL.Query().Get("history") == "true" {
		history, err := h.consent.AllConsents(ctx, ref)
		if err != nil {
			h.logger.ErrorContext(ctx, "list consent history failed", "error", err, "request_id", requestID)
			httputil.WriteError(w, err)
			return
		}
		res.History = toRecordResponses(history)
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleState resolves the current state of one key. A key never touched is
// reported as unknown.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, ok := h.authorize(w, r, pii.PermissionOwner, pii.PermissionAdmin, pii.PermissionSupport)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	state, err := h.consent.CurrentState(ctx, ref, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StateResponse{Key: key, State: string(state)})
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

func provenance(ctx context.Context) models.Provenance {
	return models.Provenance{
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	}
}
