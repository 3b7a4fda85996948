package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"piivault/internal/pii"
	"piivault/internal/users/models"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/httputil"
	"piivault/pkg/requestcontext"
)

// Service defines the user record operations exposed over HTTP.
// Returns decoded views; permission checks beyond masking happen here.
type Service interface {
	Register(ctx context.Context, ref domain.ReferenceID, profile pii.Profile) (*models.User, error)
	Get(ctx context.Context, ref domain.ReferenceID, perm pii.Permission) (*models.User, error)
	LookupByEmail(ctx context.Context, email string, perm pii.Permission) (*models.User, error)
	LookupByPhone(ctx context.Context, phone string, perm pii.Permission) (*models.User, error)
	UpdateProfile(ctx context.Context, ref domain.ReferenceID, changes pii.Profile) (*models.User, error)
	SoftDelete(ctx context.Context, ref domain.ReferenceID, reason string) (*models.User, error)
	Reactivate(ctx context.Context, ref domain.ReferenceID) (*models.User, error)
	ListActive(ctx context.Context, page models.Page, perm pii.Permission) ([]*models.User, error)
	ListAll(ctx context.Context, page models.Page, perm pii.Permission) ([]*models.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.HandleRegister)
	r.Get("/users", h.HandleList)
	r.Get("/users/lookup", h.HandleLookup)
	r.Get("/users/{ref}", h.HandleGet)
	r.Patch("/users/{ref}", h.HandleUpdate)
	r.Delete("/users/{ref}", h.HandleSoftDelete)
	r.Post("/users/{ref}/reactivate", h.HandleReactivate)
}

// ListResponse is a page of decoded users.
type ListResponse struct {
	Users  []*models.User `json:"users"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// HandleRegister creates a record. A caller may register itself; registering
// someone else needs admin.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, err := httputil.RequireCaller(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.ReferenceID == "" {
		req.ReferenceID = caller.Subject
	}
	ref, err := domain.ParseReferenceID(req.ReferenceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := requirePermission(ctx, ref, pii.PermissionOwner, pii.PermissionAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.Register(ctx, ref, req.Profile)
	if err != nil {
		h.logger.WarnContext(ctx, "register user failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// HandleGet returns the record masked for the caller's permission.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, perm, ok := h.resolve(w, r, pii.PermissionOwner, pii.PermissionAdmin, pii.PermissionSupport, pii.PermissionAnalyst)
	if !ok {
		return
	}

	user, err := h.service.Get(ctx, ref, perm)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, _, ok := h.resolve(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.service.UpdateProfile(ctx, ref, req.Profile)
	if err != nil {
		h.logger.WarnContext(ctx, "update profile failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleSoftDelete closes the account. The JSON body with a reason is optional.
func (h *Handler) HandleSoftDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ref, _, ok := h.resolve(w, r, pii.PermissionOwner, pii.PermissionAdmin)
	if !ok {
		return
	}

	reason := ""
	if r.ContentLength > 0 {
		req, ok := httputil.DecodeAndPrepare[SoftDeleteRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		reason = req.Reason
	}

	user, err := h.service.SoftDelete(ctx, ref, reason)
	if err != nil {
		h.logger.WarnContext(ctx, "soft delete failed", "error", err, "request_id", requestID, "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, _, ok := h.resolve(w, r, pii.PermissionAdmin)
	if !ok {
		return
	}

	user, err := h.service.Reactivate(ctx, ref)
	if err != nil {
		h.logger.WarnContext(ctx, "reactivate failed", "error", err, "request_id", requestcontext.RequestID(ctx), "reference_id", ref.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleList pages over active users. ?include=all adds closed and erased
// records and needs admin.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	perm, ok := staffPermission(w, r, pii.PermissionAdmin, pii.PermissionSupport, pii.PermissionAnalyst)
	if !ok {
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var users []*models.User
	if r.URL.Query().Get("include") == "all" {
		if err := pii.Require(perm, pii.PermissionAdmin); err != nil {
			httputil.WriteError(w, err)
			return
		}
		users, err = h.service.ListAll(ctx, page, perm)
	} else {
		users, err = h.service.ListActive(ctx, page, perm)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page = page.Normalize()
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Users: users, Limit: page.Limit, Offset: page.Offset})
}

// HandleLookup finds an active user by exact email or phone.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	perm, ok := staffPermission(w, r, pii.PermissionAdmin, pii.PermissionSupport)
	if !ok {
		return
	}

	q := r.URL.Query()
	email, phone := q.Get("email"), q.Get("phone")
	var (
		user *models.User
		err  error
	)
	switch {
	case email != "" && phone != "":
		err = dErrors.New(dErrors.CodeBadRequest, "provide either email or phone, not both")
	case email != "":
		user, err = h.service.LookupByEmail(ctx, email, perm)
	case phone != "":
		user, err = h.service.LookupByPhone(ctx, phone, perm)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "email or phone is required")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, allowed ...pii.Permission) (domain.ReferenceID, pii.Permission, bool) {
	ref, err := domain.ParseReferenceID(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", pii.PermissionNone, false
	}
	perm, err := pii.CallerPermission(r.Context(), ref)
	if err == nil {
		err = pii.Require(perm, allowed...)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return "", pii.PermissionNone, false
	}
	return ref, perm, true
}

func requirePermission(ctx context.Context, ref domain.ReferenceID, allowed ...pii.Permission) error {
	perm, err := pii.CallerPermission(ctx, ref)
	if err != nil {
		return err
	}
	return pii.Require(perm, allowed...)
}

// staffPermission is used for reads not scoped to one record, where the
// owner upgrade never applies.
func staffPermission(w http.ResponseWriter, r *http.Request, allowed ...pii.Permission) (pii.Permission, bool) {
	caller, err := httputil.RequireCaller(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return pii.PermissionNone, false
	}
	perm := pii.EffectivePermission(pii.ParsePermission(caller.Permission), caller.Subject, "")
	if err := pii.Require(perm, allowed...); err != nil {
		httputil.WriteError(w, err)
		return pii.PermissionNone, false
	}
	return perm, true
}

func parsePage(r *http.Request) (models.Page, error) {
	var page models.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, dErrors.New(dErrors.CodeBadRequest, "invalid offset")
		}
		page.Offset = n
	}
	return page, nil
}
