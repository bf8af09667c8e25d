package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// Handler exposes role administration and the per-session permission
// accessor as JSON endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	caches      *Manager
	assignments AssignmentSource
	guard       Middleware
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, caches *Manager, assignments AssignmentSource, guard Middleware) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		caches:      caches,
		assignments: assignments,
		guard:       guard,
		validate:    validator.New(),
	}
}

// MountRoutes registers role administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourceSettings, ActionRead))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourceSettings, ActionWrite))
		r.Post("/", h.addCustomRole)
		r.Put("/{roleName}", h.upsertRole)
		r.Post("/seed", h.seedDefaults)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourceSettings, ActionDelete))
		r.Delete("/{recordID}", h.deleteRole)
	})
}

// MountMe registers the session permission accessor.
func (h *Handler) MountMe(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth())
		r.Get("/permissions", h.myPermissions)
		r.Post("/permissions/refresh", h.refreshMyPermissions)
	})
}

type grantPayload struct {
	Resource string   `json:"resource" validate:"required"`
	Actions  []string `json:"actions" validate:"dive,oneof=read write delete"`
}

type upsertRoleRequest struct {
	Permissions []grantPayload `json:"permissions" validate:"required,dive"`
}

type addRoleRequest struct {
	RoleName string `json:"roleName" validate:"required,min=2,max=40"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListRoles(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []RolePermission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": records})
}

func (h *Handler) addCustomRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	var req addRoleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.AddCustomRole(r.Context(), h.actorID(r), orgID, req.RoleName)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) upsertRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	var req upsertRoleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	grants := make([]Grant, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		actions := make([]Action, 0, len(p.Actions))
		for _, a := range p.Actions {
			actions = append(actions, Action(a))
		}
		grants = append(grants, Grant{Resource: Resource(p.Resource), Actions: actions})
	}

	rec, err := h.service.UpsertRole(r.Context(), h.actorID(r), orgID, chi.URLParam(r, "roleName"), grants)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), h.actorID(r), chi.URLParam(r, "recordID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) seedDefaults(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	records, err := h.service.SeedDefaults(r.Context(), h.actorID(r), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"roles": records})
}

type permissionsResponse struct {
	Permissions     map[Resource][]Action `json:"permissions"`
	RolePermissions []RolePermission      `json:"rolePermissions"`
	Loading         bool                  `json:"loading"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	h.renderPermissions(w, r, false)
}

func (h *Handler) refreshMyPermissions(w http.ResponseWriter, r *http.Request) {
	h.renderPermissions(w, r, true)
}

// renderPermissions computes the caller's effective permission set from the
// organization cache. refresh forces recomputation from the current snapshot;
// neither path performs a store round-trip.
func (h *Handler) renderPermissions(w http.ResponseWriter, r *http.Request, refresh bool) {
	sess := shared.SessionFromContext(r.Context())
	orgID := sess.Organization()

	var (
		cache   *Cache
		records []RolePermission
		loading bool
	)
	if orgID != "" {
		cache = h.caches.ForOrganization(r.Context(), orgID)
		records, loading = cache.Snapshot()
	}

	var roles []string
	if orgID != "" {
		var err error
		roles, err = h.assignments.RolesFor(r.Context(), h.actorID(r), orgID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	evaluator := NewEvaluator(cache, nil)
	evaluator.Bind(orgID, roles)
	if refresh {
		evaluator.Refresh()
	}

	if records == nil {
		records = []RolePermission{}
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Permissions:     evaluator.Effective().Grants(),
		RolePermissions: records,
		Loading:         loading,
	})
}

func (h *Handler) activeOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	orgID := sess.Organization()
	if orgID == "" {
		httpx.Problem(w, http.StatusBadRequest, "No Organization", "no active organization in session")
		return "", false
	}
	return orgID, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrReservedRoleName), errors.Is(err, ErrEmptyRoleName), errors.Is(err, ErrInvalidGrant):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateRoleName), errors.Is(err, ErrAlreadySeeded):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrBuiltInRole):
		httpx.Problem(w, http.StatusForbidden, "Protected Role", err.Error())
	default:
		h.logger.Error("rbac handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
