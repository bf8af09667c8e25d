package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// Handler manages user and assignment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceUsers, rbac.ActionRead))
		r.Get("/", h.listUsers)
		r.Get("/{userID}/assignments", h.listAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceUsers, rbac.ActionWrite))
		r.Put("/{userID}/assignment", h.assign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceUsers, rbac.ActionDelete))
		r.Delete("/{userID}/assignment", h.unassign)
	})
}

type assignRequest struct {
	AcademyIDs []string `json:"academyIds" validate:"dive,uuid4"`
	Roles      []string `json:"roles" validate:"required,min=1,dive,min=2,max=40"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	orgID := sess.Organization()
	if orgID == "" {
		httpx.Problem(w, http.StatusBadRequest, "No Organization", "no active organization in session")
		return
	}
	list, err := h.service.ListUsers(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []User{}
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	meta := shared.NewPagination(page, perPage, len(list))
	start := (meta.Page - 1) * meta.PerPage
	if start > len(list) {
		start = len(list)
	}
	end := start + meta.PerPage
	if end > len(list) {
		end = len(list)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": list[start:end], "pagination": meta})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", err.Error())
		return
	}
	list, err := h.service.AssignmentsFor(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []RoleAssignment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": list})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	orgID := sess.Organization()
	if orgID == "" {
		httpx.Problem(w, http.StatusBadRequest, "No Organization", "no active organization in session")
		return
	}
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", err.Error())
		return
	}

	var req assignRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	stored, err := h.service.Assign(r.Context(), RoleAssignment{
		UserID:     userID,
		OrgID:      orgID,
		AcademyIDs: req.AcademyIDs,
		Roles:      req.Roles,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stored)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	orgID := sess.Organization()
	if orgID == "" {
		httpx.Problem(w, http.StatusBadRequest, "No Organization", "no active organization in session")
		return
	}
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", err.Error())
		return
	}
	if err := h.service.Unassign(r.Context(), userID, orgID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("users handler", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
