package orgs

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

// Handler manages organization and academy endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Middleware
	sessions *shared.SessionManager
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, sessions: sessions, validate: validator.New()}
}

// MountRoutes registers organization routes. Creation only needs an
// authenticated session: accounts with no tenant yet must be able to found
// one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth())
		r.Post("/", h.createOrganization)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceAcademies, rbac.ActionRead))
		r.Get("/current", h.currentOrganization)
		r.Get("/current/academies", h.listAcademies)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceAcademies, rbac.ActionWrite))
		r.Post("/current/academies", h.createAcademy)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ResourceAcademies, rbac.ActionDelete))
		r.Delete("/current/academies/{academyID}", h.deleteAcademy)
	})
}

type createOrganizationRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

type createAcademyRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
	City string `json:"city" validate:"max=120"`
}

func (h *Handler) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess := shared.SessionFromContext(r.Context())
	actorID, _ := strconv.ParseInt(sess.User(), 10, 64)

	org, err := h.service.CreateOrganization(r.Context(), actorID, req.Email, req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// The founder's session adopts the new organization immediately.
	sess.SetOrganization(org.ID)
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) currentOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	org, err := h.service.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) listAcademies(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListAcademies(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []Academy{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"academies": list})
}

func (h *Handler) createAcademy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	var req createAcademyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	academy, err := h.service.CreateAcademy(r.Context(), orgID, req.Name, req.City)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, academy)
}

func (h *Handler) deleteAcademy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.activeOrg(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAcademy(r.Context(), orgID, chi.URLParam(r, "academyID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("orgs handler", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
