package rbac

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/coachdesk/internal/shared"
)

func sessionInjector(userID, orgID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{ID: "sess-1"}
			if userID != "" {
				sess.SetUser(userID)
			}
			sess.SetOrganization(orgID)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	}
}

func newHandlerFixture(t *testing.T, repo *mockRepository, roles map[int64][]string) (*Handler, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := NewManager(repo, client, nil)
	t.Cleanup(manager.Shutdown)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assignments := &stubAssignments{roles: roles}
	guard := Middleware{Logger: logger, Repo: repo, Assignments: assignments}
	service := NewService(repo, nil, logger)
	return NewHandler(logger, service, manager, assignments, guard), manager
}

func rolesRouter(h *Handler, userID, orgID string) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionInjector(userID, orgID))
	r.Route("/api/roles", h.MountRoutes)
	r.Route("/api/me", h.MountMe)
	return r
}

func TestHandlerSeedThenList(t *testing.T) {
	repo := newMockRepository()
	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleOwner}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/seed", nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/roles/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Roles []RolePermission `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Roles, len(BuiltInRoleNames()))
}

func TestHandlerSeedTwiceConflicts(t *testing.T) {
	repo := newMockRepository()
	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleOwner}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/seed", nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/seed", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerAddCustomRoleValidation(t *testing.T) {
	repo := newMockRepository()
	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleOwner}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/",
		strings.NewReader(`{"roleName":"admin"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/",
		strings.NewReader(`{"roleName":"scout"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec RolePermission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "scout", rec.RoleName)
	assert.False(t, rec.IsBuiltIn)
}

func TestHandlerUpsertRoleUpdatesGrants(t *testing.T) {
	repo := newMockRepository()
	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleOwner}})
	router := rolesRouter(h, "7", testOrg)

	payload := `{"permissions":[{"resource":"players","actions":["read","write"]}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/roles/scout", strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := repo.GetByName(context.Background(), testOrg, "scout")
	require.NoError(t, err)
	require.Len(t, stored.Grants, 1)
	assert.Equal(t, ResourcePlayers, stored.Grants[0].Resource)
	assert.ElementsMatch(t, []Action{ActionRead, ActionWrite}, stored.Grants[0].Actions)
}

func TestHandlerDeleteBuiltInForbidden(t *testing.T) {
	repo := newMockRepository()
	seeded, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleOwner}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/roles/"+seeded[0].ID, nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerGuardDeniesInsufficientRole(t *testing.T) {
	repo := newMockRepository()
	_, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	// guardians can read settings but never write them
	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleGuardian}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/roles/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/roles/",
		strings.NewReader(`{"roleName":"scout"}`)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMyPermissionsReflectsAssignments(t *testing.T) {
	repo := newMockRepository()
	_, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	h, _ := newHandlerFixture(t, repo, map[int64][]string{7: {RoleCoach}})
	router := rolesRouter(h, "7", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Permissions     map[Resource][]Action `json:"permissions"`
		RolePermissions []RolePermission      `json:"rolePermissions"`
		Loading         bool                  `json:"loading"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.False(t, body.Loading)
	assert.Len(t, body.RolePermissions, len(BuiltInRoleNames()))
	assert.Contains(t, body.Permissions[ResourceTraining], ActionRead)
	assert.NotContains(t, body.Permissions[ResourceFinance], ActionWrite)
}

func TestMyPermissionsRequiresAuth(t *testing.T) {
	repo := newMockRepository()
	h, _ := newHandlerFixture(t, repo, nil)
	router := rolesRouter(h, "", testOrg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
