package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/coachdesk/internal/shared"
)

type stubAssignments struct {
	roles map[int64][]string
	err   error
}

func (s *stubAssignments) RolesFor(ctx context.Context, userID int64, orgID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roles[userID], nil
}

type stubDenials struct {
	resource string
	action   string
	count    int
}

func (s *stubDenials) RecordPermissionDenial(resource, action string) {
	s.resource = resource
	s.action = action
	s.count++
}

func guardRequest(t *testing.T, target string, userID, orgID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess := &shared.Session{ID: "sess-1"}
	if userID != "" {
		sess.SetUser(userID)
	}
	sess.SetOrganization(orgID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireAuthRejectsAnonymousJSON(t *testing.T) {
	m := Middleware{}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.RequireAuth()(next).ServeHTTP(rr, guardRequest(t, "/api/me/permissions", "", ""))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, *called)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")
}

func TestRequireAuthRedirectsBrowsers(t *testing.T) {
	m := Middleware{LoginURL: "/login"}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.RequireAuth()(next).ServeHTTP(rr, guardRequest(t, "/roles", "", ""))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.False(t, *called)
}

func TestRequireAllowsAuthenticatedWithoutOrganization(t *testing.T) {
	m := Middleware{Repo: newMockRepository(), Assignments: &stubAssignments{}}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.Require(ResourceUsers, ActionWrite)(next).ServeHTTP(rr, guardRequest(t, "/api/users", "7", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
}

func TestRequireAllowsPermittedRole(t *testing.T) {
	repo := newMockRepository()
	_, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	m := Middleware{
		Repo:        repo,
		Assignments: &stubAssignments{roles: map[int64][]string{7: {RoleCoach}}},
	}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.Require(ResourceTraining, ActionRead)(next).ServeHTTP(rr, guardRequest(t, "/api/training", "7", testOrg))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
}

func TestRequireDeniesMissingPermission(t *testing.T) {
	repo := newMockRepository()
	_, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	denials := &stubDenials{}
	m := Middleware{
		Repo:        repo,
		Assignments: &stubAssignments{roles: map[int64][]string{7: {RoleCoach}}},
		Denials:     denials,
	}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.Require(ResourceFinance, ActionWrite)(next).ServeHTTP(rr, guardRequest(t, "/api/finance", "7", testOrg))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, *called)
	assert.Equal(t, 1, denials.count)
	assert.Equal(t, string(ResourceFinance), denials.resource)
	assert.Equal(t, string(ActionWrite), denials.action)
}

func TestRequireOwnerAlwaysAllowed(t *testing.T) {
	// no records at all in the store: the owner bypass never reaches it
	m := Middleware{
		Repo:        newMockRepository(),
		Assignments: &stubAssignments{roles: map[int64][]string{7: {RoleOwner}}},
	}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.Require(ResourceFinance, ActionDelete)(next).ServeHTTP(rr, guardRequest(t, "/api/finance", "7", testOrg))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
}

func TestRequireDenialFallbackRedirects(t *testing.T) {
	repo := newMockRepository()
	_, err := repo.SeedDefaults(context.Background(), testOrg)
	require.NoError(t, err)

	m := Middleware{
		Repo:        repo,
		Assignments: &stubAssignments{roles: map[int64][]string{7: {RoleGuardian}}},
	}
	next, called := okHandler()

	rr := httptest.NewRecorder()
	m.Require(ResourceFinance, ActionRead, WithFallback("/dashboard"))(next).
		ServeHTTP(rr, guardRequest(t, "/finance", "7", testOrg))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	assert.False(t, *called)
}
