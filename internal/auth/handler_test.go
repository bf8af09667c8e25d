package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/coachdesk/internal/shared"
)

type stubOrgResolver struct {
	orgs map[int64]string
	err  error
}

func (s *stubOrgResolver) PrimaryOrganization(ctx context.Context, userID int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.orgs[userID], nil
}

func newAuthFixture(t *testing.T, repo *mockRepo, orgs *stubOrgResolver) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(nil, "coachdesk_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	handler := NewHandler(logger, NewService(repo), orgs, sessions, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &shared.Session{ID: "sess-1"}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/auth", handler.MountRoutes)
	return r
}

func TestLoginReturnsUserTokenAndOrganization(t *testing.T) {
	repo := newMockRepo()
	user := addUser(t, repo, "dana@example.com", "correct horse", true)
	orgID := "11111111-1111-1111-1111-111111111111"
	router := newAuthFixture(t, repo, &stubOrgResolver{orgs: map[int64]string{user.ID: orgID}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"dana@example.com","password":"correct horse"}`)))

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		User           *User  `json:"user"`
		CSRFToken      string `json:"csrfToken"`
		OrganizationID string `json:"organizationId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	require.NotNil(t, body.User)
	assert.Equal(t, user.ID, body.User.ID)
	assert.NotEmpty(t, body.CSRFToken)
	assert.Equal(t, orgID, body.OrganizationID)
	assert.Contains(t, repo.sessions, "sess-1")
}

func TestLoginDoesNotLeakPasswordHash(t *testing.T) {
	repo := newMockRepo()
	addUser(t, repo, "dana@example.com", "correct horse", true)
	router := newAuthFixture(t, repo, &stubOrgResolver{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"dana@example.com","password":"correct horse"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
	assert.NotContains(t, rr.Body.String(), "$2a$")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newMockRepo()
	addUser(t, repo, "dana@example.com", "correct horse", true)
	router := newAuthFixture(t, repo, &stubOrgResolver{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"dana@example.com","password":"battery staple"}`)))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	router := newAuthFixture(t, newMockRepo(), &stubOrgResolver{})

	cases := []string{
		`{"email":"not-an-email","password":"correct horse"}`,
		`{"email":"dana@example.com","password":"short"}`,
		`{`,
	}
	for _, payload := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(payload)))
		assert.Equal(t, http.StatusBadRequest, rr.Code, "payload %s", payload)
	}
}

func TestLoginWithoutAssignmentsHasNoOrganization(t *testing.T) {
	repo := newMockRepo()
	addUser(t, repo, "dana@example.com", "correct horse", true)
	router := newAuthFixture(t, repo, &stubOrgResolver{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"dana@example.com","password":"correct horse"}`)))

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	_, hasOrg := body["organizationId"]
	assert.False(t, hasOrg)
}

func TestLogoutDeletesSession(t *testing.T) {
	repo := newMockRepo()
	repo.sessions["sess-1"] = 7
	router := newAuthFixture(t, repo, &stubOrgResolver{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotContains(t, repo.sessions, "sess-1")
}
