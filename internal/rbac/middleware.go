package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// AssignmentSource resolves the role names a user holds within an
// organization.
type AssignmentSource interface {
	RolesFor(ctx context.Context, userID int64, orgID string) ([]string, error)
}

// Middleware gates HTTP routes behind authentication and, optionally, a
// fresh store-backed permission check. Denials redirect when a fallback is
// configured and render an explicit problem response otherwise; the guard
// never flashes protected content and never mutates permission state.
type Middleware struct {
	Logger      *slog.Logger
	Repo        RepositoryPort
	Assignments AssignmentSource
	LoginURL    string
	Denials     DenialRecorder
}

// DenialRecorder counts guard denials, usually backed by Prometheus.
type DenialRecorder interface {
	RecordPermissionDenial(resource, action string)
}

// GuardOption tunes a single guard instance.
type GuardOption func(*guardConfig)

type guardConfig struct {
	fallbackURL string
}

// WithFallback redirects denied requests to url instead of rendering a 403.
func WithFallback(url string) GuardOption {
	return func(c *guardConfig) { c.fallbackURL = url }
}

// RequireAuth admits any authenticated session. Routes without a
// resource/action requirement resolve to allow as soon as authentication
// does.
func (m Middleware) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := m.currentUserID(r); !ok {
				m.denyUnauthenticated(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require admits sessions whose user holds action on resource in the
// session's active organization, checked authoritatively against the store.
// A session with no organization resolved yet is admitted: accounts without
// tenant context are outside permission scoping by design.
func (m Middleware) Require(resource Resource, action Action, opts ...GuardOption) func(http.Handler) http.Handler {
	cfg := guardConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				m.denyUnauthenticated(w, r)
				return
			}

			sess := shared.SessionFromContext(r.Context())
			orgID := sess.Organization()
			if orgID == "" {
				next.ServeHTTP(w, r)
				return
			}

			roles, err := m.Assignments.RolesFor(r.Context(), userID, orgID)
			if err != nil {
				m.logError(r, "resolve role assignment", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}

			evaluator := NewEvaluator(nil, m.Repo)
			evaluator.Bind(orgID, roles)
			allowed, err := evaluator.HasPermission(r.Context(), resource, action)
			if err != nil {
				m.logError(r, "check permission", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if m.Denials != nil {
				m.Denials.RecordPermissionDenial(string(resource), string(action))
			}
			if cfg.fallbackURL != "" {
				http.Redirect(w, r, cfg.fallbackURL, http.StatusSeeOther)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Access Denied",
				"you do not have permission to "+string(action)+" "+string(resource))
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logError(r, "parse session user id", err)
		return 0, false
	}
	return id, true
}

func (m Middleware) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) || m.LoginURL == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	http.Redirect(w, r, m.LoginURL, http.StatusSeeOther)
}

func (m Middleware) logError(r *http.Request, msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
