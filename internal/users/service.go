package users

import (
	"context"
	"errors"

	"github.com/coachdesk/coachdesk/internal/rbac"
)

// RepositoryPort defines data access for users and assignments.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	ListByOrganization(ctx context.Context, orgID string) ([]User, error)
	AssignmentsFor(ctx context.Context, userID int64) ([]RoleAssignment, error)
	RolesFor(ctx context.Context, userID int64, orgID string) ([]string, error)
	PrimaryOrganization(ctx context.Context, userID int64) (string, error)
	UpsertAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	DeleteAssignment(ctx context.Context, userID int64, orgID string) error
}

// Service handles user and assignment business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetUser fetches one user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// ListUsers returns the organization's members.
func (s *Service) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	return s.repo.ListByOrganization(ctx, orgID)
}

// AssignmentsFor returns every assignment the user holds.
func (s *Service) AssignmentsFor(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	return s.repo.AssignmentsFor(ctx, userID)
}

// RolesFor returns the user's role names in the organization, normalized.
// Names are deduplicated; stale names referencing deleted role records are
// preserved so that evaluation can treat them as zero grants.
func (s *Service) RolesFor(ctx context.Context, userID int64, orgID string) ([]string, error) {
	raw, err := s.repo.RolesFor(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raw))
	roles := make([]string, 0, len(raw))
	for _, name := range raw {
		n := rbac.NormalizeRoleName(name)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		roles = append(roles, n)
	}
	return roles, nil
}

// PrimaryOrganization returns the organization resolved at login time.
func (s *Service) PrimaryOrganization(ctx context.Context, userID int64) (string, error) {
	return s.repo.PrimaryOrganization(ctx, userID)
}

// Assign creates or replaces the user's role assignment in an organization.
// Role names are normalized; at least one is required.
func (s *Service) Assign(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	normalized := make([]string, 0, len(a.Roles))
	seen := make(map[string]struct{}, len(a.Roles))
	for _, name := range a.Roles {
		n := rbac.NormalizeRoleName(name)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return RoleAssignment{}, errors.New("users: assignment requires at least one role")
	}
	a.Roles = normalized
	if a.AcademyIDs == nil {
		a.AcademyIDs = []string{}
	}
	return s.repo.UpsertAssignment(ctx, a)
}

// Unassign removes the user's assignment for an organization.
func (s *Service) Unassign(ctx context.Context, userID int64, orgID string) error {
	return s.repo.DeleteAssignment(ctx, userID, orgID)
}
