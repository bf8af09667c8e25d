package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// Service carries role administration use cases: listing, seeding, editing
// and deleting role permission records for an organization. Persistence
// failures propagate unchanged; the service never retries.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns every role permission record for the organization.
func (s *Service) ListRoles(ctx context.Context, orgID string) ([]RolePermission, error) {
	return s.repo.ListByOrganization(ctx, orgID)
}

// GetRole returns one record by role name.
func (s *Service) GetRole(ctx context.Context, orgID, roleName string) (RolePermission, error) {
	return s.repo.GetByName(ctx, orgID, roleName)
}

// SeedDefaults creates the five built-in records from the catalog. It
// refuses to run against an organization that already has records, making
// the org-creation call safe to repeat.
func (s *Service) SeedDefaults(ctx context.Context, actorID int64, orgID string) ([]RolePermission, error) {
	existing, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadySeeded
	}

	records, err := s.repo.SeedDefaults(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.auditLog(ctx, actorID, "rbac.seed", orgID, map[string]any{"records": len(records)})
	return records, nil
}

// UpsertRole validates and normalizes the grant list, then creates or
// updates the record for roleName. Updates never change the stored name or
// built-in flag; a new record is built-in exactly when the name is one of
// the five fixed roles.
func (s *Service) UpsertRole(ctx context.Context, actorID int64, orgID, roleName string, grants []Grant) (RolePermission, error) {
	name := NormalizeRoleName(roleName)
	if name == "" {
		return RolePermission{}, ErrEmptyRoleName
	}
	normalized, err := NormalizeGrants(grants)
	if err != nil {
		return RolePermission{}, err
	}

	rec, err := s.repo.Upsert(ctx, orgID, name, normalized, IsBuiltInRoleName(name))
	if err != nil {
		return RolePermission{}, err
	}
	s.auditLog(ctx, actorID, "rbac.role.upsert", rec.ID, map[string]any{"org": orgID, "role": name})
	return rec, nil
}

// AddCustomRole registers a new organization-defined role name with an empty
// grant set. Names colliding with a built-in role or an existing record are
// rejected before any write; comparison ignores case.
func (s *Service) AddCustomRole(ctx context.Context, actorID int64, orgID, roleName string) (RolePermission, error) {
	name := NormalizeRoleName(roleName)
	if name == "" {
		return RolePermission{}, ErrEmptyRoleName
	}
	if IsBuiltInRoleName(name) {
		return RolePermission{}, ErrReservedRoleName
	}

	_, err := s.repo.GetByName(ctx, orgID, name)
	switch {
	case err == nil:
		return RolePermission{}, ErrDuplicateRoleName
	case !errors.Is(err, ErrNotFound):
		return RolePermission{}, err
	}

	rec, err := s.repo.Upsert(ctx, orgID, name, []Grant{}, false)
	if err != nil {
		return RolePermission{}, err
	}
	s.auditLog(ctx, actorID, "rbac.role.create", rec.ID, map[string]any{"org": orgID, "role": name})
	return rec, nil
}

// DeleteRole removes a custom role's record. The repository enforces the
// built-in protection; ErrBuiltInRole surfaces unchanged.
func (s *Service) DeleteRole(ctx context.Context, actorID int64, recordID string) error {
	rec, err := s.repo.Delete(ctx, recordID)
	if err != nil {
		return err
	}
	s.auditLog(ctx, actorID, "rbac.role.delete", rec.ID, map[string]any{"org": rec.OrgID, "role": rec.RoleName})
	return nil
}

func (s *Service) auditLog(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role_permission",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
