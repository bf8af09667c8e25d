package orgs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/users"
	"github.com/coachdesk/coachdesk/jobs"
)

// RepositoryPort defines data access for organizations and academies.
type RepositoryPort interface {
	CreateOrganization(ctx context.Context, name string) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizationIDs(ctx context.Context) ([]string, error)
	CreateAcademy(ctx context.Context, orgID, name, city string) (Academy, error)
	ListAcademies(ctx context.Context, orgID string) ([]Academy, error)
	DeleteAcademy(ctx context.Context, orgID, academyID string) error
}

// RoleSeeder provisions the built-in role permission records for a new
// organization.
type RoleSeeder interface {
	SeedDefaults(ctx context.Context, actorID int64, orgID string) ([]rbac.RolePermission, error)
}

// OwnerAssigner grants the creating user the owner role in the new
// organization.
type OwnerAssigner interface {
	Assign(ctx context.Context, a users.RoleAssignment) (users.RoleAssignment, error)
}

// TaskEnqueuer enqueues background tasks.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service handles organization business logic.
type Service struct {
	repo     RepositoryPort
	seeder   RoleSeeder
	assigner OwnerAssigner
	tasks    TaskEnqueuer
	logger   *slog.Logger
}

// NewService builds a Service instance. tasks may be nil.
func NewService(repo RepositoryPort, seeder RoleSeeder, assigner OwnerAssigner, tasks TaskEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, seeder: seeder, assigner: assigner, tasks: tasks, logger: logger}
}

// CreateOrganization provisions a new tenant: the organization record, the
// five built-in role permission records from the catalog, and an owner
// assignment for the creating user. A welcome email is enqueued best effort.
func (s *Service) CreateOrganization(ctx context.Context, actorID int64, actorEmail, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("orgs: organization name required")
	}

	org, err := s.repo.CreateOrganization(ctx, name)
	if err != nil {
		return Organization{}, err
	}

	if _, err := s.seeder.SeedDefaults(ctx, actorID, org.ID); err != nil {
		return Organization{}, fmt.Errorf("orgs: seed role permissions: %w", err)
	}

	_, err = s.assigner.Assign(ctx, users.RoleAssignment{
		UserID: actorID,
		OrgID:  org.ID,
		Roles:  []string{rbac.RoleOwner},
	})
	if err != nil {
		return Organization{}, fmt.Errorf("orgs: assign owner: %w", err)
	}

	s.enqueueWelcome(ctx, actorEmail, org)
	return org, nil
}

// GetOrganization fetches one organization.
func (s *Service) GetOrganization(ctx context.Context, id string) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// CreateAcademy adds a training site to the organization.
func (s *Service) CreateAcademy(ctx context.Context, orgID, name, city string) (Academy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Academy{}, fmt.Errorf("orgs: academy name required")
	}
	return s.repo.CreateAcademy(ctx, orgID, name, strings.TrimSpace(city))
}

// ListAcademies returns the organization's academies.
func (s *Service) ListAcademies(ctx context.Context, orgID string) ([]Academy, error) {
	return s.repo.ListAcademies(ctx, orgID)
}

// DeleteAcademy removes an academy.
func (s *Service) DeleteAcademy(ctx context.Context, orgID, academyID string) error {
	return s.repo.DeleteAcademy(ctx, orgID, academyID)
}

func (s *Service) enqueueWelcome(ctx context.Context, email string, org Organization) {
	if s.tasks == nil || email == "" {
		return
	}
	task, err := jobs.NewSendEmailTask(jobs.SendEmailPayload{
		To:      email,
		Subject: "Welcome to CoachDesk",
		Body:    fmt.Sprintf("Your organization %q is ready.", org.Name),
	})
	if err == nil {
		_, err = s.tasks.EnqueueContext(ctx, task)
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("enqueue welcome email", slog.String("org", org.ID), slog.Any("error", err))
	}
}
