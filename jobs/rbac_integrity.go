package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/coachdesk/coachdesk/internal/rbac"
)

// OrganizationLister yields the IDs of every organization known to the system.
type OrganizationLister interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
}

// RBACIntegrityJob scans every organization and repairs missing built-in role
// permission records. It only creates records that are absent; records an
// administrator edited are left untouched.
type RBACIntegrityJob struct {
	Repo   rbac.RepositoryPort
	Orgs   OrganizationLister
	Logger *slog.Logger
}

// Handle implements the asynq handler for TaskTypeRBACIntegrity.
func (j *RBACIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	orgIDs, err := j.Orgs.ListOrganizationIDs(ctx)
	if err != nil {
		return fmt.Errorf("rbac integrity: list organizations: %w", err)
	}

	var repaired int
	for _, orgID := range orgIDs {
		n, err := j.repairOrganization(ctx, orgID)
		if err != nil {
			j.Logger.Error("rbac integrity scan failed for organization",
				"org_id", orgID, "error", err)
			continue
		}
		repaired += n
	}

	j.Logger.Info("rbac integrity scan complete",
		"organizations", len(orgIDs), "repaired", repaired)
	return nil
}

func (j *RBACIntegrityJob) repairOrganization(ctx context.Context, orgID string) (int, error) {
	var repaired int
	for _, roleName := range rbac.BuiltInRoleNames() {
		_, err := j.Repo.GetByName(ctx, orgID, roleName)
		if err == nil {
			continue
		}
		if !errors.Is(err, rbac.ErrNotFound) {
			return repaired, err
		}
		if _, err := j.Repo.Upsert(ctx, orgID, roleName, rbac.DefaultGrants(roleName), true); err != nil {
			return repaired, fmt.Errorf("restore %q: %w", roleName, err)
		}
		j.Logger.Warn("restored missing built-in role",
			"org_id", orgID, "role", roleName)
		repaired++
	}
	return repaired, nil
}
