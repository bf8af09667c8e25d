package orgs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
	"github.com/coachdesk/coachdesk/internal/users"
	"github.com/coachdesk/coachdesk/jobs"
)

type mockRepository struct {
	orgs      map[string]Organization
	academies map[string]Academy
}

func newMockRepository() *mockRepository {
	return &mockRepository{orgs: map[string]Organization{}, academies: map[string]Academy{}}
}

func (m *mockRepository) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	org := Organization{ID: uuid.NewString(), Name: name}
	m.orgs[org.ID] = org
	return org, nil
}

func (m *mockRepository) GetOrganization(ctx context.Context, id string) (Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return Organization{}, shared.ErrNotFound
	}
	return org, nil
}

func (m *mockRepository) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.orgs))
	for id := range m.orgs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockRepository) CreateAcademy(ctx context.Context, orgID, name, city string) (Academy, error) {
	a := Academy{ID: uuid.NewString(), OrgID: orgID, Name: name, City: city}
	m.academies[a.ID] = a
	return a, nil
}

func (m *mockRepository) ListAcademies(ctx context.Context, orgID string) ([]Academy, error) {
	var out []Academy
	for _, a := range m.academies {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) DeleteAcademy(ctx context.Context, orgID, academyID string) error {
	a, ok := m.academies[academyID]
	if !ok || a.OrgID != orgID {
		return shared.ErrNotFound
	}
	delete(m.academies, academyID)
	return nil
}

var _ RepositoryPort = (*mockRepository)(nil)

type mockSeeder struct {
	seeded []string
	err    error
}

func (m *mockSeeder) SeedDefaults(ctx context.Context, actorID int64, orgID string) ([]rbac.RolePermission, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.seeded = append(m.seeded, orgID)
	return []rbac.RolePermission{{OrgID: orgID}}, nil
}

type mockAssigner struct {
	assigned []users.RoleAssignment
	err      error
}

func (m *mockAssigner) Assign(ctx context.Context, a users.RoleAssignment) (users.RoleAssignment, error) {
	if m.err != nil {
		return users.RoleAssignment{}, m.err
	}
	m.assigned = append(m.assigned, a)
	return a, nil
}

type mockEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestCreateOrganizationProvisionsTenant(t *testing.T) {
	repo := newMockRepository()
	seeder := &mockSeeder{}
	assigner := &mockAssigner{}
	enqueuer := &mockEnqueuer{}
	svc := NewService(repo, seeder, assigner, enqueuer, nil)

	org, err := svc.CreateOrganization(context.Background(), 7, "dana@example.com", "  Riverside FC  ")
	require.NoError(t, err)

	assert.Equal(t, "Riverside FC", org.Name)
	assert.Equal(t, []string{org.ID}, seeder.seeded)

	require.Len(t, assigner.assigned, 1)
	assert.Equal(t, int64(7), assigner.assigned[0].UserID)
	assert.Equal(t, org.ID, assigner.assigned[0].OrgID)
	assert.Equal(t, []string{rbac.RoleOwner}, assigner.assigned[0].Roles)

	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, jobs.TaskTypeSendEmail, enqueuer.tasks[0].Type())
}

func TestCreateOrganizationRequiresName(t *testing.T) {
	svc := NewService(newMockRepository(), &mockSeeder{}, &mockAssigner{}, nil, nil)

	_, err := svc.CreateOrganization(context.Background(), 7, "", "   ")
	assert.Error(t, err)
}

func TestCreateOrganizationEmailFailureIsNotFatal(t *testing.T) {
	repo := newMockRepository()
	enqueuer := &mockEnqueuer{err: assert.AnError}
	svc := NewService(repo, &mockSeeder{}, &mockAssigner{}, enqueuer, nil)

	_, err := svc.CreateOrganization(context.Background(), 7, "dana@example.com", "Riverside FC")
	assert.NoError(t, err)
}

func TestCreateOrganizationSeedFailureAborts(t *testing.T) {
	repo := newMockRepository()
	seeder := &mockSeeder{err: assert.AnError}
	assigner := &mockAssigner{}
	svc := NewService(repo, seeder, assigner, nil, nil)

	_, err := svc.CreateOrganization(context.Background(), 7, "", "Riverside FC")
	require.Error(t, err)
	assert.Empty(t, assigner.assigned)
}

func TestCreateAcademyTrimsInput(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, &mockAssigner{}, nil, nil)

	a, err := svc.CreateAcademy(context.Background(), testOrgID(t, repo), "  U-15  ", " Portland ")
	require.NoError(t, err)
	assert.Equal(t, "U-15", a.Name)
	assert.Equal(t, "Portland", a.City)
}

func TestDeleteAcademyScopedToOrganization(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, &mockAssigner{}, nil, nil)

	orgID := testOrgID(t, repo)
	a, err := svc.CreateAcademy(context.Background(), orgID, "U-15", "")
	require.NoError(t, err)

	err = svc.DeleteAcademy(context.Background(), "other-org", a.ID)
	assert.Error(t, err)

	require.NoError(t, svc.DeleteAcademy(context.Background(), orgID, a.ID))
}

func testOrgID(t *testing.T, repo *mockRepository) string {
	t.Helper()
	org, err := repo.CreateOrganization(context.Background(), "Riverside FC")
	require.NoError(t, err)
	return org.ID
}
