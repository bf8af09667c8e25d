package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// mockRepository is a map-backed RepositoryPort for tests.
type mockRepository struct {
	mu      sync.Mutex
	records map[string]RolePermission // keyed by record id
	nextID  int

	seedErr   error
	listErr   error
	getErr    error
	upsertErr error
	deleteErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: map[string]RolePermission{}}
}

func (m *mockRepository) put(rec RolePermission) RolePermission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		m.nextID++
		rec.ID = fmt.Sprintf("rec-%d", m.nextID)
	}
	m.records[rec.ID] = rec
	return rec
}

func (m *mockRepository) SeedDefaults(ctx context.Context, orgID string) ([]RolePermission, error) {
	if m.seedErr != nil {
		return nil, m.seedErr
	}
	now := time.Now().UTC()
	out := make([]RolePermission, 0, len(BuiltInRoleNames()))
	for _, name := range BuiltInRoleNames() {
		rec := m.put(RolePermission{
			OrgID:     orgID,
			RoleName:  name,
			Grants:    DefaultGrants(name),
			IsBuiltIn: true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockRepository) ListByOrganization(ctx context.Context, orgID string) ([]RolePermission, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RolePermission
	for _, rec := range m.records {
		if rec.OrgID == orgID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepository) GetByName(ctx context.Context, orgID, roleName string) (RolePermission, error) {
	if m.getErr != nil {
		return RolePermission{}, m.getErr
	}
	name := NormalizeRoleName(roleName)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.OrgID == orgID && rec.RoleName == name {
			return rec, nil
		}
	}
	return RolePermission{}, ErrNotFound
}

func (m *mockRepository) Upsert(ctx context.Context, orgID, roleName string, grants []Grant, isBuiltIn bool) (RolePermission, error) {
	if m.upsertErr != nil {
		return RolePermission{}, m.upsertErr
	}
	name := NormalizeRoleName(roleName)
	if name == "" {
		return RolePermission{}, ErrEmptyRoleName
	}
	if existing, err := m.GetByName(ctx, orgID, name); err == nil {
		existing.Grants = grants
		existing.UpdatedAt = time.Now().UTC()
		return m.put(existing), nil
	}
	now := time.Now().UTC()
	return m.put(RolePermission{
		OrgID:     orgID,
		RoleName:  name,
		Grants:    grants,
		IsBuiltIn: isBuiltIn,
		CreatedAt: now,
		UpdatedAt: now,
	}), nil
}

func (m *mockRepository) Delete(ctx context.Context, recordID string) (RolePermission, error) {
	if m.deleteErr != nil {
		return RolePermission{}, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return RolePermission{}, ErrNotFound
	}
	if rec.IsBuiltIn {
		return RolePermission{}, ErrBuiltInRole
	}
	delete(m.records, recordID)
	return rec, nil
}

var _ RepositoryPort = (*mockRepository)(nil)
