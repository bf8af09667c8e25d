package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for organizations and
// academies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrganization inserts a new organization.
func (r *Repository) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	now := time.Now().UTC()
	org := Organization{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

// GetOrganization fetches one organization by id.
func (r *Repository) GetOrganization(ctx context.Context, id string) (Organization, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = $1`, id)
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.ErrNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

// ListOrganizationIDs returns every organization id; the integrity job scans
// these.
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM organizations ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateAcademy inserts an academy under an organization.
func (r *Repository) CreateAcademy(ctx context.Context, orgID, name, city string) (Academy, error) {
	now := time.Now().UTC()
	academy := Academy{ID: uuid.NewString(), OrgID: orgID, Name: name, City: city, CreatedAt: now, UpdatedAt: now}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO academies (id, org_id, name, city, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		academy.ID, academy.OrgID, academy.Name, academy.City, academy.CreatedAt, academy.UpdatedAt)
	if err != nil {
		return Academy{}, err
	}
	return academy, nil
}

// ListAcademies returns the organization's academies ordered by name.
func (r *Repository) ListAcademies(ctx context.Context, orgID string) ([]Academy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, org_id, name, city, created_at, updated_at FROM academies WHERE org_id = $1 ORDER BY name`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Academy
	for rows.Next() {
		var a Academy
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.City, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// DeleteAcademy removes an academy by id within an organization.
func (r *Repository) DeleteAcademy(ctx context.Context, orgID, academyID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM academies WHERE id = $1 AND org_id = $2`, academyID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
