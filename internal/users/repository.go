package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users and their
// role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, name, is_active, created_at, updated_at FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// ListByOrganization returns the users holding an assignment in the
// organization, ordered by name.
func (r *Repository) ListByOrganization(ctx context.Context, orgID string) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.email, u.name, u.is_active, u.created_at, u.updated_at
		 FROM users u
		 JOIN user_role_assignments a ON a.user_id = u.id
		 WHERE a.org_id = $1
		 ORDER BY u.name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// AssignmentsFor returns every organization assignment the user holds.
func (r *Repository) AssignmentsFor(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, org_id, academy_ids, roles, created_at, updated_at
		 FROM user_role_assignments WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.OrgID, &a.AcademyIDs, &a.Roles, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// RolesFor returns the role names the user holds in the organization.
// A user with no assignment there gets an empty list, not an error.
func (r *Repository) RolesFor(ctx context.Context, userID int64, orgID string) ([]string, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT roles FROM user_role_assignments WHERE user_id = $1 AND org_id = $2`,
		userID, orgID)
	var roles []string
	if err := row.Scan(&roles); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return roles, nil
}

// PrimaryOrganization returns the user's earliest assignment's organization,
// empty when the user has none yet.
func (r *Repository) PrimaryOrganization(ctx context.Context, userID int64) (string, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT org_id FROM user_role_assignments WHERE user_id = $1 ORDER BY created_at LIMIT 1`,
		userID)
	var orgID string
	if err := row.Scan(&orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return orgID, nil
}

// UpsertAssignment creates or replaces the user's assignment for an
// organization.
func (r *Repository) UpsertAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO user_role_assignments (user_id, org_id, academy_ids, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (user_id, org_id)
		 DO UPDATE SET academy_ids = EXCLUDED.academy_ids, roles = EXCLUDED.roles, updated_at = EXCLUDED.updated_at
		 RETURNING user_id, org_id, academy_ids, roles, created_at, updated_at`,
		a.UserID, a.OrgID, a.AcademyIDs, a.Roles, now)
	var stored RoleAssignment
	if err := row.Scan(&stored.UserID, &stored.OrgID, &stored.AcademyIDs, &stored.Roles, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return RoleAssignment{}, err
	}
	return stored, nil
}

// DeleteAssignment removes the user's assignment for an organization.
func (r *Repository) DeleteAssignment(ctx context.Context, userID int64, orgID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_role_assignments WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
