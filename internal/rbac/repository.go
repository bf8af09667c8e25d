package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/platform/db"
)

// ChangeChannel is the Redis pub/sub channel carrying organization ids whose
// role permissions changed.
const ChangeChannel = "rbac:changed"

// RepositoryPort defines persistence for role permission records.
type RepositoryPort interface {
	SeedDefaults(ctx context.Context, orgID string) ([]RolePermission, error)
	ListByOrganization(ctx context.Context, orgID string) ([]RolePermission, error)
	GetByName(ctx context.Context, orgID, roleName string) (RolePermission, error)
	Upsert(ctx context.Context, orgID, roleName string, grants []Grant, isBuiltIn bool) (RolePermission, error)
	Delete(ctx context.Context, recordID string) (RolePermission, error)
}

// ChangeNotifier broadcasts that an organization's role permissions changed.
type ChangeNotifier interface {
	PermissionsChanged(ctx context.Context, orgID string)
}

// RedisNotifier publishes change notifications on ChangeChannel. Delivery is
// best effort; caches reconcile on their next refresh regardless.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier constructs a RedisNotifier.
func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

// PermissionsChanged publishes the organization id.
func (n *RedisNotifier) PermissionsChanged(ctx context.Context, orgID string) {
	if n == nil || n.client == nil {
		return
	}
	if err := n.client.Publish(ctx, ChangeChannel, orgID).Err(); err != nil && n.logger != nil {
		n.logger.Warn("publish rbac change", slog.String("org", orgID), slog.Any("error", err))
	}
}

// Repository provides PostgreSQL backed persistence for role permissions.
type Repository struct {
	pool     *pgxpool.Pool
	notifier ChangeNotifier
}

// NewRepository constructs a repository. notifier may be nil.
func NewRepository(pool *pgxpool.Pool, notifier ChangeNotifier) *Repository {
	return &Repository{pool: pool, notifier: notifier}
}

const rolePermissionColumns = `id, org_id, role_name, permissions, is_built_in, created_at, updated_at`

// SeedDefaults creates one record per built-in role from the catalog inside a
// single transaction. Callers are responsible for ensuring the organization
// has no records yet; seeding twice violates the unique (org, name) index.
func (r *Repository) SeedDefaults(ctx context.Context, orgID string) ([]RolePermission, error) {
	now := time.Now().UTC()
	records := make([]RolePermission, 0, len(BuiltInRoleNames()))

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, name := range BuiltInRoleNames() {
			grants := DefaultGrants(name)
			payload, err := json.Marshal(grants)
			if err != nil {
				return fmt.Errorf("rbac: marshal grants: %w", err)
			}
			rec := RolePermission{
				ID:        uuid.NewString(),
				OrgID:     orgID,
				RoleName:  name,
				Grants:    grants,
				IsBuiltIn: true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO role_permissions (id, org_id, role_name, permissions, is_built_in, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rec.ID, rec.OrgID, rec.RoleName, payload, rec.IsBuiltIn, rec.CreatedAt, rec.UpdatedAt)
			if err != nil {
				return mapPgError(err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.notify(ctx, orgID)
	return records, nil
}

// ListByOrganization returns all records for one organization ordered by
// role name.
func (r *Repository) ListByOrganization(ctx context.Context, orgID string) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rolePermissionColumns+` FROM role_permissions WHERE org_id = $1 ORDER BY role_name`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RolePermission
	for rows.Next() {
		rec, err := scanRolePermission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetByName fetches the record for a role name within an organization. The
// name is normalized before lookup; ErrNotFound when no record exists.
func (r *Repository) GetByName(ctx context.Context, orgID, roleName string) (RolePermission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+rolePermissionColumns+` FROM role_permissions WHERE org_id = $1 AND role_name = $2`,
		orgID, NormalizeRoleName(roleName))
	rec, err := scanRolePermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RolePermission{}, ErrNotFound
		}
		return RolePermission{}, err
	}
	return rec, nil
}

// Upsert looks the record up by normalized name first. When found, only the
// grant list and updated_at change; role name and the built-in flag are
// immutable after creation. When absent, a new record is inserted.
func (r *Repository) Upsert(ctx context.Context, orgID, roleName string, grants []Grant, isBuiltIn bool) (RolePermission, error) {
	name := NormalizeRoleName(roleName)
	if name == "" {
		return RolePermission{}, ErrEmptyRoleName
	}
	payload, err := json.Marshal(grants)
	if err != nil {
		return RolePermission{}, fmt.Errorf("rbac: marshal grants: %w", err)
	}

	var rec RolePermission
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+rolePermissionColumns+` FROM role_permissions WHERE org_id = $1 AND role_name = $2 FOR UPDATE`,
			orgID, name)
		existing, err := scanRolePermission(row)
		switch {
		case err == nil:
			updated := time.Now().UTC()
			_, err = tx.Exec(ctx,
				`UPDATE role_permissions SET permissions = $1, updated_at = $2 WHERE id = $3`,
				payload, updated, existing.ID)
			if err != nil {
				return err
			}
			existing.Grants = grants
			existing.UpdatedAt = updated
			rec = existing
			return nil
		case errors.Is(err, pgx.ErrNoRows):
			now := time.Now().UTC()
			rec = RolePermission{
				ID:        uuid.NewString(),
				OrgID:     orgID,
				RoleName:  name,
				Grants:    grants,
				IsBuiltIn: isBuiltIn,
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO role_permissions (id, org_id, role_name, permissions, is_built_in, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rec.ID, rec.OrgID, rec.RoleName, payload, rec.IsBuiltIn, rec.CreatedAt, rec.UpdatedAt)
			return mapPgError(err)
		default:
			return err
		}
	})
	if err != nil {
		return RolePermission{}, err
	}

	r.notify(ctx, orgID)
	return rec, nil
}

// Delete removes a record by id and returns it. Built-in records are
// protected here, not just in the calling layer: deleting one fails with
// ErrBuiltInRole.
func (r *Repository) Delete(ctx context.Context, recordID string) (RolePermission, error) {
	var rec RolePermission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+rolePermissionColumns+` FROM role_permissions WHERE id = $1 FOR UPDATE`,
			recordID)
		found, err := scanRolePermission(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if found.IsBuiltIn {
			return ErrBuiltInRole
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE id = $1`, recordID); err != nil {
			return err
		}
		rec = found
		return nil
	})
	if err != nil {
		return RolePermission{}, err
	}

	r.notify(ctx, rec.OrgID)
	return rec, nil
}

func (r *Repository) notify(ctx context.Context, orgID string) {
	if r.notifier != nil {
		r.notifier.PermissionsChanged(ctx, orgID)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRolePermission(row rowScanner) (RolePermission, error) {
	var (
		rec     RolePermission
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.OrgID, &rec.RoleName, &payload, &rec.IsBuiltIn, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return RolePermission{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Grants); err != nil {
			return RolePermission{}, fmt.Errorf("rbac: unmarshal grants: %w", err)
		}
	}
	return rec, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateRoleName
	}
	return err
}
