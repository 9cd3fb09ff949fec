package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-id/aegis/internal/platform/db"
	"github.com/aegis-id/aegis/internal/platform/httpx"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = fmt.Errorf("rbac: role %w", httpx.ErrNotFound)
	// ErrDuplicateRole indicates a role with the same normalized name exists.
	ErrDuplicateRole = fmt.Errorf("rbac: duplicate role: %w", httpx.ErrDuplicate)
	// ErrDuplicateAssignment indicates the principal already holds the role.
	ErrDuplicateAssignment = errors.New("rbac: role already assigned")
	// ErrSystemRole indicates an attempt to modify a system role.
	ErrSystemRole = fmt.Errorf("rbac: system role is immutable: %w", httpx.ErrForbidden)
)

// Repository is the narrow read contract the Resolver depends on.
type Repository interface {
	// ClaimsForPrincipal loads every permission claim reachable from the
	// principal's role assignments.
	ClaimsForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Claim, error)
	// PrincipalIDsForRole lists the principals currently holding the role.
	PrincipalIDsForRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
}

// PostgresRepository provides PostgreSQL backed persistence for roles,
// claims, and role assignments.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ClaimsForPrincipal implements Repository.
func (r *PostgresRepository) ClaimsForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rc.role_id, rc.claim_type, rc.claim_name
		FROM user_roles ur
		JOIN role_claims rc ON rc.role_id = ur.role_id
		WHERE ur.user_id = $1 AND rc.claim_type = $2`,
		principalID, ClaimTypePermission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var claims []Claim
	for rows.Next() {
		var claim Claim
		if err := rows.Scan(&claim.RoleID, &claim.Type, &claim.Name); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// PrincipalIDsForRole implements Repository.
func (r *PostgresRepository) PrincipalIDsForRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRoles returns all roles ordered by normalized name.
func (r *PostgresRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, normalized_name, description, is_system, created_at, updated_at
		FROM roles ORDER BY normalized_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.NormalizedName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PostgresRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, normalized_name, description, is_system, created_at, updated_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.NormalizedName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByNormalizedName fetches a role by its normalized name.
func (r *PostgresRepository) GetRoleByNormalizedName(ctx context.Context, normalized string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, normalized_name, description, is_system, created_at, updated_at
		FROM roles WHERE normalized_name = $1`, normalized).
		Scan(&role.ID, &role.Name, &role.NormalizedName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *PostgresRepository) CreateRole(ctx context.Context, name, normalized, description string, isSystem bool) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, normalized_name, description, is_system)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, normalized_name, description, is_system, created_at, updated_at`,
		name, normalized, description, isSystem).
		Scan(&role.ID, &role.Name, &role.NormalizedName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates an existing role's name and description.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id uuid.UUID, name, normalized, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, normalized_name = $3, description = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, normalized_name, description, is_system, created_at, updated_at`,
		id, name, normalized, description).
		Scan(&role.ID, &role.Name, &role.NormalizedName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Claims and assignments cascade.
func (r *PostgresRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// ListRoleClaims returns a role's permission claims.
func (r *PostgresRepository) ListRoleClaims(ctx context.Context, roleID uuid.UUID) ([]Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, claim_type, claim_name
		FROM role_claims
		WHERE role_id = $1 AND claim_type = $2
		ORDER BY claim_name`, roleID, ClaimTypePermission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var claims []Claim
	for rows.Next() {
		var claim Claim
		if err := rows.Scan(&claim.RoleID, &claim.Type, &claim.Name); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// ReplaceRoleClaims swaps a role's permission claims for the given names in
// a single transaction.
func (r *PostgresRepository) ReplaceRoleClaims(ctx context.Context, roleID uuid.UUID, names []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_claims WHERE role_id = $1 AND claim_type = $2`, roleID, ClaimTypePermission); err != nil {
			return err
		}
		for _, name := range names {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_claims (role_id, claim_type, claim_name)
				VALUES ($1, $2, $3)`, roleID, ClaimTypePermission, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole links a principal to a role.
func (r *PostgresRepository) AssignRole(ctx context.Context, principalID, roleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, principalID, roleID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAssignment
		}
		return err
	}
	return nil
}

// RemoveRole unlinks a principal from a role.
func (r *PostgresRepository) RemoveRole(ctx context.Context, principalID, roleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, principalID, roleID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
