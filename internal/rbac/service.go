package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aegis-id/aegis/internal/platform/httpx"
)

// ErrUnknownPermission indicates a permission name not present in the
// catalog.
var ErrUnknownPermission = fmt.Errorf("rbac: unknown permission: %w", httpx.ErrValidation)

// AdminStore is the persistence surface the administrative Service works
// against. PostgresRepository satisfies it.
type AdminStore interface {
	Repository
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	CreateRole(ctx context.Context, name, normalized, description string, isSystem bool) (Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, name, normalized, description string) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ListRoleClaims(ctx context.Context, roleID uuid.UUID) ([]Claim, error)
	ReplaceRoleClaims(ctx context.Context, roleID uuid.UUID, names []string) error
	AssignRole(ctx context.Context, principalID, roleID uuid.UUID) error
	RemoveRole(ctx context.Context, principalID, roleID uuid.UUID) error
}

// RoleWithClaims pairs a role with its permission claim names.
type RoleWithClaims struct {
	Role
	Permissions []string
}

// Service orchestrates role and claim administration. Every committed
// mutation synchronously invalidates the affected cached permission sets.
type Service struct {
	store    AdminStore
	resolver *Resolver
	catalog  *Catalog
}

// NewService constructs a Service.
func NewService(store AdminStore, resolver *Resolver, catalog *Catalog) *Service {
	return &Service{store: store, resolver: resolver, catalog: catalog}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role together with its permission claims.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (RoleWithClaims, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return RoleWithClaims{}, err
	}
	claims, err := s.store.ListRoleClaims(ctx, id)
	if err != nil {
		return RoleWithClaims{}, err
	}
	names := make([]string, len(claims))
	for i, claim := range claims {
		names[i] = claim.Name
	}
	return RoleWithClaims{Role: role, Permissions: names}, nil
}

// CreateRole inserts a new non-system role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.store.CreateRole(ctx, name, NormalizeRoleName(name), strings.TrimSpace(description), false)
}

// UpdateRole renames a role. System roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if role.IsSystem {
		return Role{}, ErrSystemRole
	}
	return s.store.UpdateRole(ctx, id, name, NormalizeRoleName(name), strings.TrimSpace(description))
}

// DeleteRole removes a role and invalidates every principal that held it.
// Membership is captured before the delete because assignments cascade
// away with the role.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	principalIDs, err := s.store.PrincipalIDsForRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	var errs []error
	for _, principalID := range principalIDs {
		if err := s.resolver.InvalidatePrincipal(ctx, principalID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetRolePermissions replaces a role's permission claims and invalidates
// every principal currently holding the role.
func (s *Service) SetRolePermissions(ctx context.Context, id uuid.UUID, names []string) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	unique := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := s.catalog.ByName(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	if err := s.store.ReplaceRoleClaims(ctx, id, unique); err != nil {
		return err
	}
	return s.resolver.InvalidateRole(ctx, id)
}

// AssignRole grants a role to a principal. Assigning an already-held role
// is a no-op.
func (s *Service) AssignRole(ctx context.Context, principalID, roleID uuid.UUID) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, principalID, roleID); err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			return nil
		}
		return err
	}
	return s.resolver.InvalidatePrincipal(ctx, principalID)
}

// RemoveRole revokes a role from a principal.
func (s *Service) RemoveRole(ctx context.Context, principalID, roleID uuid.UUID) error {
	if err := s.store.RemoveRole(ctx, principalID, roleID); err != nil {
		return err
	}
	return s.resolver.InvalidatePrincipal(ctx, principalID)
}

// EffectivePermissions exposes the resolver's cached lookup for handlers.
func (s *Service) EffectivePermissions(ctx context.Context, principalID uuid.UUID) (PermissionSet, error) {
	return s.resolver.EffectivePermissions(ctx, principalID)
}

// ListPermissions returns the catalog definitions flagged for presentation.
func (s *Service) ListPermissions() []Definition {
	return s.catalog.Visible()
}

// NormalizeRoleName produces the unique lookup form of a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
