package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-id/aegis/internal/platform/httpx"
)

// fakeAdminStore keeps roles, claims, and assignments in memory and derives
// ClaimsForPrincipal from them the same way the SQL joins do.
type fakeAdminStore struct {
	mu          sync.Mutex
	roles       map[uuid.UUID]Role
	claims      map[uuid.UUID][]Claim
	assignments map[uuid.UUID]map[uuid.UUID]struct{} // principal -> roles
	loads       map[uuid.UUID]int
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		roles:       make(map[uuid.UUID]Role),
		claims:      make(map[uuid.UUID][]Claim),
		assignments: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		loads:       make(map[uuid.UUID]int),
	}
}

func (f *fakeAdminStore) addRole(name string, isSystem bool, defs ...Definition) Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := Role{ID: uuid.New(), Name: name, NormalizedName: NormalizeRoleName(name), IsSystem: isSystem}
	f.roles[role.ID] = role
	for _, def := range defs {
		f.claims[role.ID] = append(f.claims[role.ID], Claim{RoleID: role.ID, Type: ClaimTypePermission, Name: def.Name()})
	}
	return role
}

func (f *fakeAdminStore) ClaimsForPrincipal(_ context.Context, principalID uuid.UUID) ([]Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[principalID]++
	var out []Claim
	for roleID := range f.assignments[principalID] {
		out = append(out, f.claims[roleID]...)
	}
	return out, nil
}

func (f *fakeAdminStore) PrincipalIDsForRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for principalID, roles := range f.assignments {
		if _, ok := roles[roleID]; ok {
			out = append(out, principalID)
		}
	}
	return out, nil
}

func (f *fakeAdminStore) ListRoles(context.Context) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeAdminStore) GetRole(_ context.Context, id uuid.UUID) (Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (f *fakeAdminStore) CreateRole(_ context.Context, name, normalized, description string, isSystem bool) (Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, role := range f.roles {
		if role.NormalizedName == normalized {
			return Role{}, ErrDuplicateRole
		}
	}
	role := Role{ID: uuid.New(), Name: name, NormalizedName: normalized, Description: description, IsSystem: isSystem}
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeAdminStore) UpdateRole(_ context.Context, id uuid.UUID, name, normalized, description string) (Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	role.Name, role.NormalizedName, role.Description = name, normalized, description
	f.roles[id] = role
	return role, nil
}

func (f *fakeAdminStore) DeleteRole(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(f.roles, id)
	delete(f.claims, id)
	// Assignments cascade away with the role.
	for _, roles := range f.assignments {
		delete(roles, id)
	}
	return nil
}

func (f *fakeAdminStore) ListRoleClaims(_ context.Context, roleID uuid.UUID) ([]Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[roleID], nil
}

func (f *fakeAdminStore) ReplaceRoleClaims(_ context.Context, roleID uuid.UUID, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims := make([]Claim, 0, len(names))
	for _, name := range names {
		claims = append(claims, Claim{RoleID: roleID, Type: ClaimTypePermission, Name: name})
	}
	f.claims[roleID] = claims
	return nil
}

func (f *fakeAdminStore) AssignRole(_ context.Context, principalID, roleID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignments[principalID] == nil {
		f.assignments[principalID] = make(map[uuid.UUID]struct{})
	}
	if _, ok := f.assignments[principalID][roleID]; ok {
		return ErrDuplicateAssignment
	}
	f.assignments[principalID][roleID] = struct{}{}
	return nil
}

func (f *fakeAdminStore) RemoveRole(_ context.Context, principalID, roleID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assignments[principalID], roleID)
	return nil
}

func (f *fakeAdminStore) loadCount(principalID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[principalID]
}

func newTestService(t *testing.T) (*Service, *fakeAdminStore, *Resolver) {
	t.Helper()
	store := newFakeAdminStore()
	resolver := newTestResolver(t, store)
	service := NewService(store, resolver, NewCatalog())
	return service, store, resolver
}

func TestAssignRoleGrantsPermissionsImmediately(t *testing.T) {
	service, store, resolver := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false, UsersView, UsersUpdate)
	principalID := uuid.New()

	// Prime the cache with the empty set.
	ok, err := resolver.HasPermission(ctx, principalID, UsersView)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, service.AssignRole(ctx, principalID, role.ID))

	ok, err = resolver.HasPermission(ctx, principalID, UsersView)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAssignRoleTwiceIsNoOp(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false, UsersView)
	principalID := uuid.New()

	require.NoError(t, service.AssignRole(ctx, principalID, role.ID))
	require.NoError(t, service.AssignRole(ctx, principalID, role.ID))
}

func TestAssignUnknownRoleFails(t *testing.T) {
	service, _, _ := newTestService(t)
	err := service.AssignRole(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRemoveRoleRevokesPermissionsImmediately(t *testing.T) {
	service, store, resolver := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false, UsersView)
	principalID := uuid.New()
	require.NoError(t, service.AssignRole(ctx, principalID, role.ID))

	ok, err := resolver.HasPermission(ctx, principalID, UsersView)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, service.RemoveRole(ctx, principalID, role.ID))

	ok, err = resolver.HasPermission(ctx, principalID, UsersView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetRolePermissionsValidatesAgainstCatalog(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false)

	err := service.SetRolePermissions(ctx, role.ID, []string{"permission.users.launch"})
	require.ErrorIs(t, err, ErrUnknownPermission)

	require.NoError(t, service.SetRolePermissions(ctx, role.ID, []string{
		UsersView.Name(),
		UsersView.Name(), // duplicates collapse
		RolesView.Name(),
	}))

	claims, err := store.ListRoleClaims(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, claims, 2)
}

func TestSetRolePermissionsInvalidatesCurrentMembers(t *testing.T) {
	service, store, resolver := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false, UsersView)
	member := uuid.New()
	bystander := uuid.New()
	require.NoError(t, service.AssignRole(ctx, member, role.ID))

	for _, id := range []uuid.UUID{member, bystander} {
		_, err := resolver.EffectivePermissions(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, service.SetRolePermissions(ctx, role.ID, []string{UsersDelete.Name()}))

	ok, err := resolver.HasPermission(ctx, member, UsersDelete)
	require.NoError(t, err)
	require.True(t, ok)

	// The bystander's cached set was untouched.
	require.Equal(t, 1, store.loadCount(bystander))
}

func TestSetRolePermissionsRejectsSystemRole(t *testing.T) {
	service, store, _ := newTestService(t)
	role := store.addRole("Super Admin", true, UsersView)

	err := service.SetRolePermissions(context.Background(), role.ID, []string{UsersView.Name()})
	require.ErrorIs(t, err, ErrSystemRole)
}

func TestDeleteRoleInvalidatesFormerMembers(t *testing.T) {
	service, store, resolver := newTestService(t)
	ctx := context.Background()

	role := store.addRole("Editors", false, UsersView)
	member := uuid.New()
	require.NoError(t, service.AssignRole(ctx, member, role.ID))

	ok, err := resolver.HasPermission(ctx, member, UsersView)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, service.DeleteRole(ctx, role.ID))

	ok, err = resolver.HasPermission(ctx, member, UsersView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAndUpdateRejectSystemRoles(t *testing.T) {
	service, store, _ := newTestService(t)
	role := store.addRole("Super Admin", true)

	require.ErrorIs(t, service.DeleteRole(context.Background(), role.ID), ErrSystemRole)
	_, err := service.UpdateRole(context.Background(), role.ID, "Renamed", "")
	require.ErrorIs(t, err, ErrSystemRole)
}

func TestCreateRoleNormalizesName(t *testing.T) {
	service, _, _ := newTestService(t)

	role, err := service.CreateRole(context.Background(), "  Support Agents ", "first line")
	require.NoError(t, err)
	require.Equal(t, "Support Agents", role.Name)
	require.Equal(t, "SUPPORT_AGENTS", role.NormalizedName)

	_, err = service.CreateRole(context.Background(), "support agents", "")
	require.ErrorIs(t, err, ErrDuplicateRole)

	_, err = service.CreateRole(context.Background(), "   ", "")
	require.Error(t, err)
}

func TestNormalizeRoleName(t *testing.T) {
	require.Equal(t, "SUPER_ADMIN", NormalizeRoleName("Super Admin"))
	require.Equal(t, "MEMBER", NormalizeRoleName(" member "))
}

func TestSentinelsCarryTransportMapping(t *testing.T) {
	require.ErrorIs(t, ErrRoleNotFound, httpx.ErrNotFound)
	require.ErrorIs(t, ErrDuplicateRole, httpx.ErrDuplicate)
	require.ErrorIs(t, ErrSystemRole, httpx.ErrForbidden)
	require.ErrorIs(t, ErrUnknownPermission, httpx.ErrValidation)
}
