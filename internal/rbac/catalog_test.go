package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefinitionNameDerivation(t *testing.T) {
	require.Equal(t, "permission.users.view", UsersView.Name())
	require.Equal(t, "permission.roles.delete", RolesDelete.Name())
	require.Equal(t, "permission.permissions.view", PermissionsView.Name())
}

func TestCatalogLookups(t *testing.T) {
	catalog := NewCatalog()

	def, ok := catalog.ByName("permission.users.create")
	require.True(t, ok)
	require.Equal(t, UsersCreate, def)

	_, ok = catalog.ByName("permission.users.launch")
	require.False(t, ok)

	require.True(t, catalog.Contains(RolesUpdate))
	require.False(t, catalog.Contains(Definition{Resource: "roles", Action: "launch"}))
}

func TestCatalogNamesAreUnique(t *testing.T) {
	catalog := NewCatalog()
	seen := make(map[string]struct{})
	for _, def := range catalog.All() {
		name := def.Name()
		_, dup := seen[name]
		require.False(t, dup, "duplicate permission name %s", name)
		seen[name] = struct{}{}
	}
}

func TestCatalogNamedSets(t *testing.T) {
	catalog := NewCatalog()

	elevated := NewPermissionSet()
	for _, def := range catalog.Elevated() {
		elevated[def.Name()] = struct{}{}
	}
	// The standard set is read-only and strictly smaller than elevated.
	require.Less(t, len(catalog.Standard()), len(catalog.Elevated()))
	for _, def := range catalog.Standard() {
		require.True(t, elevated.Contains(def.Name()), "standard permission %s missing from elevated", def.Name())
		require.Equal(t, "view", def.Action)
	}
}

func TestPermissionSetOperations(t *testing.T) {
	set := NewPermissionSet(UsersView.Name(), RolesView.Name())

	require.True(t, set.Contains(UsersView.Name()))
	require.False(t, set.Contains(UsersDelete.Name()))
	require.True(t, set.ContainsAny(UsersDelete.Name(), RolesView.Name()))
	require.False(t, set.ContainsAny(UsersDelete.Name(), RolesDelete.Name()))
	require.True(t, set.ContainsAll(UsersView.Name(), RolesView.Name()))
	require.False(t, set.ContainsAll(UsersView.Name(), RolesDelete.Name()))

	names := set.Names()
	require.Equal(t, []string{RolesView.Name(), UsersView.Name()}, names)
}
