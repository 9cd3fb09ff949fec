package rbac

import "fmt"

// ClaimTypePermission is the claim_type value for permission claims.
const ClaimTypePermission = "permission"

// Definition describes a single permission: an action on a resource plus
// presentation metadata. Definitions are immutable and registered once in
// the process-wide Catalog.
type Definition struct {
	Resource    string
	Action      string
	DisplayName string
	Description string
	Visible     bool
}

// Name derives the canonical claim value for the definition. The derivation
// is deterministic so a permission referenced by definition and a claim
// persisted by name compare equal without a lookup.
func (d Definition) Name() string {
	return ClaimTypePermission + "." + d.Resource + "." + d.Action
}

// All permission definitions known to the application. Entry points
// reference these directly, so a typo is a compile error rather than a
// never-matching string.
var (
	UsersSearch = Definition{Resource: "users", Action: "search", DisplayName: "Users", Description: "Search users", Visible: true}
	UsersView   = Definition{Resource: "users", Action: "view", DisplayName: "Users", Description: "View user details", Visible: true}
	UsersCreate = Definition{Resource: "users", Action: "create", DisplayName: "Users", Description: "Create new users", Visible: true}
	UsersUpdate = Definition{Resource: "users", Action: "update", DisplayName: "Users", Description: "Update existing users", Visible: true}
	UsersDelete = Definition{Resource: "users", Action: "delete", DisplayName: "Users", Description: "Delete users", Visible: true}

	RolesSearch = Definition{Resource: "roles", Action: "search", DisplayName: "Roles", Description: "Search roles", Visible: true}
	RolesView   = Definition{Resource: "roles", Action: "view", DisplayName: "Roles", Description: "View role details", Visible: true}
	RolesCreate = Definition{Resource: "roles", Action: "create", DisplayName: "Roles", Description: "Create new roles", Visible: true}
	RolesUpdate = Definition{Resource: "roles", Action: "update", DisplayName: "Roles", Description: "Update roles and their permissions", Visible: true}
	RolesDelete = Definition{Resource: "roles", Action: "delete", DisplayName: "Roles", Description: "Delete roles", Visible: true}

	PermissionsView = Definition{Resource: "permissions", Action: "view", DisplayName: "Permissions", Description: "View the permission catalog", Visible: true}
)

func defaultDefinitions() []Definition {
	return []Definition{
		UsersSearch,
		UsersView,
		UsersCreate,
		UsersUpdate,
		UsersDelete,
		RolesSearch,
		RolesView,
		RolesCreate,
		RolesUpdate,
		RolesDelete,
		PermissionsView,
	}
}

// Catalog is the frozen, process-wide table of permission definitions.
// It is built once at startup and passed to consumers; nothing mutates it
// afterwards.
type Catalog struct {
	defs   []Definition
	byName map[string]Definition
}

// NewCatalog builds the catalog from the registered definitions. It panics
// on a duplicate canonical name, which is a programming error.
func NewCatalog() *Catalog {
	defs := defaultDefinitions()
	byName := make(map[string]Definition, len(defs))
	for _, def := range defs {
		name := def.Name()
		if _, exists := byName[name]; exists {
			panic(fmt.Sprintf("rbac: duplicate permission %s", name))
		}
		byName[name] = def
	}
	return &Catalog{defs: defs, byName: byName}
}

// All returns every registered definition.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Visible returns the definitions flagged for presentation.
func (c *Catalog) Visible() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		if def.Visible {
			out = append(out, def)
		}
	}
	return out
}

// ByName looks up a definition by its canonical name.
func (c *Catalog) ByName(name string) (Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Contains reports whether the definition is registered.
func (c *Catalog) Contains(def Definition) bool {
	_, ok := c.byName[def.Name()]
	return ok
}

// Elevated is the full permission set, used to seed administrative roles.
// Not consulted on the request hot path.
func (c *Catalog) Elevated() []Definition {
	return c.All()
}

// Standard is the read-only permission set, used to seed member roles.
func (c *Catalog) Standard() []Definition {
	return []Definition{UsersView, RolesView, PermissionsView}
}
