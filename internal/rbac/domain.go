package rbac

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role groups permission claims under a name.
type Role struct {
	ID             uuid.UUID
	Name           string
	NormalizedName string
	Description    string
	IsSystem       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Claim attaches a single permission name to a role.
type Claim struct {
	RoleID uuid.UUID
	Type   string
	Name   string
}

// RoleAssignment links a principal to a role.
type RoleAssignment struct {
	PrincipalID uuid.UUID
	RoleID      uuid.UUID
	CreatedAt   time.Time
}

// Normalized names of the built-in system roles.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleMember     = "MEMBER"
)

// SystemRole describes a role seeded at install time.
type SystemRole struct {
	Name           string
	NormalizedName string
	Description    string
}

// SystemRoles returns the built-in roles. Their claim sets come from the
// catalog's named sets during seeding.
func SystemRoles() []SystemRole {
	return []SystemRole{
		{Name: "Super Admin", NormalizedName: RoleSuperAdmin, Description: "Role with all permissions"},
		{Name: "Admin", NormalizedName: RoleAdmin, Description: "Administrator role with management permissions"},
		{Name: "Member", NormalizedName: RoleMember, Description: "Member role with read-only permissions"},
	}
}

// PermissionSet is a principal's effective permission set: the union of
// claim names reachable from their role assignments.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Contains reports whether the named permission is in the set.
func (s PermissionSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// ContainsAny reports whether at least one of the names is in the set.
func (s PermissionSet) ContainsAny(names ...string) bool {
	for _, name := range names {
		if s.Contains(name) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every name is in the set.
func (s PermissionSet) ContainsAll(names ...string) bool {
	for _, name := range names {
		if !s.Contains(name) {
			return false
		}
	}
	return true
}

// Names returns the sorted permission names, the form stored in the cache.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
