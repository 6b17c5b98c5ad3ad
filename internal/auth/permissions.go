package auth

import (
	"sort"
	"strings"
)

// Permission is an atomic capability in resource:action form. The set of
// permissions is closed and defined at compile time.
type Permission string

const (
	PermUserRead   Permission = "user:read"
	PermUserWrite  Permission = "user:write"
	PermUserDelete Permission = "user:delete"

	PermContactRead   Permission = "contact:read"
	PermContactWrite  Permission = "contact:write"
	PermContactDelete Permission = "contact:delete"

	PermCompanyRead   Permission = "company:read"
	PermCompanyWrite  Permission = "company:write"
	PermCompanyDelete Permission = "company:delete"

	PermDealRead   Permission = "deal:read"
	PermDealWrite  Permission = "deal:write"
	PermDealDelete Permission = "deal:delete"

	PermProjectRead   Permission = "project:read"
	PermProjectWrite  Permission = "project:write"
	PermProjectDelete Permission = "project:delete"

	PermTaskRead   Permission = "task:read"
	PermTaskWrite  Permission = "task:write"
	PermTaskDelete Permission = "task:delete"

	PermTeamRead   Permission = "team:read"
	PermTeamWrite  Permission = "team:write"
	PermTeamDelete Permission = "team:delete"

	PermAIUse   Permission = "ai:use"
	PermAIAdmin Permission = "ai:admin"

	PermPluginRead    Permission = "plugin:read"
	PermPluginInstall Permission = "plugin:install"
	PermPluginManage  Permission = "plugin:manage"

	PermAdminRead      Permission = "admin:read"
	PermAdminWrite     Permission = "admin:write"
	PermSettingsManage Permission = "settings:manage"
	PermAuditRead      Permission = "audit:read"
)

// Role is a named bundle of permissions assigned to a user record.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleDeveloper  Role = "developer"
	RoleUser       Role = "user"
	RoleGuest      Role = "guest"
)

// AllPermissions returns every defined permission in catalog order.
func AllPermissions() []Permission {
	return []Permission{
		PermUserRead, PermUserWrite, PermUserDelete,
		PermContactRead, PermContactWrite, PermContactDelete,
		PermCompanyRead, PermCompanyWrite, PermCompanyDelete,
		PermDealRead, PermDealWrite, PermDealDelete,
		PermProjectRead, PermProjectWrite, PermProjectDelete,
		PermTaskRead, PermTaskWrite, PermTaskDelete,
		PermTeamRead, PermTeamWrite, PermTeamDelete,
		PermAIUse, PermAIAdmin,
		PermPluginRead, PermPluginInstall, PermPluginManage,
		PermAdminRead, PermAdminWrite, PermSettingsManage, PermAuditRead,
	}
}

// Catalog is the immutable role-to-permissions table. It is constructed once
// at startup and injected wherever permission checks happen, so tests can
// swap in a reduced table.
type Catalog struct {
	grants        map[Role]map[Permission]struct{}
	onUnknownRole func(role string)
}

// CatalogOption configures Catalog construction.
type CatalogOption func(*Catalog)

// WithUnknownRoleHook installs an observer invoked once per role name that
// does not resolve to a known role. Unknown roles never fail a permission
// check; the hook only makes them visible operationally.
func WithUnknownRoleHook(fn func(role string)) CatalogOption {
	return func(c *Catalog) {
		if fn != nil {
			c.onUnknownRole = fn
		}
	}
}

// NewCatalog builds a catalog from an explicit role-to-permissions table.
// The table is copied; later mutation of the argument has no effect.
func NewCatalog(grants map[Role][]Permission, opts ...CatalogOption) *Catalog {
	c := &Catalog{grants: make(map[Role]map[Permission]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		c.grants[role] = set
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultCatalog returns the built-in role table: super_admin holds every
// permission, the remaining roles hold the fixed subsets below.
func DefaultCatalog(opts ...CatalogOption) *Catalog {
	return NewCatalog(map[Role][]Permission{
		RoleSuperAdmin: AllPermissions(),
		RoleAdmin: {
			PermUserRead, PermUserWrite,
			PermContactRead, PermContactWrite, PermContactDelete,
			PermCompanyRead, PermCompanyWrite, PermCompanyDelete,
			PermDealRead, PermDealWrite, PermDealDelete,
			PermProjectRead, PermProjectWrite, PermProjectDelete,
			PermTaskRead, PermTaskWrite, PermTaskDelete,
			PermTeamRead, PermTeamWrite, PermTeamDelete,
			PermAIUse,
			PermPluginRead, PermPluginInstall,
			PermAdminRead, PermSettingsManage, PermAuditRead,
		},
		RoleManager: {
			PermUserRead,
			PermContactRead, PermContactWrite,
			PermCompanyRead, PermCompanyWrite,
			PermDealRead, PermDealWrite,
			PermProjectRead, PermProjectWrite,
			PermTaskRead, PermTaskWrite,
			PermTeamRead, PermTeamWrite,
			PermAIUse,
			PermPluginRead,
		},
		RoleDeveloper: {
			PermUserRead,
			PermContactRead,
			PermCompanyRead,
			PermDealRead,
			PermProjectRead, PermProjectWrite,
			PermTaskRead, PermTaskWrite,
			PermTeamRead,
			PermAIUse,
			PermPluginRead,
		},
		RoleUser: {
			PermUserRead,
			PermContactRead,
			PermCompanyRead,
			PermDealRead,
			PermProjectRead,
			PermTaskRead, PermTaskWrite,
			PermTeamRead,
			PermAIUse,
		},
		RoleGuest: {
			PermProjectRead,
			PermTaskRead,
		},
	}, opts...)
}

// PermissionsForRole returns the sorted permission set granted to a known
// role. An unknown role yields nil; resolving free-form role names is the
// caller's concern.
func (c *Catalog) PermissionsForRole(role Role) []Permission {
	set, ok := c.grants[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EffectivePermissions resolves each role name and returns the union of the
// granted sets. Role names arrive as free-form strings persisted on user
// records and may lag behind the compiled role set after a deployment, so a
// name that does not resolve contributes nothing instead of failing the
// whole computation.
func (c *Catalog) EffectivePermissions(roleNames []string) map[Permission]struct{} {
	effective := make(map[Permission]struct{})
	for _, name := range roleNames {
		set, ok := c.grants[normalizeRole(name)]
		if !ok {
			c.reportUnknownRole(name)
			continue
		}
		for p := range set {
			effective[p] = struct{}{}
		}
	}
	return effective
}

// HasPermission reports whether any of the named roles grants the required
// permission. It short-circuits on the first grant and returns false when no
// role grants it, including when every name is unknown.
func (c *Catalog) HasPermission(roleNames []string, required Permission) bool {
	for _, name := range roleNames {
		set, ok := c.grants[normalizeRole(name)]
		if !ok {
			c.reportUnknownRole(name)
			continue
		}
		if _, ok := set[required]; ok {
			return true
		}
	}
	return false
}

func (c *Catalog) reportUnknownRole(name string) {
	if c.onUnknownRole != nil {
		c.onUnknownRole(name)
	}
}

func normalizeRole(name string) Role {
	return Role(strings.TrimSpace(strings.ToLower(name)))
}
