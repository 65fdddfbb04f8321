package shared

import "context"

// Core permission slugs. Slugs follow the App:Module:Action catalog form and
// must round-trip exactly with the seeded permission catalog.
const (
	PermDashboardRead = "MasterApp:Dashboard:Read"

	PermUserCreate = "MasterApp:User:Create"
	PermUserRead   = "MasterApp:User:Read"
	PermUserUpdate = "MasterApp:User:Update"
	PermUserDelete = "MasterApp:User:Delete"

	PermRoleCreate  = "MasterApp:Role:Create"
	PermRoleRead    = "MasterApp:Role:Read"
	PermRoleUpdate  = "MasterApp:Role:Update"
	PermRoleDelete  = "MasterApp:Role:Delete"
	PermRoleRestore = "MasterApp:Role:Restore"
	PermRoleAction  = "MasterApp:Role:Action"

	PermTaskCreate = "MasterApp:Task:Create"
	PermTaskRead   = "MasterApp:Task:Read"
	PermTaskUpdate = "MasterApp:Task:Update"
	PermTaskDelete = "MasterApp:Task:Delete"
)

// CoreScopes lists every permission slug in the seeded catalog.
func CoreScopes() []string {
	return []string{
		PermDashboardRead,
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
		PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete,
		PermRoleRestore, PermRoleAction,
		PermTaskCreate, PermTaskRead, PermTaskUpdate, PermTaskDelete,
	}
}

// AuthzRegistry maps operation identifiers to their required permission
// slugs. The table is assembled once at startup; the authorization guard
// consults it for every protected call.
type AuthzRegistry map[string][]string

// Operation identifiers declared by the HTTP surface.
const (
	OpPermissionsList    = "permissions.list"
	OpPermissionsCatalog = "permissions.catalog"
	OpPermissionsGet     = "permissions.get"
	OpPermissionsCreate  = "permissions.create"
	OpPermissionsUpdate  = "permissions.update"

	OpRolesList        = "roles.list"
	OpRolesDropdown    = "roles.dropdown"
	OpRolesTrashed     = "roles.trashed"
	OpRolesGet         = "roles.get"
	OpRolesCreate      = "roles.create"
	OpRolesUpdate      = "roles.update"
	OpRolesDelete      = "roles.delete"
	OpRolesPurge       = "roles.purge"
	OpRolesRestore     = "roles.restore"
	OpRolesStatus      = "roles.status"
	OpRolesAssignPerms = "roles.assign_permissions"
	OpRolesGrouped     = "roles.grouped_permissions"

	OpUsersList       = "users.list"
	OpUsersGet        = "users.get"
	OpUsersCreate     = "users.create"
	OpUsersChangeRole = "users.change_role"

	OpAuthMe = "auth.me"
)

// NewAuthzRegistry builds the default operation table.
func NewAuthzRegistry() AuthzRegistry {
	return AuthzRegistry{
		OpPermissionsList:    {PermRoleRead},
		OpPermissionsCatalog: {PermRoleRead},
		OpPermissionsGet:     {PermRoleRead},
		OpPermissionsCreate:  {PermRoleCreate},
		OpPermissionsUpdate:  {PermRoleUpdate},

		OpRolesList:        {PermRoleRead},
		OpRolesDropdown:    {PermRoleRead},
		OpRolesTrashed:     {PermRoleRead},
		OpRolesGet:         {PermRoleRead},
		OpRolesCreate:      {PermRoleCreate},
		OpRolesUpdate:      {PermRoleUpdate},
		OpRolesDelete:      {PermRoleDelete},
		OpRolesPurge:       {PermRoleDelete},
		OpRolesRestore:     {PermRoleRestore},
		OpRolesStatus:      {PermRoleAction},
		OpRolesAssignPerms: {PermRoleUpdate},
		OpRolesGrouped:     {PermRoleRead},

		OpUsersList:       {PermUserRead},
		OpUsersGet:        {PermUserRead},
		OpUsersCreate:     {PermUserCreate},
		OpUsersChangeRole: {PermUserUpdate},

		// Any authenticated principal may fetch its own profile.
		OpAuthMe: nil,
	}
}

// Required returns the permission slugs bound to an operation.
func (r AuthzRegistry) Required(operationID string) []string {
	return r[operationID]
}

type defaultPermsContextKey struct{}

// ContextWithDefaultPermissions stores a route-group default requirement.
// A nested operation-level requirement overrides it.
func ContextWithDefaultPermissions(ctx context.Context, perms []string) context.Context {
	return context.WithValue(ctx, defaultPermsContextKey{}, perms)
}

// DefaultPermissionsFromContext extracts the group-level default, if any.
func DefaultPermissionsFromContext(ctx context.Context) []string {
	perms, _ := ctx.Value(defaultPermsContextKey{}).([]string)
	return perms
}
