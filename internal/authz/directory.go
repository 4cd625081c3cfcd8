package authz

import "context"

// DirectoryReader is the read side of the directory: everything a check
// needs to resolve a decision. Lookups that find nothing report it via
// their found flag or ErrNotFound; they never invent records.
type DirectoryReader interface {
	// GetDirectGrant returns the stored grant value for the exact
	// (subject, key) pair. found=false means no grant exists, which is
	// not the same as an explicit ban.
	GetDirectGrant(ctx context.Context, subject Subject, key string) (granted bool, found bool, err error)
	// GetRolesOf returns a user's directly-assigned roles only; the
	// resolver expands inheritance.
	GetRolesOf(ctx context.Context, userID int64) ([]Role, error)
	GetRole(ctx context.Context, roleID int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	// GetInheritanceEdges returns the outgoing edges of a role, ordered
	// by edge priority descending.
	GetInheritanceEdges(ctx context.Context, roleID int64) ([]InheritanceEdge, error)
}

// DirectoryWriter is the write side consumed by the mutation gateway.
// The directory is the sole owner of persisted state; cascade deletes
// are its responsibility and must be transactional.
type DirectoryWriter interface {
	CreateRole(ctx context.Context, name, description string, priority int, isDefault bool) (Role, error)
	UpdateRole(ctx context.Context, roleID int64, description string, priority int) (Role, error)
	// DeleteRole cascades over grants, memberships and inheritance
	// edges referencing the role.
	DeleteRole(ctx context.Context, roleID int64) error

	CreatePermission(ctx context.Context, key, description, category string) (Permission, error)
	GetPermission(ctx context.Context, key string) (Permission, error)
	// DeletePermission cascades over grants referencing the key.
	DeletePermission(ctx context.Context, key string) error

	// UpsertGrant stores the (subject, key, granted) tuple, replacing
	// any previous value for the pair, and creates the permission
	// record on first use.
	UpsertGrant(ctx context.Context, subject Subject, key string, granted bool) error
	// DeleteGrant reports whether a grant existed.
	DeleteGrant(ctx context.Context, subject Subject, key string) (bool, error)

	// AddUserRole fails with ErrAlreadyAssigned on a duplicate pair.
	AddUserRole(ctx context.Context, userID, roleID int64) error
	RemoveUserRole(ctx context.Context, userID, roleID int64) (bool, error)

	UpsertInheritance(ctx context.Context, edge InheritanceEdge) error
	RemoveInheritance(ctx context.Context, roleID, parentID int64) (bool, error)
}

// DirectoryBrowser lists entities for the admin surface and for cache
// invalidation fan-out.
type DirectoryBrowser interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	// ListRoleMembers returns the user IDs directly holding the role.
	ListRoleMembers(ctx context.Context, roleID int64) ([]int64, error)
	// ListGrantSubjects returns every subject holding a grant on the key.
	ListGrantSubjects(ctx context.Context, key string) ([]Subject, error)
	// GetDependentEdges returns the incoming edges of a role: every
	// role that directly inherits from it.
	GetDependentEdges(ctx context.Context, parentID int64) ([]InheritanceEdge, error)
}

// Directory is the full persistence port.
type Directory interface {
	DirectoryReader
	DirectoryWriter
	DirectoryBrowser
}
