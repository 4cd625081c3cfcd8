package authz

import "time"

// Role represents a named permission grouping. Roles with a higher
// Priority are consulted first when a principal's roles give conflicting
// answers; ordering among equal priorities is unspecified.
type Role struct {
	ID          int64
	Name        string
	Description string
	Priority    int
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability identified by a segmented
// key such as "endpoint.users.delete". Wildcard keys ("endpoint.*") are
// stored the same way as concrete ones.
type Permission struct {
	ID          int64
	Key         string
	Description string
	Category    string
	CreatedAt   time.Time
}

// Grant associates a subject with a permission key. Granted=false is an
// explicit ban, which is distinct from the grant not existing at all.
type Grant struct {
	Subject   Subject
	Key       string
	Granted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InheritanceEdge is a directed edge meaning the role inherits the
// effective grants of ParentID. Edges carry a priority weight used to
// order the ancestor walk. The edge set must always form a DAG; the
// gateway rejects edges that would close a cycle.
type InheritanceEdge struct {
	RoleID   int64
	ParentID int64
	Priority int
}

// UserRole links a user to a directly-assigned role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// SubjectKind discriminates the two principal variants.
type SubjectKind int

const (
	// SubjectRole marks a role-scoped subject.
	SubjectRole SubjectKind = iota + 1
	// SubjectUser marks a user-scoped subject.
	SubjectUser
)

// String returns the cache-scope spelling of the kind.
func (k SubjectKind) String() string {
	switch k {
	case SubjectRole:
		return "role"
	case SubjectUser:
		return "user"
	default:
		return "unknown"
	}
}

// Subject identifies the principal a grant or check applies to.
type Subject struct {
	Kind SubjectKind
	ID   int64
}

// RoleSubject builds a role-scoped subject.
func RoleSubject(roleID int64) Subject {
	return Subject{Kind: SubjectRole, ID: roleID}
}

// UserSubject builds a user-scoped subject.
func UserSubject(userID int64) Subject {
	return Subject{Kind: SubjectUser, ID: userID}
}

// ParseSubjectKind maps the wire spelling ("role"/"user") to a kind.
// Any other value yields ErrInvalidArgument.
func ParseSubjectKind(s string) (SubjectKind, error) {
	switch s {
	case "role":
		return SubjectRole, nil
	case "user":
		return SubjectUser, nil
	default:
		return 0, invalidArgumentf("subject type %q is neither role nor user", s)
	}
}
