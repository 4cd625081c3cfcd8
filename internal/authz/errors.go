package authz

import (
	"errors"
	"fmt"
)

// Classified mutation errors. All are recoverable by the caller; the
// checker itself never surfaces them, because a missing principal simply
// resolves to deny.
var (
	// ErrNotFound indicates the referenced user, role or permission does not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrAlreadyExists indicates a duplicate role name or permission key on create.
	ErrAlreadyExists = errors.New("authz: already exists")
	// ErrAlreadyAssigned indicates the user already holds the role.
	ErrAlreadyAssigned = errors.New("authz: role already assigned")
	// ErrCircularDependency indicates an inheritance edge would self-reference or close a cycle.
	ErrCircularDependency = errors.New("authz: circular inheritance")
	// ErrInvalidArgument indicates a malformed input such as an unknown subject type.
	ErrInvalidArgument = errors.New("authz: invalid argument")
)

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func alreadyExistsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, fmt.Sprintf(format, args...))
}

func alreadyAssignedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAlreadyAssigned, fmt.Sprintf(format, args...))
}

func circularf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCircularDependency, fmt.Sprintf(format, args...))
}

func invalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
