package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the directory.
// Tables: roles, permissions, grants (subject_kind/subject_id ×
// permission_id), user_roles, role_inheritance. Grants key on the
// permission row, so deleting a permission cascades naturally inside
// one transaction.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Directory = (*Repository)(nil)

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, priority, is_default, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Priority, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetDirectGrant fetches the stored grant value for the exact pair.
func (r *Repository) GetDirectGrant(ctx context.Context, subject Subject, key string) (bool, bool, error) {
	var granted bool
	err := r.pool.QueryRow(ctx, `
		SELECT g.granted
		FROM grants g
		JOIN permissions p ON p.id = g.permission_id
		WHERE g.subject_kind = $1 AND g.subject_id = $2 AND p.key = $3
	`, subject.Kind, subject.ID, key).Scan(&granted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return granted, true, nil
}

// GetRolesOf returns the user's direct memberships.
func (r *Repository) GetRolesOf(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.`+roleColumns+`
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, roleID int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, notFoundf("role %d", roleID)
	}
	return role, err
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, notFoundf("role %q", name)
	}
	return role, err
}

// GetInheritanceEdges returns outgoing edges ordered by priority descending.
func (r *Repository) GetInheritanceEdges(ctx context.Context, roleID int64) ([]InheritanceEdge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, parent_id, priority
		FROM role_inheritance
		WHERE role_id = $1
		ORDER BY priority DESC
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEdges(rows)
}

// GetDependentEdges returns incoming edges: roles inheriting from parentID.
func (r *Repository) GetDependentEdges(ctx context.Context, parentID int64) ([]InheritanceEdge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, parent_id, priority
		FROM role_inheritance
		WHERE parent_id = $1
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEdges(rows)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string, priority int, isDefault bool) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, priority, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns,
		name, description, priority, isDefault))
	if isUniqueViolation(err) {
		return Role{}, alreadyExistsf("role %q", name)
	}
	return role, err
}

// UpdateRole mutates description and priority.
func (r *Repository) UpdateRole(ctx context.Context, roleID int64, description string, priority int) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		UPDATE roles SET description = $2, priority = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		roleID, description, priority))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, notFoundf("role %d", roleID)
	}
	return role, err
}

// DeleteRole removes the role and cascades over grants, memberships and
// inheritance edges in one repeatable-read transaction.
func (r *Repository) DeleteRole(ctx context.Context, roleID int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM grants WHERE subject_kind = $1 AND subject_id = $2`, SubjectRole, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_inheritance WHERE role_id = $1 OR parent_id = $1`, roleID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return notFoundf("role %d", roleID)
		}
		return nil
	})
}

// CreatePermission inserts a new permission key.
func (r *Repository) CreatePermission(ctx context.Context, key, description, category string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (key, description, category, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, key, description, category, created_at
	`, key, description, category).Scan(&perm.ID, &perm.Key, &perm.Description, &perm.Category, &perm.CreatedAt)
	if isUniqueViolation(err) {
		return Permission{}, alreadyExistsf("permission %q", key)
	}
	return perm, err
}

// GetPermission fetches a permission by key.
func (r *Repository) GetPermission(ctx context.Context, key string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, key, description, category, created_at FROM permissions WHERE key = $1
	`, key).Scan(&perm.ID, &perm.Key, &perm.Description, &perm.Category, &perm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, notFoundf("permission %q", key)
	}
	return perm, err
}

// DeletePermission removes the key and all grants referencing it.
func (r *Repository) DeletePermission(ctx context.Context, key string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM grants USING permissions p
			WHERE grants.permission_id = p.id AND p.key = $1
		`, key); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE key = $1`, key)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return notFoundf("permission %q", key)
		}
		return nil
	})
}

// UpsertGrant stores the grant, creating the permission row on first use.
func (r *Repository) UpsertGrant(ctx context.Context, subject Subject, key string, granted bool) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var permID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO permissions (key, description, category, created_at)
			VALUES ($1, '', '', NOW())
			ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
			RETURNING id
		`, key).Scan(&permID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO grants (subject_kind, subject_id, permission_id, granted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (subject_kind, subject_id, permission_id)
			DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()
		`, subject.Kind, subject.ID, permID, granted)
		return err
	})
}

// DeleteGrant removes the grant, reporting whether one existed.
func (r *Repository) DeleteGrant(ctx context.Context, subject Subject, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM grants USING permissions p
		WHERE grants.permission_id = p.id
		  AND grants.subject_kind = $1 AND grants.subject_id = $2 AND p.key = $3
	`, subject.Kind, subject.ID, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddUserRole inserts a membership; duplicates map to ErrAlreadyAssigned.
func (r *Repository) AddUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW())
	`, userID, roleID)
	if isUniqueViolation(err) {
		return alreadyAssignedf("user %d already holds role %d", userID, roleID)
	}
	return err
}

// RemoveUserRole drops a membership, reporting whether one existed.
func (r *Repository) RemoveUserRole(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertInheritance stores the edge, updating priority on conflict.
func (r *Repository) UpsertInheritance(ctx context.Context, edge InheritanceEdge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_inheritance (role_id, parent_id, priority)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, parent_id) DO UPDATE SET priority = EXCLUDED.priority
	`, edge.RoleID, edge.ParentID, edge.Priority)
	return err
}

// RemoveInheritance drops the edge, reporting whether one existed.
func (r *Repository) RemoveInheritance(ctx context.Context, roleID, parentID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_inheritance WHERE role_id = $1 AND parent_id = $2`, roleID, parentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRoles returns all roles ordered by priority then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListPermissions returns all permissions ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, description, category, created_at FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Key, &perm.Description, &perm.Category, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ListRoleMembers returns the user IDs directly holding the role.
func (r *Repository) ListRoleMembers(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ListGrantSubjects returns every subject holding a grant on the key.
func (r *Repository) ListGrantSubjects(ctx context.Context, key string) ([]Subject, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.subject_kind, g.subject_id
		FROM grants g
		JOIN permissions p ON p.id = g.permission_id
		WHERE p.key = $1
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []Subject
	for rows.Next() {
		var subject Subject
		if err := rows.Scan(&subject.Kind, &subject.ID); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func collectEdges(rows pgx.Rows) ([]InheritanceEdge, error) {
	var edges []InheritanceEdge
	for rows.Next() {
		var edge InheritanceEdge
		if err := rows.Scan(&edge.RoleID, &edge.ParentID, &edge.Priority); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
