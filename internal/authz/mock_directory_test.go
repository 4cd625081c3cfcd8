package authz

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// mockDirectory is an in-memory Directory used across the package
// tests. Edge queries are counted so tests can assert that validation
// short-circuits without a graph walk.
type mockDirectory struct {
	roles       map[int64]Role
	rolesByName map[string]int64
	nextRoleID  int64

	perms      map[string]Permission
	nextPermID int64

	grants    map[string]bool
	userRoles map[int64]map[int64]time.Time
	edges     map[int64][]InheritanceEdge

	edgeQueries int

	grantErr error
	roleErr  error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		roles:       make(map[int64]Role),
		rolesByName: make(map[string]int64),
		nextRoleID:  1,
		perms:       make(map[string]Permission),
		nextPermID:  1,
		grants:      make(map[string]bool),
		userRoles:   make(map[int64]map[int64]time.Time),
		edges:       make(map[int64][]InheritanceEdge),
	}
}

func grantKey(subject Subject, key string) string {
	return fmt.Sprintf("%d:%d:%s", subject.Kind, subject.ID, key)
}

func (m *mockDirectory) GetDirectGrant(_ context.Context, subject Subject, key string) (bool, bool, error) {
	if m.grantErr != nil {
		return false, false, m.grantErr
	}
	granted, found := m.grants[grantKey(subject, key)]
	return granted, found, nil
}

func (m *mockDirectory) GetRolesOf(_ context.Context, userID int64) ([]Role, error) {
	var roles []Role
	for roleID := range m.userRoles[userID] {
		if role, ok := m.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *mockDirectory) GetRole(_ context.Context, roleID int64) (Role, error) {
	if m.roleErr != nil {
		return Role{}, m.roleErr
	}
	role, ok := m.roles[roleID]
	if !ok {
		return Role{}, notFoundf("role %d", roleID)
	}
	return role, nil
}

func (m *mockDirectory) GetRoleByName(_ context.Context, name string) (Role, error) {
	id, ok := m.rolesByName[name]
	if !ok {
		return Role{}, notFoundf("role %q", name)
	}
	return m.roles[id], nil
}

func (m *mockDirectory) GetInheritanceEdges(_ context.Context, roleID int64) ([]InheritanceEdge, error) {
	m.edgeQueries++
	edges := append([]InheritanceEdge(nil), m.edges[roleID]...)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Priority > edges[j].Priority })
	return edges, nil
}

func (m *mockDirectory) GetDependentEdges(_ context.Context, parentID int64) ([]InheritanceEdge, error) {
	var dependents []InheritanceEdge
	for _, edges := range m.edges {
		for _, edge := range edges {
			if edge.ParentID == parentID {
				dependents = append(dependents, edge)
			}
		}
	}
	return dependents, nil
}

func (m *mockDirectory) CreateRole(_ context.Context, name, description string, priority int, isDefault bool) (Role, error) {
	if _, exists := m.rolesByName[name]; exists {
		return Role{}, alreadyExistsf("role %q", name)
	}
	role := Role{
		ID:          m.nextRoleID,
		Name:        name,
		Description: description,
		Priority:    priority,
		IsDefault:   isDefault,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.nextRoleID++
	m.roles[role.ID] = role
	m.rolesByName[name] = role.ID
	return role, nil
}

func (m *mockDirectory) UpdateRole(_ context.Context, roleID int64, description string, priority int) (Role, error) {
	role, ok := m.roles[roleID]
	if !ok {
		return Role{}, notFoundf("role %d", roleID)
	}
	role.Description = description
	role.Priority = priority
	role.UpdatedAt = time.Now()
	m.roles[roleID] = role
	return role, nil
}

func (m *mockDirectory) DeleteRole(_ context.Context, roleID int64) error {
	role, ok := m.roles[roleID]
	if !ok {
		return notFoundf("role %d", roleID)
	}
	delete(m.roles, roleID)
	delete(m.rolesByName, role.Name)
	delete(m.edges, roleID)
	for id, edges := range m.edges {
		kept := edges[:0]
		for _, edge := range edges {
			if edge.ParentID != roleID {
				kept = append(kept, edge)
			}
		}
		m.edges[id] = kept
	}
	for _, held := range m.userRoles {
		delete(held, roleID)
	}
	subject := RoleSubject(roleID)
	for key := range m.grants {
		if len(key) > 0 {
			var kind SubjectKind
			var id int64
			var perm string
			fmt.Sscanf(key, "%d:%d:%s", &kind, &id, &perm)
			if kind == subject.Kind && id == subject.ID {
				delete(m.grants, key)
			}
		}
	}
	return nil
}

func (m *mockDirectory) CreatePermission(_ context.Context, key, description, category string) (Permission, error) {
	if _, exists := m.perms[key]; exists {
		return Permission{}, alreadyExistsf("permission %q", key)
	}
	perm := Permission{ID: m.nextPermID, Key: key, Description: description, Category: category, CreatedAt: time.Now()}
	m.nextPermID++
	m.perms[key] = perm
	return perm, nil
}

func (m *mockDirectory) GetPermission(_ context.Context, key string) (Permission, error) {
	perm, ok := m.perms[key]
	if !ok {
		return Permission{}, notFoundf("permission %q", key)
	}
	return perm, nil
}

func (m *mockDirectory) DeletePermission(_ context.Context, key string) error {
	if _, ok := m.perms[key]; !ok {
		return notFoundf("permission %q", key)
	}
	delete(m.perms, key)
	suffix := ":" + key
	for gk := range m.grants {
		if len(gk) >= len(suffix) && gk[len(gk)-len(suffix):] == suffix {
			delete(m.grants, gk)
		}
	}
	return nil
}

func (m *mockDirectory) UpsertGrant(_ context.Context, subject Subject, key string, granted bool) error {
	if _, exists := m.perms[key]; !exists {
		perm := Permission{ID: m.nextPermID, Key: key, CreatedAt: time.Now()}
		m.nextPermID++
		m.perms[key] = perm
	}
	m.grants[grantKey(subject, key)] = granted
	return nil
}

func (m *mockDirectory) DeleteGrant(_ context.Context, subject Subject, key string) (bool, error) {
	gk := grantKey(subject, key)
	if _, found := m.grants[gk]; !found {
		return false, nil
	}
	delete(m.grants, gk)
	return true, nil
}

func (m *mockDirectory) AddUserRole(_ context.Context, userID, roleID int64) error {
	held := m.userRoles[userID]
	if held == nil {
		held = make(map[int64]time.Time)
		m.userRoles[userID] = held
	}
	if _, exists := held[roleID]; exists {
		return alreadyAssignedf("user %d already holds role %d", userID, roleID)
	}
	held[roleID] = time.Now()
	return nil
}

func (m *mockDirectory) RemoveUserRole(_ context.Context, userID, roleID int64) (bool, error) {
	held := m.userRoles[userID]
	if _, exists := held[roleID]; !exists {
		return false, nil
	}
	delete(held, roleID)
	return true, nil
}

func (m *mockDirectory) UpsertInheritance(_ context.Context, edge InheritanceEdge) error {
	edges := m.edges[edge.RoleID]
	for i, existing := range edges {
		if existing.ParentID == edge.ParentID {
			edges[i].Priority = edge.Priority
			return nil
		}
	}
	m.edges[edge.RoleID] = append(edges, edge)
	return nil
}

func (m *mockDirectory) RemoveInheritance(_ context.Context, roleID, parentID int64) (bool, error) {
	edges := m.edges[roleID]
	for i, edge := range edges {
		if edge.ParentID == parentID {
			m.edges[roleID] = append(edges[:i], edges[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDirectory) ListRoles(_ context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Priority > roles[j].Priority })
	return roles, nil
}

func (m *mockDirectory) ListPermissions(_ context.Context) ([]Permission, error) {
	perms := make([]Permission, 0, len(m.perms))
	for _, perm := range m.perms {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })
	return perms, nil
}

func (m *mockDirectory) ListRoleMembers(_ context.Context, roleID int64) ([]int64, error) {
	var members []int64
	for userID, held := range m.userRoles {
		if _, ok := held[roleID]; ok {
			members = append(members, userID)
		}
	}
	return members, nil
}

func (m *mockDirectory) ListGrantSubjects(_ context.Context, key string) ([]Subject, error) {
	var subjects []Subject
	for gk := range m.grants {
		var kind SubjectKind
		var id int64
		var perm string
		fmt.Sscanf(gk, "%d:%d:%s", &kind, &id, &perm)
		if perm == key {
			subjects = append(subjects, Subject{Kind: kind, ID: id})
		}
	}
	return subjects, nil
}
