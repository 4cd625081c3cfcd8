package authz

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gatewarden/gatewarden/internal/audit"
)

// Auditor records mutation audit entries.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// InvalidationEnqueuer hands role-scope invalidation fan-out to the
// background worker. Clearing a mutated role's own cached decisions
// happens synchronously; clearing the decisions of every user holding
// the role (and of roles inheriting from it) is deferred to the worker
// so large memberships do not stall the write path.
type InvalidationEnqueuer interface {
	EnqueueRoleInvalidation(ctx context.Context, roleID int64) error
}

// Service is the mutation gateway. All writes pass through it: it
// validates invariants (unique names, no duplicate memberships, no
// inheritance cycles), commits through the directory and invalidates
// the affected cache scopes after the write.
//
// Invalidation is not transactional with the write; between commit and
// invalidation a stale cached decision may still be served. That window
// is accepted and documented on Cache.
type Service struct {
	dir      Directory
	resolver *Resolver
	cache    *Cache
	auditor  Auditor
	enqueuer InvalidationEnqueuer
	logger   *slog.Logger
}

// NewService constructs the gateway. auditor and enqueuer may be nil.
func NewService(dir Directory, resolver *Resolver, cache *Cache, auditor Auditor, enqueuer InvalidationEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, resolver: resolver, cache: cache, auditor: auditor, enqueuer: enqueuer, logger: logger}
}

// CreatePermission registers a permission key. Duplicate keys fail with
// ErrAlreadyExists.
func (s *Service) CreatePermission(ctx context.Context, key, description, category string) (Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Permission{}, invalidArgumentf("permission key required")
	}
	perm, err := s.dir.CreatePermission(ctx, key, strings.TrimSpace(description), strings.TrimSpace(category))
	if err != nil {
		return Permission{}, err
	}
	s.audit(ctx, "permission.create", "permission", perm.Key, nil)
	return perm, nil
}

// DeletePermission removes the key and cascades over every grant
// referencing it, then invalidates each affected subject.
func (s *Service) DeletePermission(ctx context.Context, key string) error {
	subjects, err := s.dir.ListGrantSubjects(ctx, key)
	if err != nil {
		return err
	}
	if err := s.dir.DeletePermission(ctx, key); err != nil {
		return err
	}
	for _, subject := range subjects {
		s.invalidateSubject(ctx, subject)
	}
	s.audit(ctx, "permission.delete", "permission", key, nil)
	return nil
}

// CreateRole registers a role. Duplicate names fail with
// ErrAlreadyExists.
func (s *Service) CreateRole(ctx context.Context, name, description string, priority int, isDefault bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, invalidArgumentf("role name required")
	}
	role, err := s.dir.CreateRole(ctx, name, strings.TrimSpace(description), priority, isDefault)
	if err != nil {
		return Role{}, err
	}
	s.audit(ctx, "role.create", "role", formatID(role.ID), map[string]any{"name": role.Name, "priority": role.Priority})
	return role, nil
}

// UpdateRole mutates a role's description and priority. A priority
// change reorders closures of every holder, so the role scope is
// invalidated and fan-out enqueued.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, description string, priority int) (Role, error) {
	role, err := s.dir.UpdateRole(ctx, roleID, strings.TrimSpace(description), priority)
	if err != nil {
		return Role{}, err
	}
	s.invalidateRole(ctx, roleID)
	s.audit(ctx, "role.update", "role", formatID(roleID), map[string]any{"priority": priority})
	return role, nil
}

// DeleteRole removes the role; the directory cascades over grants,
// memberships and inheritance edges. Members and dependent roles are
// collected before the delete so their cache scopes can still be
// cleared afterwards.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	members, err := s.dir.ListRoleMembers(ctx, roleID)
	if err != nil {
		return err
	}
	dependents, err := s.dir.GetDependentEdges(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.dir.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, ScopeRole, roleID)
	for _, userID := range members {
		s.cache.DeleteByPrefix(ctx, ScopeUser, userID)
	}
	for _, edge := range dependents {
		s.invalidateRole(ctx, edge.RoleID)
	}
	s.audit(ctx, "role.delete", "role", formatID(roleID), nil)
	return nil
}

// AssignPermission upserts a grant for the subject: granted=true is an
// allow, granted=false an explicit ban. The permission record is
// created implicitly on first use, wildcard keys included. Repeating an
// assignment leaves exactly one grant.
func (s *Service) AssignPermission(ctx context.Context, subject Subject, key string, granted bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalidArgumentf("permission key required")
	}
	if err := subjectValid(subject); err != nil {
		return err
	}
	if err := s.dir.UpsertGrant(ctx, subject, key, granted); err != nil {
		return err
	}
	s.invalidateSubject(ctx, subject)
	s.audit(ctx, "grant.upsert", subject.Kind.String(), formatID(subject.ID), map[string]any{"key": key, "granted": granted})
	return nil
}

// UnassignPermission removes the grant. A missing grant is reported as
// false, not an error.
func (s *Service) UnassignPermission(ctx context.Context, subject Subject, key string) (bool, error) {
	if err := subjectValid(subject); err != nil {
		return false, err
	}
	removed, err := s.dir.DeleteGrant(ctx, subject, key)
	if err != nil || !removed {
		return removed, err
	}
	s.invalidateSubject(ctx, subject)
	s.audit(ctx, "grant.delete", subject.Kind.String(), formatID(subject.ID), map[string]any{"key": key})
	return true, nil
}

// AssignRole adds a direct membership. Assigning a role the user
// already holds fails with ErrAlreadyAssigned.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.dir.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.dir.AddUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, ScopeUser, userID)
	s.audit(ctx, "membership.add", "user", formatID(userID), map[string]any{"role_id": roleID})
	return nil
}

// UnassignRole removes a direct membership; absent memberships report
// false.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID int64) (bool, error) {
	removed, err := s.dir.RemoveUserRole(ctx, userID, roleID)
	if err != nil || !removed {
		return removed, err
	}
	s.cache.DeleteByPrefix(ctx, ScopeUser, userID)
	s.audit(ctx, "membership.remove", "user", formatID(userID), map[string]any{"role_id": roleID})
	return true, nil
}

// SetRoleInheritance upserts the edge roleID→parentID. Self-edges are
// rejected outright; other edges are rejected when roleID is already
// reachable from parentID, which would close a cycle.
func (s *Service) SetRoleInheritance(ctx context.Context, roleID, parentID int64, priority int) error {
	if roleID == parentID {
		return circularf("role %d cannot inherit from itself", roleID)
	}
	if _, err := s.dir.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.dir.GetRole(ctx, parentID); err != nil {
		return err
	}
	reachable, err := s.resolver.Reachable(ctx, parentID, roleID)
	if err != nil {
		return err
	}
	if reachable {
		return circularf("role %d already inherits from role %d", parentID, roleID)
	}
	if err := s.dir.UpsertInheritance(ctx, InheritanceEdge{RoleID: roleID, ParentID: parentID, Priority: priority}); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	s.audit(ctx, "inheritance.set", "role", formatID(roleID), map[string]any{"parent_id": parentID, "priority": priority})
	return nil
}

// RemoveRoleInheritance drops the edge; absent edges report false.
func (s *Service) RemoveRoleInheritance(ctx context.Context, roleID, parentID int64) (bool, error) {
	removed, err := s.dir.RemoveInheritance(ctx, roleID, parentID)
	if err != nil || !removed {
		return removed, err
	}
	s.invalidateRole(ctx, roleID)
	s.audit(ctx, "inheritance.remove", "role", formatID(roleID), map[string]any{"parent_id": parentID})
	return true, nil
}

// ResolveRole looks a role up by its numeric ID when ref parses as one,
// otherwise by name. The result is explicit: a role or ErrNotFound,
// never a silent fallback.
func (s *Service) ResolveRole(ctx context.Context, ref string) (Role, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Role{}, invalidArgumentf("role reference required")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.dir.GetRole(ctx, id)
	}
	return s.dir.GetRoleByName(ctx, ref)
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.dir.ListRoles(ctx)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (Role, error) {
	return s.dir.GetRole(ctx, roleID)
}

// ListPermissions returns every registered permission.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.dir.ListPermissions(ctx)
}

// InvalidateUserCache clears every cached decision for the user.
func (s *Service) InvalidateUserCache(ctx context.Context, userID int64) {
	s.cache.DeleteByPrefix(ctx, ScopeUser, userID)
}

// InvalidateRoleCache clears the role's own cached decisions and
// enqueues fan-out over its members and dependent roles.
func (s *Service) InvalidateRoleCache(ctx context.Context, roleID int64) {
	s.invalidateRole(ctx, roleID)
}

func (s *Service) invalidateSubject(ctx context.Context, subject Subject) {
	switch subject.Kind {
	case SubjectUser:
		s.cache.DeleteByPrefix(ctx, ScopeUser, subject.ID)
	case SubjectRole:
		s.invalidateRole(ctx, subject.ID)
	}
}

func (s *Service) invalidateRole(ctx context.Context, roleID int64) {
	s.cache.DeleteByPrefix(ctx, ScopeRole, roleID)
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.EnqueueRoleInvalidation(ctx, roleID); err != nil {
		s.logger.Warn("enqueue role invalidation", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func (s *Service) audit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Entry{
		ActorID:  ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func subjectValid(subject Subject) error {
	if subject.Kind != SubjectRole && subject.Kind != SubjectUser {
		return invalidArgumentf("subject kind %d is neither role nor user", subject.Kind)
	}
	if subject.ID <= 0 {
		return invalidArgumentf("subject id must be positive")
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
