package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatewarden/gatewarden/internal/authz"
)

// InvalidateRoleJob clears cached decisions downstream of a role
// mutation. The gateway already cleared the role's own scope
// synchronously; this job walks the roles that inherit from it and the
// users holding any of them, which can be arbitrarily many.
type InvalidateRoleJob struct {
	Dir    authz.DirectoryBrowser
	Cache  *authz.Cache
	Logger *slog.Logger
}

// NewInvalidateRoleJob wires dependencies for the fan-out handler.
func NewInvalidateRoleJob(dir authz.DirectoryBrowser, cache *authz.Cache, logger *slog.Logger) *InvalidateRoleJob {
	return &InvalidateRoleJob{Dir: dir, Cache: cache, Logger: logger}
}

// Handle processes TaskInvalidateRole tasks.
func (j *InvalidateRoleJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dir == nil {
		return errors.New("invalidate role: handler not configured")
	}
	var payload InvalidateRolePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	roles, err := j.affectedRoles(ctx, payload.RoleID)
	if err != nil {
		return err
	}
	cleared := 0
	for _, roleID := range roles {
		j.Cache.DeleteByPrefix(ctx, authz.ScopeRole, roleID)
		members, err := j.Dir.ListRoleMembers(ctx, roleID)
		if err != nil {
			return err
		}
		for _, userID := range members {
			j.Cache.DeleteByPrefix(ctx, authz.ScopeUser, userID)
			cleared++
		}
	}
	if j.Logger != nil {
		j.Logger.Info("role invalidation fan-out",
			slog.Int64("role_id", payload.RoleID),
			slog.Int("roles", len(roles)),
			slog.Int("users", cleared))
	}
	return nil
}

// affectedRoles returns the role itself plus every role reaching it
// through inheritance edges, visited-set guarded.
func (j *InvalidateRoleJob) affectedRoles(ctx context.Context, roleID int64) ([]int64, error) {
	visited := map[int64]struct{}{roleID: {}}
	roles := []int64{roleID}
	stack := []int64{roleID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges, err := j.Dir.GetDependentEdges(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if _, seen := visited[edge.RoleID]; seen {
				continue
			}
			visited[edge.RoleID] = struct{}{}
			roles = append(roles, edge.RoleID)
			stack = append(stack, edge.RoleID)
		}
	}
	return roles, nil
}
