// Package jobs contains the asynq task definitions and worker wiring
// for cache-invalidation fan-out.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvalidateRole clears cached decisions for every principal a
	// role mutation can affect: the role's members and the roles that
	// inherit from it, transitively.
	TaskInvalidateRole = "authz:invalidate_role"
	// TaskCacheSweep flushes the whole decision cache. Scheduled as a
	// backstop against invalidations lost between commit and enqueue.
	TaskCacheSweep = "authz:cache_sweep"
)

// InvalidateRolePayload carries the mutated role.
type InvalidateRolePayload struct {
	RoleID int64 `json:"role_id"`
}

// NewInvalidateRoleTask constructs the fan-out task.
func NewInvalidateRoleTask(payload InvalidateRolePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvalidateRole, data), nil
}

// NewCacheSweepTask constructs the scheduled sweep task.
func NewCacheSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCacheSweep, nil)
}
