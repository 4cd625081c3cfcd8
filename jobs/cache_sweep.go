package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatewarden/gatewarden/internal/authz"
)

// CacheSweepJob flushes the full decision cache on a schedule, bounding
// how long an invalidation lost between commit and enqueue can linger.
type CacheSweepJob struct {
	Cache  *authz.Cache
	Logger *slog.Logger
}

// NewCacheSweepJob wires dependencies for the sweep handler.
func NewCacheSweepJob(cache *authz.Cache, logger *slog.Logger) *CacheSweepJob {
	return &CacheSweepJob{Cache: cache, Logger: logger}
}

// Handle processes TaskCacheSweep tasks.
func (j *CacheSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("cache sweep: handler not configured")
	}
	j.Cache.Flush(ctx)
	if j.Logger != nil {
		j.Logger.Info("decision cache sweep completed")
	}
	return nil
}
