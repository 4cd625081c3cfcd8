package authz

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheNamespace = "authz"

// Scope names decisions by principal kind. Invalidation is per subject,
// so clearing one user never touches another.
const (
	ScopeUser = "user"
	ScopeRole = "role"
)

// Cache memoizes boolean decisions in Redis. It is best-effort by
// contract: every Redis failure degrades to a miss or a no-op and is
// never reported to the caller, because correctness depends only on the
// directory. A nil client is valid and behaves as an always-miss cache.
//
// Entries are not transactionally linked to the mutations that
// invalidate them; a check racing a mutation may briefly observe the
// pre-mutation answer. That window is an accepted tradeoff.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache constructs a decision cache. ttl<=0 stores entries without
// expiry.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached decision for the subject/permission pair.
func (c *Cache) Get(ctx context.Context, scope string, parts ...string) (value bool, hit bool) {
	if c == nil || c.client == nil {
		return false, false
	}
	raw, err := c.client.Get(ctx, c.key(scope, parts...)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.Warn("authz cache get", slog.Any("error", err))
		return false, false
	}
	return raw == "1", true
}

// Set stores a decision. Failures are dropped.
func (c *Cache) Set(ctx context.Context, scope string, value bool, parts ...string) {
	if c == nil || c.client == nil {
		return
	}
	payload := "0"
	if value {
		payload = "1"
	}
	if err := c.client.Set(ctx, c.key(scope, parts...), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("authz cache set", slog.Any("error", err))
	}
}

// Delete drops a single cached decision.
func (c *Cache) Delete(ctx context.Context, scope string, parts ...string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(scope, parts...)).Err(); err != nil {
		c.logger.Warn("authz cache delete", slog.Any("error", err))
	}
}

// DeleteByPrefix drops every cached decision for one subject.
func (c *Cache) DeleteByPrefix(ctx context.Context, scope string, subjectID int64) {
	if c == nil || c.client == nil {
		return
	}
	pattern := c.key(scope, strconv.FormatInt(subjectID, 10)) + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			c.logger.Warn("authz cache scan", slog.Any("error", err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("authz cache bulk delete", slog.Any("error", err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Flush drops the entire decision namespace. Used by the scheduled
// sweep job as a backstop against missed invalidations.
func (c *Cache) Flush(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, cacheNamespace+":*", 500).Result()
		if err != nil {
			c.logger.Warn("authz cache flush scan", slog.Any("error", err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("authz cache flush delete", slog.Any("error", err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (c *Cache) key(scope string, parts ...string) string {
	joined := make([]string, 0, len(parts)+2)
	joined = append(joined, cacheNamespace, scope)
	joined = append(joined, parts...)
	return strings.Join(joined, ":")
}

// SubjectKey formats a subject ID for use as a cache key part.
func SubjectKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
