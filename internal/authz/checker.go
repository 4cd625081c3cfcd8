package authz

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/wildcard"
)

// Checker is the decision engine. It is stateless apart from the cache
// and directory it is given and safe for arbitrary concurrent callers;
// identical concurrent misses are collapsed into one directory
// resolution.
//
// A check never fails because the principal is unknown: absent data is
// "no grant" and folds into the default deny.
type Checker struct {
	dir      DirectoryReader
	resolver *Resolver
	cache    *Cache
	metrics  *observability.Metrics
	group    singleflight.Group
}

// NewChecker constructs a Checker. cache and metrics may be nil.
func NewChecker(dir DirectoryReader, resolver *Resolver, cache *Cache, metrics *observability.Metrics) *Checker {
	return &Checker{dir: dir, resolver: resolver, cache: cache, metrics: metrics}
}

// CheckUserPermission resolves whether the user holds the permission.
//
// Precedence, first hit wins (a ban hit terminates exactly like an
// allow): user exact grant, user wildcard grants most-specific first,
// then per role of the user's closure in descending priority the same
// exact-then-wildcard probing, then default deny.
func (c *Checker) CheckUserPermission(ctx context.Context, userID int64, key string) (bool, error) {
	return c.check(ctx, ScopeUser, userID, key, c.resolveUser)
}

// CheckRolePermission resolves whether the role holds the permission,
// consulting the role's own grants and then its ancestor chain
// nearest-first.
func (c *Checker) CheckRolePermission(ctx context.Context, roleID int64, key string) (bool, error) {
	return c.check(ctx, ScopeRole, roleID, key, c.resolveRole)
}

func (c *Checker) check(ctx context.Context, scope string, subjectID int64, key string, resolve func(context.Context, int64, string) (bool, error)) (bool, error) {
	if value, hit := c.cache.Get(ctx, scope, SubjectKey(subjectID), key); hit {
		c.metrics.ObserveDecision(scope, value, true)
		return value, nil
	}

	flightKey := scope + ":" + strconv.FormatInt(subjectID, 10) + ":" + key
	value, err, _ := c.group.Do(flightKey, func() (any, error) {
		granted, err := resolve(ctx, subjectID, key)
		if err != nil {
			return false, err
		}
		c.cache.Set(ctx, scope, granted, SubjectKey(subjectID), key)
		return granted, nil
	})
	if err != nil {
		return false, err
	}
	granted := value.(bool)
	c.metrics.ObserveDecision(scope, granted, false)
	return granted, nil
}

func (c *Checker) resolveUser(ctx context.Context, userID int64, key string) (bool, error) {
	subject := UserSubject(userID)
	if granted, found, err := c.probeSubject(ctx, subject, key); err != nil {
		return false, err
	} else if found {
		return granted, nil
	}

	direct, err := c.dir.GetRolesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	roleIDs := make([]int64, len(direct))
	for i, role := range direct {
		roleIDs[i] = role.ID
	}
	closure, err := c.resolver.ExpandRoleClosure(ctx, roleIDs)
	if err != nil {
		return false, err
	}
	for _, role := range closure {
		if granted, found, err := c.probeSubject(ctx, RoleSubject(role.ID), key); err != nil {
			return false, err
		} else if found {
			return granted, nil
		}
	}
	return false, nil
}

func (c *Checker) resolveRole(ctx context.Context, roleID int64, key string) (bool, error) {
	if granted, found, err := c.probeSubject(ctx, RoleSubject(roleID), key); err != nil {
		return false, err
	} else if found {
		return granted, nil
	}

	chain, err := c.resolver.ExpandInheritanceChain(ctx, roleID)
	if err != nil {
		return false, err
	}
	for _, ancestor := range chain {
		if granted, found, err := c.probeSubject(ctx, RoleSubject(ancestor.ID), key); err != nil {
			return false, err
		} else if found {
			return granted, nil
		}
	}
	return false, nil
}

// probeSubject checks the exact key and then each wildcard ancestor,
// most specific first.
func (c *Checker) probeSubject(ctx context.Context, subject Subject, key string) (granted bool, found bool, err error) {
	granted, found, err = c.dir.GetDirectGrant(ctx, subject, key)
	if err != nil || found {
		return granted, found, err
	}
	for _, pattern := range wildcard.Ancestors(key) {
		granted, found, err = c.dir.GetDirectGrant(ctx, subject, pattern)
		if err != nil || found {
			return granted, found, err
		}
	}
	return false, false, nil
}
