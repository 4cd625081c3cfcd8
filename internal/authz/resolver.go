package authz

import (
	"context"
	"errors"
	"sort"
)

// Resolver expands role inheritance. Cycle prevention is enforced on the
// write path, so a healthy directory always yields a DAG; the walks
// still carry visited sets so externally-seeded bad data truncates
// instead of looping.
type Resolver struct {
	dir DirectoryReader
}

// NewResolver constructs a Resolver over the given directory.
func NewResolver(dir DirectoryReader) *Resolver {
	return &Resolver{dir: dir}
}

// ExpandRoleClosure walks each of the given roles to its full transitive
// closure, merges the results and returns them ordered by role priority
// descending. Equal priorities have no defined relative order. Dangling
// role references are skipped. Diamond inheritance is tolerated; a role
// reachable through two paths appears once.
func (r *Resolver) ExpandRoleClosure(ctx context.Context, roleIDs []int64) ([]Role, error) {
	visited := make(map[int64]struct{}, len(roleIDs))
	closure := make([]Role, 0, len(roleIDs))

	// Iterative depth-first walk; explicit stack keeps deep graphs from
	// growing the call stack.
	stack := make([]int64, 0, len(roleIDs))
	for i := len(roleIDs) - 1; i >= 0; i-- {
		stack = append(stack, roleIDs[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		role, err := r.dir.GetRole(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		closure = append(closure, role)

		edges, err := r.dir.GetInheritanceEdges(ctx, id)
		if err != nil {
			return nil, err
		}
		for i := len(edges) - 1; i >= 0; i-- {
			if _, seen := visited[edges[i].ParentID]; !seen {
				stack = append(stack, edges[i].ParentID)
			}
		}
	}

	sort.Slice(closure, func(i, j int) bool {
		return closure[i].Priority > closure[j].Priority
	})
	return closure, nil
}

// ExpandInheritanceChain returns the ancestors of a single role,
// nearest-first: direct parents in edge-priority order, then their
// parents, and so on. The role itself is not included.
func (r *Resolver) ExpandInheritanceChain(ctx context.Context, roleID int64) ([]Role, error) {
	visited := map[int64]struct{}{roleID: {}}
	var chain []Role

	queue := []int64{roleID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		edges, err := r.dir.GetInheritanceEdges(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if _, seen := visited[edge.ParentID]; seen {
				continue
			}
			visited[edge.ParentID] = struct{}{}

			parent, err := r.dir.GetRole(ctx, edge.ParentID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			chain = append(chain, parent)
			queue = append(queue, edge.ParentID)
		}
	}
	return chain, nil
}

// Reachable reports whether target can be reached from start by
// following inheritance edges. The gateway uses it to reject edges that
// would close a cycle.
func (r *Resolver) Reachable(ctx context.Context, start, target int64) (bool, error) {
	visited := make(map[int64]struct{})
	stack := []int64{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true, nil
		}
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		edges, err := r.dir.GetInheritanceEdges(ctx, id)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			if _, seen := visited[edge.ParentID]; !seen {
				stack = append(stack, edge.ParentID)
			}
		}
	}
	return false, nil
}
