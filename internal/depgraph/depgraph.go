// Package depgraph implements the typed dependency graph (spec.md
// §4.4): insertion-time cycle rejection over the folded "blocks"
// relation, neighbor/BFS queries, blocked-state computation against
// per-edge unblock thresholds, and unblock-event detection after a
// role change.
package depgraph

import (
	"context"
	"strings"

	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/types"
)

// Graph is a thin, stateless façade over the Store's dependency
// tables. It holds no in-memory copy of the graph: every query reads
// the Store directly, matching spec.md §4.1's "durable, transactional
// persistence" as the single source of truth.
type Graph struct {
	store store.Store
}

func New(s store.Store) *Graph {
	return &Graph{store: s}
}

// blocksEdge is a directed edge in the folded "blocks" relation: from
// blocks to. IS_BLOCKED_BY(a, b) folds to blocks-edge b -> a;
// RELATES_TO never participates.
type blocksEdge struct {
	from, to string
}

func foldToBlocks(deps []*types.Dependency) []blocksEdge {
	var edges []blocksEdge
	for _, d := range deps {
		switch d.Type {
		case types.DepBlocks:
			edges = append(edges, blocksEdge{from: d.FromItemID, to: d.ToItemID})
		case types.DepIsBlockedBy:
			edges = append(edges, blocksEdge{from: d.ToItemID, to: d.FromItemID})
		}
	}
	return edges
}

// ValidateInsert rejects self-loops and checks that inserting
// proposed (on top of the existing graph read from the store) would
// not introduce a cycle in the folded blocks relation. Batch inserts
// are checked together: a cycle formed only by combining two proposed
// edges is caught before any write (spec.md §4.4).
func (g *Graph) ValidateInsert(ctx context.Context, proposed []*types.Dependency) error {
	for _, d := range proposed {
		if d.FromItemID == d.ToItemID {
			return types.Validation("dependency self-loop on item %s", d.FromItemID)
		}
	}
	existing, err := g.store.ListAllDependencies(ctx)
	if err != nil {
		return err
	}
	edges := append(foldToBlocks(existing), foldToBlocks(proposed)...)
	if cyclePath := findCycle(edges); cyclePath != nil {
		return types.Validation("dependency insertion would create a cycle").
			WithDetails("cycle involving %s", strings.Join(cyclePath, ","))
	}
	return nil
}

// findCycle runs DFS with a three-color visited set over edges and
// returns the first cycle found as a slice of item IDs, or nil if the
// graph is acyclic.
func findCycle(edges []blocksEdge) []string {
	adj := map[string][]string{}
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e.to)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, next := range adj[node] {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				// found the back edge; extract the cycle from path
				for i, n := range path {
					if n == next {
						cycle = append([]string{}, path[i:]...)
						cycle = append(cycle, next)
						break
					}
				}
				return true
			}
		}
		path = path[:len(path)-1]
		color[node] = black
		return false
	}

	for node := range adj {
		if color[node] == white {
			if visit(node) {
				return cycle
			}
		}
	}
	return nil
}

// Neighbors returns the single-hop dependency edges touching itemID in
// the requested direction.
func (g *Graph) Neighbors(ctx context.Context, itemID string, outgoing bool) ([]*types.Dependency, error) {
	if outgoing {
		return g.store.ListDependenciesFrom(ctx, itemID)
	}
	return g.store.ListDependenciesTo(ctx, itemID)
}

// Traverse runs a breadth-first walk from seed over the folded blocks
// relation (direction following BLOCKS edges outward), bounded by
// maxDepth, and returns the visited item IDs in discovery order
// (seed excluded).
func (g *Graph) Traverse(ctx context.Context, seed string, maxDepth int) ([]string, error) {
	deps, err := g.store.ListAllDependencies(ctx)
	if err != nil {
		return nil, err
	}
	adj := map[string][]string{}
	for _, e := range foldToBlocks(deps) {
		adj[e.from] = append(adj[e.from], e.to)
	}

	type frame struct {
		id    string
		depth int
	}
	visited := map[string]bool{seed: true}
	queue := []frame{{id: seed, depth: 0}}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, next := range adj[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			queue = append(queue, frame{id: next, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// Blocker is one unsatisfied incoming dependency: edge and blocker
// role at the moment of the query.
type Blocker struct {
	Dependency *types.Dependency
	BlockerRole types.Role
}

// Blockers returns every edge where itemID is the "blocked" side and
// the blocker's current role has not yet reached the edge's unblock
// threshold (spec.md §4.4: role ordering queue < work < review <
// terminal, blocked never satisfies a threshold). RELATES_TO edges
// never block.
func (g *Graph) Blockers(ctx context.Context, itemID string) ([]Blocker, error) {
	incoming, err := g.store.ListDependenciesTo(ctx, itemID)
	if err != nil {
		return nil, err
	}
	outgoing, err := g.store.ListDependenciesFrom(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for _, d := range outgoing {
		if d.Type == types.DepIsBlockedBy {
			incoming = append(incoming, d)
		}
	}
	var out []Blocker
	for _, d := range incoming {
		if d.Type == types.DepRelatesTo {
			continue
		}
		blockerID := d.FromItemID
		if d.Type == types.DepIsBlockedBy {
			// IS_BLOCKED_BY(item, blocker): FromItemID is item, ToItemID is blocker.
			if d.FromItemID != itemID {
				continue
			}
			blockerID = d.ToItemID
		} else if d.Type == types.DepBlocks {
			// BLOCKS(blocker, item): ToItemID is item, FromItemID is blocker.
			if d.ToItemID != itemID {
				continue
			}
			blockerID = d.FromItemID
		}
		blocker, err := g.store.GetItem(ctx, blockerID)
		if err != nil {
			return nil, err
		}
		threshold := d.EffectiveUnblockAt()
		if !blocker.Role.Reaches(threshold) {
			out = append(out, Blocker{Dependency: d, BlockerRole: blocker.Role})
		}
	}
	return out, nil
}

// IsBlocked reports whether itemID currently has at least one
// unsatisfied incoming dependency.
func (g *Graph) IsBlocked(ctx context.Context, itemID string) (bool, []Blocker, error) {
	blockers, err := g.Blockers(ctx, itemID)
	if err != nil {
		return false, nil, err
	}
	return len(blockers) > 0, blockers, nil
}

// UnblockedAfter returns the IDs of items whose dependency on
// changedItemID was their only remaining unsatisfied edge, now that
// changedItemID has moved to newRole (spec.md §4.4 "Unblock events").
// Candidates are every item depending on changedItemID; each is
// re-checked against the post-change state.
func (g *Graph) UnblockedAfter(ctx context.Context, changedItemID string, newRole types.Role) ([]string, error) {
	_ = newRole // re-checked live against current store state, not inferred from newRole alone
	asBlockerOutgoing, err := g.store.ListDependenciesFrom(ctx, changedItemID)
	if err != nil {
		return nil, err
	}
	asBlockerIncoming, err := g.store.ListDependenciesTo(ctx, changedItemID)
	if err != nil {
		return nil, err
	}

	candidates := map[string]bool{}
	for _, d := range asBlockerOutgoing {
		if d.Type == types.DepBlocks {
			candidates[d.ToItemID] = true
		}
	}
	for _, d := range asBlockerIncoming {
		if d.Type == types.DepIsBlockedBy {
			candidates[d.FromItemID] = true
		}
	}

	var out []string
	for id := range candidates {
		blocked, _, err := g.IsBlocked(ctx, id)
		if err != nil {
			return nil, err
		}
		if !blocked {
			out = append(out, id)
		}
	}
	return out, nil
}
