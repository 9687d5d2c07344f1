// Package query implements the read-only query services of spec.md
// §4.8: search, overview, get_next_item, get_blocked_items, and
// get_context.
package query

import (
	"context"
	"sort"

	"github.com/ravelhq/ravel/internal/depgraph"
	"github.com/ravelhq/ravel/internal/gate"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/rsm"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/types"
)

// Service answers the engine's read-only query operations.
type Service struct {
	store  store.Store
	graph  *depgraph.Graph
	schema *noteschema.Registry
}

func New(s store.Store, schema *noteschema.Registry) *Service {
	return &Service{store: s, graph: depgraph.New(s), schema: schema}
}

// Search runs query_items(search) (spec.md §4.8).
func (s *Service) Search(ctx context.Context, f *types.SearchFilter) (*types.SearchResult, error) {
	items, err := s.store.FindByFilters(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountByFilters(ctx, f)
	if err != nil {
		return nil, err
	}

	result := &types.SearchResult{
		Items:    items,
		Total:    total,
		Returned: len(items),
		Limit:    f.Limit,
		Offset:   f.Offset,
	}
	if f.IncludeAncestors {
		result.Ancestors = map[string][]*types.WorkItem{}
		for _, item := range items {
			chain, err := s.store.FindAncestorChain(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			result.Ancestors[item.ID] = chain
		}
	}
	return result, nil
}

// Overview runs query_items(overview). With itemID it returns that
// single item's child-count breakdown and direct children; with an
// empty itemID it returns every root item with the same breakdown.
func (s *Service) Overview(ctx context.Context, itemID string, includeChildren bool) ([]*types.OverviewNode, error) {
	var roots []*types.WorkItem
	if itemID != "" {
		item, err := s.store.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		roots = []*types.WorkItem{item}
	} else {
		r, err := s.store.FindRootItems(ctx)
		if err != nil {
			return nil, err
		}
		roots = r
	}

	var out []*types.OverviewNode
	for _, root := range roots {
		counts, err := s.store.CountChildrenByRole(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		node := &types.OverviewNode{Item: root, ChildCounts: counts}
		if includeChildren {
			children, err := s.store.ListByParent(ctx, root.ID)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		out = append(out, node)
	}
	return out, nil
}

// GetNextItem runs get_next_item: the single most actionable item —
// not blocked or terminal, no unsatisfied blockers, highest priority,
// tie-broken leaf-first then oldest createdAt (spec.md §4.8).
func (s *Service) GetNextItem(ctx context.Context) (*types.WorkItem, error) {
	role := types.RoleQueue
	queued, err := s.store.FindByFilters(ctx, &types.SearchFilter{Role: &role, Limit: 10000})
	if err != nil {
		return nil, err
	}
	work := types.RoleWork
	working, err := s.store.FindByFilters(ctx, &types.SearchFilter{Role: &work, Limit: 10000})
	if err != nil {
		return nil, err
	}
	review := types.RoleReview
	reviewing, err := s.store.FindByFilters(ctx, &types.SearchFilter{Role: &review, Limit: 10000})
	if err != nil {
		return nil, err
	}

	candidates := append(append(queued, working...), reviewing...)

	type scored struct {
		item     *types.WorkItem
		isLeaf   bool
	}
	var actionable []scored
	for _, item := range candidates {
		blocked, _, err := s.graph.IsBlocked(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}
		children, err := s.store.ListByParent(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		actionable = append(actionable, scored{item: item, isLeaf: len(children) == 0})
	}
	if len(actionable) == 0 {
		return nil, nil
	}

	sort.SliceStable(actionable, func(i, j int) bool {
		a, b := actionable[i], actionable[j]
		if a.item.Priority.Rank() != b.item.Priority.Rank() {
			return a.item.Priority.Rank() > b.item.Priority.Rank()
		}
		if a.isLeaf != b.isLeaf {
			return a.isLeaf
		}
		return a.item.CreatedAt.Before(b.item.CreatedAt)
	})
	return actionable[0].item, nil
}

// GetBlockedItems runs get_blocked_items: every item with at least one
// unsatisfied dependency, with its blocker IDs and roles attached.
func (s *Service) GetBlockedItems(ctx context.Context) ([]*types.BlockedItem, error) {
	items, err := s.store.FindByFilters(ctx, &types.SearchFilter{Limit: 100000})
	if err != nil {
		return nil, err
	}
	var out []*types.BlockedItem
	for _, item := range items {
		blocked, blockers, err := s.graph.IsBlocked(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if !blocked {
			continue
		}
		refs := make([]types.BlockerRef, 0, len(blockers))
		for _, b := range blockers {
			blockerID := b.Dependency.FromItemID
			if b.Dependency.Type == types.DepIsBlockedBy {
				blockerID = b.Dependency.ToItemID
			}
			refs = append(refs, types.BlockerRef{
				DependencyID: b.Dependency.ID,
				BlockerID:    blockerID,
				BlockerRole:  b.BlockerRole,
				UnblockAt:    b.Dependency.EffectiveUnblockAt(),
			})
		}
		out = append(out, &types.BlockedItem{Item: item, Blockers: refs})
	}
	return out, nil
}

// Context is the get_context session-resume bundle: an item, its
// gate-evaluator result, its immediate parent/children, and its open
// blockers.
type Context struct {
	Item     *types.WorkItem
	Gate     gate.Result
	Parent   *types.WorkItem
	Children []*types.WorkItem
	Blockers []types.BlockerRef
}

// GetContext runs get_context (spec.md §4.8).
func (s *Service) GetContext(ctx context.Context, itemID string) (*Context, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, itemID)
	if err != nil {
		return nil, err
	}
	gateResult := gate.Evaluate(s.schema, item.Tags, item.Role, notes)

	var parent *types.WorkItem
	if item.ParentID != "" {
		parent, err = s.store.GetItem(ctx, item.ParentID)
		if err != nil {
			return nil, err
		}
	}
	children, err := s.store.ListByParent(ctx, itemID)
	if err != nil {
		return nil, err
	}

	_, blockers, err := s.graph.IsBlocked(ctx, itemID)
	if err != nil {
		return nil, err
	}
	refs := make([]types.BlockerRef, 0, len(blockers))
	for _, b := range blockers {
		blockerID := b.Dependency.FromItemID
		if b.Dependency.Type == types.DepIsBlockedBy {
			blockerID = b.Dependency.ToItemID
		}
		refs = append(refs, types.BlockerRef{
			DependencyID: b.Dependency.ID,
			BlockerID:    blockerID,
			BlockerRole:  b.BlockerRole,
			UnblockAt:    b.Dependency.EffectiveUnblockAt(),
		})
	}

	return &Context{
		Item:     item,
		Gate:     gateResult,
		Parent:   parent,
		Children: children,
		Blockers: refs,
	}, nil
}

// legalNextTriggers exposes rsm.LegalTriggers for get_next_status
// (internal/server wires this into the tool; kept here so query is the
// one place read-only "what can happen next" logic lives).
func legalNextTriggers(role types.Role) []types.Trigger {
	return rsm.LegalTriggers(role)
}

// NextStatusOption is one legal (trigger, destRole) pair for
// get_next_status, annotated with gate/dependency readiness.
type NextStatusOption struct {
	Trigger        types.Trigger
	DestRole       types.Role
	GateOpen       bool
	DependencyFree bool
}

// GetNextStatus returns every legal (trigger, destRole) pair RSM would
// currently allow for itemID, each annotated with whether the gate
// would be open and whether a start would be dependency-blocked
// (SPEC_FULL.md §11).
func (s *Service) GetNextStatus(ctx context.Context, itemID string) ([]NextStatusOption, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, itemID)
	if err != nil {
		return nil, err
	}
	blocked, _, err := s.graph.IsBlocked(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var out []NextStatusOption
	for _, trigger := range legalNextTriggers(item.Role) {
		destRole, err := rsm.Resolve(item.Role, trigger, item.PreviousRole)
		if err != nil {
			continue
		}
		result := gate.Evaluate(s.schema, item.Tags, destRole, notes)
		out = append(out, NextStatusOption{
			Trigger:        trigger,
			DestRole:       destRole,
			GateOpen:       result.GateStatus == gate.StatusOpen,
			DependencyFree: trigger != types.TriggerStart || !blocked,
		})
	}
	return out, nil
}
