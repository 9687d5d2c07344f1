// Package compound implements the atomic compound operations of
// spec.md §4.6: create_work_tree (build a whole subtree in one
// transaction) and complete_tree (topologically-ordered batch
// complete/cancel with partial-commit rollback policy).
package compound

import (
	"context"
	"fmt"
	"sort"

	"github.com/ravelhq/ravel/internal/depgraph"
	"github.com/ravelhq/ravel/internal/idgen"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/types"
	"github.com/ravelhq/ravel/internal/workflow"
)

const maxDepth = 3

// ItemSpec is one node (root or child) supplied to CreateWorkTree.
type ItemSpec struct {
	Ref                   string
	Title                 string
	Summary               string
	Description           string
	Priority              types.Priority
	Complexity            int
	RequiresVerification  bool
	Tags                  []string
	Metadata              string
}

// DepSpec references items in a CreateWorkTree request by ref; "root"
// always resolves to the tree's root item.
type DepSpec struct {
	Type      types.DependencyType
	FromRef   string
	ToRef     string
	UnblockAt types.Role
}

// CreateTreeRequest is the create_work_tree input (spec.md §4.6.1).
type CreateTreeRequest struct {
	Root        ItemSpec
	ParentID    string
	Children    []ItemSpec
	Deps        []DepSpec
	CreateNotes bool
}

// CreateTreeResult is the create_work_tree output: every created item
// keyed by ref (root keyed by "root"), the resolved dependency list,
// and the notes created per item ref.
type CreateTreeResult struct {
	ItemsByRef map[string]*types.WorkItem
	Deps       []*types.Dependency
	NotesByRef map[string][]*types.Note
}

// Service wires the Store and Workflow Service for the two compound
// operations.
type Service struct {
	store    store.Store
	graph    *depgraph.Graph
	schema   *noteschema.Registry
	workflow *workflow.Service
}

func New(s store.Store, schema *noteschema.Registry, wf *workflow.Service) *Service {
	return &Service{store: s, graph: depgraph.New(s), schema: schema, workflow: wf}
}

// CreateWorkTree materializes a root item, its children, their
// dependencies, and optional blank schema-derived notes, all inside
// one transaction (spec.md §4.6.1).
func (s *Service) CreateWorkTree(ctx context.Context, req CreateTreeRequest) (*CreateTreeResult, error) {
	rootDepth := 0
	var parent *types.WorkItem
	if req.ParentID != "" {
		p, err := s.store.GetItem(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		parent = p
		rootDepth = parent.Depth + 1
	}
	if rootDepth >= maxDepth {
		return nil, types.Validation("root depth %d exceeds max depth %d", rootDepth, maxDepth)
	}
	childDepth := rootDepth + 1
	if len(req.Children) > 0 && childDepth >= maxDepth {
		return nil, types.Validation("child depth %d exceeds max depth %d; remove children or raise the root", childDepth, maxDepth)
	}

	if err := validateRefs(req.Children); err != nil {
		return nil, err
	}

	var result *CreateTreeResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		root := newWorkItem(req.Root, req.ParentID, rootDepth)
		if err := s.store.CreateItem(ctx, root); err != nil {
			return err
		}

		itemsByRef := map[string]*types.WorkItem{"root": root}
		var children []*types.WorkItem
		for _, cs := range req.Children {
			child := newWorkItem(cs, root.ID, childDepth)
			children = append(children, child)
			itemsByRef[cs.Ref] = child
		}
		if len(children) > 0 {
			if err := s.store.CreateItems(ctx, children); err != nil {
				return err
			}
		}

		deps, err := resolveDeps(req.Deps, itemsByRef)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			if err := s.graph.ValidateInsert(ctx, deps); err != nil {
				return err
			}
			if err := s.store.CreateDependencies(ctx, deps); err != nil {
				return err
			}
		}

		notesByRef := map[string][]*types.Note{}
		if req.CreateNotes {
			for ref, item := range itemsByRef {
				entries := s.schema.EntriesForTags(item.Tags)
				for _, e := range entries {
					n, err := s.store.UpsertNote(ctx, item.ID, e.Key, e.Role, "")
					if err != nil {
						return err
					}
					notesByRef[ref] = append(notesByRef[ref], n)
				}
			}
		}

		result = &CreateTreeResult{ItemsByRef: itemsByRef, Deps: deps, NotesByRef: notesByRef}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateRefs(children []ItemSpec) error {
	seen := map[string]bool{}
	for _, c := range children {
		if c.Ref == "" {
			return types.Validation("child item is missing a ref")
		}
		if c.Ref == "root" {
			return types.Validation("child ref %q collides with the reserved \"root\" ref", c.Ref)
		}
		if seen[c.Ref] {
			return types.Validation("duplicate child ref %q", c.Ref)
		}
		seen[c.Ref] = true
	}
	return nil
}

func resolveDeps(specs []DepSpec, itemsByRef map[string]*types.WorkItem) ([]*types.Dependency, error) {
	var out []*types.Dependency
	for _, d := range specs {
		from, ok := itemsByRef[d.FromRef]
		if !ok {
			return nil, types.Validation("dependency references unknown ref %q", d.FromRef)
		}
		to, ok := itemsByRef[d.ToRef]
		if !ok {
			return nil, types.Validation("dependency references unknown ref %q", d.ToRef)
		}
		if !d.Type.Valid() {
			return nil, types.Validation("invalid dependency type %q", d.Type)
		}
		out = append(out, &types.Dependency{
			FromItemID: from.ID,
			ToItemID:   to.ID,
			Type:       d.Type,
			UnblockAt:  d.UnblockAt,
		})
	}
	return out, nil
}

func newWorkItem(spec ItemSpec, parentID string, depth int) *types.WorkItem {
	return &types.WorkItem{
		ID:                   idgen.New(),
		ParentID:             parentID,
		Depth:                depth,
		Title:                spec.Title,
		Summary:              spec.Summary,
		Description:          spec.Description,
		Role:                 types.RoleQueue,
		Priority:             spec.Priority,
		Complexity:           spec.Complexity,
		RequiresVerification: spec.RequiresVerification,
		Tags:                 spec.Tags,
		Metadata:             spec.Metadata,
	}
}

// CompleteMode selects whether CompleteTree drives items to completion
// or cancellation.
type CompleteMode string

const (
	ModeComplete CompleteMode = "complete"
	ModeCancel   CompleteMode = "cancel"
)

// CompleteTreeRequest is the complete_tree input (spec.md §4.6.2).
type CompleteTreeRequest struct {
	RootIDs        []string
	Mode           CompleteMode
	CleanupChildren bool
}

// ItemOutcome records the per-item result of a CompleteTree pass.
type ItemOutcome struct {
	ItemID string
	Err    error
}

// CompleteTreeResult is the complete_tree output: every item that
// transitioned, the first failure encountered (if any, per the
// partial-commit policy), and any items deleted by the optional
// cleanup step.
type CompleteTreeResult struct {
	Succeeded []string
	Failed    *ItemOutcome
	Deleted   []string
}

// CompleteTree walks each root's subtree in dependency order and
// attempts the requested transition on each item through the Workflow
// Service. On the first failure it halts and returns what already
// committed (spec.md §4.6.2: "the rollback policy is partial-commit").
func (s *Service) CompleteTree(ctx context.Context, req CompleteTreeRequest) (*CompleteTreeResult, error) {
	trigger := types.TriggerComplete
	if req.Mode == ModeCancel {
		trigger = types.TriggerCancel
	}

	var allIDs []string
	for _, rootID := range req.RootIDs {
		ids, err := s.collectSubtree(ctx, rootID)
		if err != nil {
			return nil, err
		}
		allIDs = append(allIDs, ids...)
	}

	ordered, err := s.topoOrder(ctx, allIDs)
	if err != nil {
		return nil, err
	}

	result := &CompleteTreeResult{}
	for _, id := range ordered {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			result.Failed = &ItemOutcome{ItemID: id, Err: err}
			return result, nil
		}
		if item.Role == types.RoleTerminal {
			continue
		}
		if trigger == types.TriggerComplete && item.Role == types.RoleQueue {
			// complete is only legal from work or review, so a queued item is started first.
			if _, err := s.workflow.AdvanceItem(ctx, workflow.Request{ItemID: id, Trigger: types.TriggerStart}); err != nil {
				result.Failed = &ItemOutcome{ItemID: id, Err: err}
				return result, nil
			}
		}
		if _, err := s.workflow.AdvanceItem(ctx, workflow.Request{ItemID: id, Trigger: trigger}); err != nil {
			result.Failed = &ItemOutcome{ItemID: id, Err: err}
			return result, nil
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	if req.CleanupChildren {
		deleted, err := s.cleanupChildren(ctx, req.RootIDs)
		if err != nil {
			return result, err
		}
		result.Deleted = deleted
	}

	return result, nil
}

// collectSubtree returns rootID plus every descendant, breadth-first.
func (s *Service) collectSubtree(ctx context.Context, rootID string) ([]string, error) {
	ids := []string{rootID}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := s.store.ListByParent(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			ids = append(ids, c.ID)
			queue = append(queue, c.ID)
		}
	}
	return ids, nil
}

// topoOrder sorts ids so that, for any BLOCKS/IS_BLOCKED_BY edge
// within the set, the blocker is completed before the item it blocks
// (spec.md §4.6.2). Items outside any such edge keep a stable,
// leaves-first order (deepest items first) as the tiebreak.
func (s *Service) topoOrder(ctx context.Context, ids []string) ([]string, error) {
	inSet := map[string]bool{}
	for _, id := range ids {
		inSet[id] = true
	}
	deps, err := s.store.ListAllDependencies(ctx)
	if err != nil {
		return nil, err
	}

	// blockerOf[x] = set of ids that must complete before x, restricted to inSet.
	blockerOf := map[string]map[string]bool{}
	for _, id := range ids {
		blockerOf[id] = map[string]bool{}
	}
	for _, d := range deps {
		switch d.Type {
		case types.DepBlocks:
			if inSet[d.FromItemID] && inSet[d.ToItemID] {
				blockerOf[d.ToItemID][d.FromItemID] = true
			}
		case types.DepIsBlockedBy:
			if inSet[d.FromItemID] && inSet[d.ToItemID] {
				blockerOf[d.FromItemID][d.ToItemID] = true
			}
		}
	}

	items := make(map[string]*types.WorkItem, len(ids))
	for _, id := range ids {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		items[id] = item
	}

	sorted := append([]string{}, ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return items[sorted[i]].Depth > items[sorted[j]].Depth // leaves first
	})

	var out []string
	placed := map[string]bool{}
	for len(out) < len(sorted) {
		progressed := false
		for _, id := range sorted {
			if placed[id] {
				continue
			}
			ready := true
			for b := range blockerOf[id] {
				if !placed[b] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, id)
				placed[id] = true
				progressed = true
			}
		}
		if !progressed {
			// A residual cycle among items already in the store (created
			// before this batch's dep validation existed, or via direct
			// store access) would otherwise loop forever; fail loudly.
			return nil, types.NewError(types.ErrDependency, "complete_tree: dependency cycle detected among %v", remaining(sorted, placed))
		}
	}
	return out, nil
}

func remaining(ids []string, placed map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}

// cleanupChildren deletes terminal, non-preserved children under each
// completed root, skipping items whose tags intersect the configured
// preserve-on-cleanup set (spec.md §4.6.2).
func (s *Service) cleanupChildren(ctx context.Context, rootIDs []string) ([]string, error) {
	var deleted []string
	for _, rootID := range rootIDs {
		children, err := s.store.ListByParent(ctx, rootID)
		if err != nil {
			return deleted, err
		}
		for _, child := range children {
			if child.Role != types.RoleTerminal {
				continue
			}
			if preserved(s.schema, child.Tags) {
				continue
			}
			res, err := s.store.DeleteItem(ctx, child.ID, true)
			if err != nil {
				return deleted, fmt.Errorf("cleanup children of %s: %w", rootID, err)
			}
			deleted = append(deleted, res.DeletedIDs...)
		}
	}
	return deleted, nil
}

func preserved(schema *noteschema.Registry, tags []string) bool {
	for _, t := range tags {
		if schema.PreservesOnCleanup(t) {
			return true
		}
	}
	return false
}
