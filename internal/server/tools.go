package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ravelhq/ravel/internal/compound"
	"github.com/ravelhq/ravel/internal/types"
	"github.com/ravelhq/ravel/internal/workflow"
)

func unmarshal[T any](payload json.RawMessage, out *T) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return types.Validation("invalid request payload: %v", err)
	}
	return nil
}

// --- manage_items ---

type itemInput struct {
	ID                   string         `json:"id,omitempty"`
	ParentID             string         `json:"parentId,omitempty"`
	Title                string         `json:"title,omitempty"`
	Summary              string         `json:"summary,omitempty"`
	Description          string         `json:"description,omitempty"`
	Priority             types.Priority `json:"priority,omitempty"`
	Complexity           int            `json:"complexity,omitempty"`
	RequiresVerification bool           `json:"requiresVerification,omitempty"`
	Tags                 []string       `json:"tags,omitempty"`
	Metadata             string         `json:"metadata,omitempty"`
	StatusLabel          string         `json:"statusLabel,omitempty"`
	Version              int64          `json:"version,omitempty"`
}

type manageItemsRequest struct {
	Create    []itemInput `json:"create,omitempty"`
	Update    []itemInput `json:"update,omitempty"`
	Delete    []string    `json:"delete,omitempty"`
	Recursive bool        `json:"recursive,omitempty"`
}

func (s *Server) handleManageItems(ctx context.Context, payload json.RawMessage) (any, error) {
	var req manageItemsRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}

	var created []*types.WorkItem
	for _, in := range req.Create {
		depth := 0
		if in.ParentID != "" {
			parent, err := s.store.GetItem(ctx, in.ParentID)
			if err != nil {
				return nil, err
			}
			depth = parent.Depth + 1
		}
		if depth >= 3 {
			return nil, types.Validation("item depth %d exceeds max depth 3", depth)
		}
		item := &types.WorkItem{
			ParentID:             in.ParentID,
			Depth:                depth,
			Title:                in.Title,
			Summary:              in.Summary,
			Description:          in.Description,
			Role:                 types.RoleQueue,
			Priority:             in.Priority,
			Complexity:           in.Complexity,
			RequiresVerification: in.RequiresVerification,
			Tags:                 in.Tags,
			Metadata:             in.Metadata,
		}
		if err := s.store.CreateItem(ctx, item); err != nil {
			return nil, err
		}
		created = append(created, item)
	}

	var updated []*types.WorkItem
	for _, in := range req.Update {
		if in.ID == "" {
			return nil, types.Validation("update requires an id")
		}
		item, err := s.store.GetItem(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		applyItemPatch(item, in)
		if err := s.store.UpdateItem(ctx, item, in.Version); err != nil {
			return nil, err
		}
		updated = append(updated, item)
	}

	var deleted []string
	for _, id := range req.Delete {
		res, err := s.store.DeleteItem(ctx, id, req.Recursive)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, res.DeletedIDs...)
	}

	return map[string]any{"created": created, "updated": updated, "deleted": deleted}, nil
}

func applyItemPatch(item *types.WorkItem, in itemInput) {
	if in.Title != "" {
		item.Title = in.Title
	}
	if in.Summary != "" {
		item.Summary = in.Summary
	}
	if in.Description != "" {
		item.Description = in.Description
	}
	if in.Priority != "" {
		item.Priority = in.Priority
	}
	if in.Complexity != 0 {
		item.Complexity = in.Complexity
	}
	if in.Tags != nil {
		item.Tags = in.Tags
	}
	if in.Metadata != "" {
		item.Metadata = in.Metadata
	}
	if in.StatusLabel != "" {
		item.StatusLabel = in.StatusLabel
	}
	item.RequiresVerification = in.RequiresVerification
}

// --- query_items ---

type queryItemsRequest struct {
	Op               string         `json:"op"` // get|search|overview
	ID               string         `json:"id,omitempty"`
	ParentID         *string        `json:"parentId,omitempty"`
	Depth            *int           `json:"depth,omitempty"`
	Role             *types.Role    `json:"role,omitempty"`
	Priority         *types.Priority `json:"priority,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Query            string         `json:"query,omitempty"`
	SortBy           types.SortField `json:"sortBy,omitempty"`
	SortDir          types.SortDir  `json:"sortDir,omitempty"`
	Limit            int            `json:"limit,omitempty"`
	Offset           int            `json:"offset,omitempty"`
	IncludeAncestors bool           `json:"includeAncestors,omitempty"`
	IncludeChildren  bool           `json:"includeChildren,omitempty"`
	CreatedAfter     string         `json:"createdAfter,omitempty"`
	CreatedBefore    string         `json:"createdBefore,omitempty"`
}

func parseRFC3339(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (s *Server) handleQueryItems(ctx context.Context, payload json.RawMessage) (any, error) {
	var req queryItemsRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	switch req.Op {
	case "get":
		return s.store.GetItem(ctx, req.ID)
	case "overview":
		return s.query.Overview(ctx, req.ID, req.IncludeChildren)
	case "search", "":
		createdAfter, err := parseRFC3339(req.CreatedAfter)
		if err != nil {
			return nil, types.Validation("invalid createdAfter: %v", err)
		}
		createdBefore, err := parseRFC3339(req.CreatedBefore)
		if err != nil {
			return nil, types.Validation("invalid createdBefore: %v", err)
		}
		filter := &types.SearchFilter{
			ParentID:         req.ParentID,
			Depth:            req.Depth,
			Role:             req.Role,
			Priority:         req.Priority,
			Tags:             req.Tags,
			Query:            req.Query,
			Created:          types.TimeWindow{After: createdAfter, Before: createdBefore},
			SortBy:           req.SortBy,
			SortDir:          req.SortDir,
			Limit:            req.Limit,
			Offset:           req.Offset,
			IncludeAncestors: req.IncludeAncestors,
		}
		return s.query.Search(ctx, filter)
	default:
		return nil, types.Validation("unknown query_items op %q", req.Op)
	}
}

// --- manage_notes ---

type manageNotesRequest struct {
	Upsert []struct {
		ItemID string     `json:"itemId"`
		Key    string     `json:"key"`
		Role   types.Role `json:"role,omitempty"`
		Body   string     `json:"body"`
	} `json:"upsert,omitempty"`
	Delete []string `json:"delete,omitempty"`
}

func (s *Server) handleManageNotes(ctx context.Context, payload json.RawMessage) (any, error) {
	var req manageNotesRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	var upserted []*types.Note
	for _, u := range req.Upsert {
		n, err := s.store.UpsertNote(ctx, u.ItemID, u.Key, u.Role, u.Body)
		if err != nil {
			return nil, err
		}
		upserted = append(upserted, n)
	}
	for _, id := range req.Delete {
		if err := s.store.DeleteNote(ctx, id); err != nil {
			return nil, err
		}
	}
	return map[string]any{"upserted": upserted, "deleted": req.Delete}, nil
}

// --- query_notes ---

type queryNotesRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) handleQueryNotes(ctx context.Context, payload json.RawMessage) (any, error) {
	var req queryNotesRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, req.ItemID)
}

// --- manage_dependencies ---

type depInput struct {
	FromID    string            `json:"fromId"`
	ToID      string            `json:"toId"`
	Type      types.DependencyType `json:"type"`
	UnblockAt types.Role        `json:"unblockAt,omitempty"`
}

type manageDependenciesRequest struct {
	Create []depInput `json:"create,omitempty"`
	// Pattern expands a linear chain, fan-out, or fan-in of edges over
	// ItemIDs without requiring the caller to enumerate every pair
	// (SPEC_FULL.md §11).
	Pattern *struct {
		Kind      string   `json:"kind"` // linear|fan-out|fan-in
		ItemIDs   []string `json:"itemIds"`
		HubID     string   `json:"hubId,omitempty"` // for fan-out/fan-in
		UnblockAt types.Role `json:"unblockAt,omitempty"`
	} `json:"pattern,omitempty"`
	Delete []string `json:"delete,omitempty"`
}

func (s *Server) handleManageDependencies(ctx context.Context, payload json.RawMessage) (any, error) {
	var req manageDependenciesRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}

	var proposed []*types.Dependency
	for _, d := range req.Create {
		proposed = append(proposed, &types.Dependency{FromItemID: d.FromID, ToItemID: d.ToID, Type: d.Type, UnblockAt: d.UnblockAt})
	}
	if req.Pattern != nil {
		expanded, err := expandDependencyPattern(*req.Pattern)
		if err != nil {
			return nil, err
		}
		proposed = append(proposed, expanded...)
	}

	var created []*types.Dependency
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		if len(proposed) > 0 {
			if err := s.graph.ValidateInsert(ctx, proposed); err != nil {
				return err
			}
			if err := s.store.CreateDependencies(ctx, proposed); err != nil {
				return err
			}
			created = proposed
		}

		for _, id := range req.Delete {
			if err := s.store.DeleteDependency(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": created, "deleted": req.Delete}, nil
}

func expandDependencyPattern(p struct {
	Kind      string   `json:"kind"`
	ItemIDs   []string `json:"itemIds"`
	HubID     string   `json:"hubId,omitempty"`
	UnblockAt types.Role `json:"unblockAt,omitempty"`
}) ([]*types.Dependency, error) {
	var out []*types.Dependency
	switch p.Kind {
	case "linear":
		for i := 0; i+1 < len(p.ItemIDs); i++ {
			out = append(out, &types.Dependency{FromItemID: p.ItemIDs[i], ToItemID: p.ItemIDs[i+1], Type: types.DepBlocks, UnblockAt: p.UnblockAt})
		}
	case "fan-out":
		if p.HubID == "" {
			return nil, types.Validation("fan-out pattern requires hubId")
		}
		for _, id := range p.ItemIDs {
			out = append(out, &types.Dependency{FromItemID: p.HubID, ToItemID: id, Type: types.DepBlocks, UnblockAt: p.UnblockAt})
		}
	case "fan-in":
		if p.HubID == "" {
			return nil, types.Validation("fan-in pattern requires hubId")
		}
		for _, id := range p.ItemIDs {
			out = append(out, &types.Dependency{FromItemID: id, ToItemID: p.HubID, Type: types.DepBlocks, UnblockAt: p.UnblockAt})
		}
	default:
		return nil, types.Validation("unknown dependency pattern %q", p.Kind)
	}
	return out, nil
}

// --- query_dependencies ---

type queryDependenciesRequest struct {
	ItemID    string `json:"itemId"`
	Direction string `json:"direction,omitempty"` // from|to|all
	Traverse  bool   `json:"traverse,omitempty"`
	MaxDepth  int    `json:"maxDepth,omitempty"`
}

func (s *Server) handleQueryDependencies(ctx context.Context, payload json.RawMessage) (any, error) {
	var req queryDependenciesRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	if req.Traverse {
		if req.MaxDepth <= 0 {
			req.MaxDepth = 10
		}
		return s.graph.Traverse(ctx, req.ItemID, req.MaxDepth)
	}
	switch req.Direction {
	case "to":
		return s.store.ListDependenciesTo(ctx, req.ItemID)
	case "all":
		from, err := s.store.ListDependenciesFrom(ctx, req.ItemID)
		if err != nil {
			return nil, err
		}
		to, err := s.store.ListDependenciesTo(ctx, req.ItemID)
		if err != nil {
			return nil, err
		}
		return append(from, to...), nil
	default:
		return s.store.ListDependenciesFrom(ctx, req.ItemID)
	}
}

// --- advance_item ---

type advanceItemRequest struct {
	ItemID      string               `json:"itemId,omitempty"`
	Trigger     types.Trigger        `json:"trigger,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Transitions []workflowTransition `json:"transitions,omitempty"`
}

type workflowTransition struct {
	ItemID  string        `json:"itemId"`
	Trigger types.Trigger `json:"trigger"`
	Summary string        `json:"summary,omitempty"`
}

func (s *Server) handleAdvanceItem(ctx context.Context, payload json.RawMessage) (any, error) {
	var req advanceItemRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	if len(req.Transitions) > 0 {
		reqs := make([]workflow.Request, 0, len(req.Transitions))
		for _, t := range req.Transitions {
			reqs = append(reqs, workflow.Request{ItemID: t.ItemID, Trigger: t.Trigger, Summary: t.Summary})
		}
		results, err := s.workflow.AdvanceBatch(ctx, reqs)
		if err != nil {
			return nil, err
		}
		return results, nil
	}
	if req.ItemID == "" {
		return nil, types.Validation("advance_item requires itemId and trigger, or a transitions batch")
	}
	return s.workflow.AdvanceItem(ctx, workflow.Request{ItemID: req.ItemID, Trigger: req.Trigger, Summary: req.Summary})
}

// --- get_next_status ---

type itemIDRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) handleGetNextStatus(ctx context.Context, payload json.RawMessage) (any, error) {
	var req itemIDRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return s.query.GetNextStatus(ctx, req.ItemID)
}

// --- get_next_item ---

func (s *Server) handleGetNextItem(ctx context.Context, payload json.RawMessage) (any, error) {
	return s.query.GetNextItem(ctx)
}

// --- get_blocked_items ---

func (s *Server) handleGetBlockedItems(ctx context.Context, payload json.RawMessage) (any, error) {
	return s.query.GetBlockedItems(ctx)
}

// --- create_work_tree ---

type createWorkTreeRequest struct {
	Root        itemInput  `json:"root"`
	ParentID    string     `json:"parentId,omitempty"`
	Children    []struct {
		Ref string `json:"ref"`
		itemInput
	} `json:"children,omitempty"`
	Deps []struct {
		FromRef   string               `json:"fromRef"`
		ToRef     string               `json:"toRef"`
		Type      types.DependencyType `json:"type"`
		UnblockAt types.Role           `json:"unblockAt,omitempty"`
	} `json:"deps,omitempty"`
	CreateNotes bool `json:"createNotes,omitempty"`
}

func (s *Server) handleCreateWorkTree(ctx context.Context, payload json.RawMessage) (any, error) {
	var req createWorkTreeRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}

	children := make([]compound.ItemSpec, 0, len(req.Children))
	for _, c := range req.Children {
		children = append(children, itemInputToSpec(c.Ref, c.itemInput))
	}
	deps := make([]compound.DepSpec, 0, len(req.Deps))
	for _, d := range req.Deps {
		deps = append(deps, compound.DepSpec{FromRef: d.FromRef, ToRef: d.ToRef, Type: d.Type, UnblockAt: d.UnblockAt})
	}

	return s.compound.CreateWorkTree(ctx, compound.CreateTreeRequest{
		Root:        itemInputToSpec("root", req.Root),
		ParentID:    req.ParentID,
		Children:    children,
		Deps:        deps,
		CreateNotes: req.CreateNotes,
	})
}

func itemInputToSpec(ref string, in itemInput) compound.ItemSpec {
	return compound.ItemSpec{
		Ref:                  ref,
		Title:                in.Title,
		Summary:              in.Summary,
		Description:          in.Description,
		Priority:             in.Priority,
		Complexity:           in.Complexity,
		RequiresVerification: in.RequiresVerification,
		Tags:                 in.Tags,
		Metadata:             in.Metadata,
	}
}

// --- complete_tree ---

type completeTreeRequest struct {
	RootIDs         []string `json:"rootIds"`
	Mode            string   `json:"mode"` // complete|cancel
	CleanupChildren bool     `json:"cleanupChildren,omitempty"`
}

func (s *Server) handleCompleteTree(ctx context.Context, payload json.RawMessage) (any, error) {
	var req completeTreeRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	mode := compound.ModeComplete
	if req.Mode == string(compound.ModeCancel) {
		mode = compound.ModeCancel
	}
	return s.compound.CompleteTree(ctx, compound.CompleteTreeRequest{
		RootIDs:         req.RootIDs,
		Mode:            mode,
		CleanupChildren: req.CleanupChildren,
	})
}

// --- get_context ---

func (s *Server) handleGetContext(ctx context.Context, payload json.RawMessage) (any, error) {
	var req itemIDRequest
	if err := unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return s.query.GetContext(ctx, req.ItemID)
}
