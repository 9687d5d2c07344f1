// Package workflow implements the Workflow Service's advance_item
// protocol (spec.md §4.5): validate a role transition through the RSM
// and Gate Evaluator, check dependency blocks, then commit the state
// change, audit row, and cascade/unblock detection inside a single
// transaction.
package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravelhq/ravel/internal/depgraph"
	"github.com/ravelhq/ravel/internal/gate"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/rsm"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/telemetry"
	"github.com/ravelhq/ravel/internal/types"
)

// Request is one advance_item transition: the item to move and the
// trigger to apply, with an optional audit summary.
type Request struct {
	ItemID  string
	Trigger types.Trigger
	Summary string
}

// Result is the per-item outcome returned to the caller, matching
// spec.md §4.5 step 6.
type Result struct {
	Item            *types.WorkItem
	PreviousRole    types.Role
	NewRole         types.Role
	CascadeEvents   []*rsm.CascadeCandidate
	UnblockedItems  []string
	FlowPosition    int
	FlowSuspended   bool
}

// BatchError reports which transition in a batch failed and why,
// alongside the index so the caller can reconcile with its input.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string { return e.Err.Error() }
func (e *BatchError) Unwrap() error { return e.Err }

// Service is the Workflow Service.
type Service struct {
	store   store.Store
	graph   *depgraph.Graph
	schema  *noteschema.Registry
	metrics *telemetry.WorkflowMetrics
	tracer  trace.Tracer
}

func New(s store.Store, schema *noteschema.Registry, metrics *telemetry.WorkflowMetrics) *Service {
	return &Service{
		store:   s,
		graph:   depgraph.New(s),
		schema:  schema,
		metrics: metrics,
		tracer:  otel.Tracer(telemetry.TracerName),
	}
}

// AdvanceItem runs the single-transition protocol of spec.md §4.5.
func (svc *Service) AdvanceItem(ctx context.Context, req Request) (*Result, error) {
	ctx, span := svc.tracer.Start(ctx, "workflow.AdvanceItem")
	defer span.End()

	var result *Result
	err := svc.store.WithTransaction(ctx, func(ctx context.Context) error {
		r, err := svc.advanceOne(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceBatch applies every request in order inside one outer
// transaction. A failure at any index rolls back the whole batch and
// returns a *BatchError naming the failing index (spec.md §4.5 "Batch
// semantics").
func (svc *Service) AdvanceBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	ctx, span := svc.tracer.Start(ctx, "workflow.AdvanceBatch")
	defer span.End()

	results := make([]*Result, 0, len(reqs))
	err := svc.store.WithTransaction(ctx, func(ctx context.Context) error {
		for i, req := range reqs {
			r, err := svc.advanceOne(ctx, req)
			if err != nil {
				return &BatchError{Index: i, Err: err}
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// advanceOne implements steps 1-6 of spec.md §4.5. It assumes it is
// already running inside a transaction (the caller's WithTransaction).
func (svc *Service) advanceOne(ctx context.Context, req Request) (*Result, error) {
	// Step 1: load the item.
	item, err := svc.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	// Step 2: resolve the destination role via RSM.
	newRole, err := rsm.Resolve(item.Role, req.Trigger, item.PreviousRole)
	if err != nil {
		return nil, err
	}

	// Step 3: Gate Evaluator validates the transition into newRole.
	notes, err := svc.store.ListNotes(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if _, err := gate.Validate(svc.schema, item.Tags, newRole, notes); err != nil {
		return nil, err
	}

	// Step 4: for start, verify no dependency currently blocks the item.
	if req.Trigger == types.TriggerStart {
		blocked, blockers, err := svc.graph.IsBlocked(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if blocked {
			depErr := types.NewError(types.ErrDependencyBlocked, "item %s is blocked by %d dependency(ies)", item.ID, len(blockers))
			ids := make([]string, 0, len(blockers))
			for _, b := range blockers {
				ids = append(ids, b.Dependency.ID)
			}
			return nil, depErr.WithData("blockerIds", ids)
		}
	}

	// Step 5: commit the state change, audit row, cascade/unblock detection.
	previousRole := item.Role
	now := time.Now().UTC()
	rsm.ApplyTransition(item, newRole, now)
	if err := svc.store.UpdateItem(ctx, item, item.Version); err != nil {
		return nil, err
	}

	entityType := types.EntityTypeForDepth(item.Depth)
	if err := svc.store.RecordTransition(ctx, &types.RoleTransition{
		EntityID:       item.ID,
		EntityType:     entityType,
		FromRole:       previousRole,
		ToRole:         newRole,
		FromStatus:     string(previousRole),
		ToStatus:       item.EffectiveStatusLabel(),
		TransitionedAt: now,
		Trigger:        req.Trigger,
		Summary:        req.Summary,
	}); err != nil {
		return nil, err
	}

	cascades, err := svc.detectCascades(ctx, item, previousRole, newRole, req.Trigger)
	if err != nil {
		return nil, err
	}
	unblocked, err := svc.graph.UnblockedAfter(ctx, item.ID, newRole)
	if err != nil {
		return nil, err
	}

	if svc.metrics != nil {
		svc.metrics.Transitions.Add(ctx, 1)
		svc.metrics.Cascades.Add(ctx, int64(len(cascades)))
		svc.metrics.Unblocks.Add(ctx, int64(len(unblocked)))
	}

	pos, suspended := rsm.FlowPosition(item.Role, item.PreviousRole)
	return &Result{
		Item:           item,
		PreviousRole:   previousRole,
		NewRole:        newRole,
		CascadeEvents:  cascades,
		UnblockedItems: unblocked,
		FlowPosition:   pos,
		FlowSuspended:  suspended,
	}, nil
}

// detectCascades asks RSM whether item's transition makes its parent a
// cascade candidate, consulting the Store for sibling role counts
// (spec.md §4.2 "Cascade detection"). It never advances the parent
// itself; the result is informational only.
func (svc *Service) detectCascades(ctx context.Context, item *types.WorkItem, previousRole, newRole types.Role, trigger types.Trigger) ([]*rsm.CascadeCandidate, error) {
	if item.ParentID == "" {
		return nil, nil
	}
	parent, err := svc.store.GetItem(ctx, item.ParentID)
	if err != nil {
		return nil, err
	}

	var out []*rsm.CascadeCandidate
	if newRole == types.RoleTerminal {
		counts, err := svc.store.CountChildrenByRole(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if c := rsm.DetectCompletionCascade(parent, counts, total); c != nil {
			out = append(out, c)
		}
	}
	if previousRole == types.RoleQueue && newRole != types.RoleQueue && newRole != types.RoleBlocked {
		counts, err := svc.store.CountChildrenByRole(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		activeSiblings := 0
		for role, n := range counts {
			if role != types.RoleQueue {
				activeSiblings += n
			}
		}
		isFirst := activeSiblings == 1 // this item itself, now counted as active
		if c := rsm.DetectStartCascade(parent, isFirst); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}
