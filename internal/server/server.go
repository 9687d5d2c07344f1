package server

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/ravelhq/ravel/internal/compound"
	"github.com/ravelhq/ravel/internal/depgraph"
	"github.com/ravelhq/ravel/internal/diag"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/query"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/telemetry"
	"github.com/ravelhq/ravel/internal/types"
	"github.com/ravelhq/ravel/internal/workflow"
)

// Handler processes one tool call's raw JSON payload and returns the
// envelope's data field, or an error to be converted by Fail.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Server owns the tool registry and bounds in-flight calls to the
// store's connection pool size (spec.md §5: "parallelism is bounded by
// the database's connection pool, not by the engine").
type Server struct {
	store    store.Store
	workflow *workflow.Service
	compound *compound.Service
	query    *query.Service
	graph    *depgraph.Graph
	schema   *noteschema.Registry

	sem      *semaphore.Weighted
	handlers map[string]Handler
}

// New builds a Server with every tool registered against the given
// Store, note schema, and optional workflow metrics. maxInFlight
// should match the store's connection pool size (1 for the default
// single-writer SQLite pool).
func New(s store.Store, schema *noteschema.Registry, metrics *telemetry.WorkflowMetrics, maxInFlight int64) *Server {
	wf := workflow.New(s, schema, metrics)
	srv := &Server{
		store:    s,
		workflow: wf,
		compound: compound.New(s, schema, wf),
		query:    query.New(s, schema),
		graph:    depgraph.New(s),
		schema:   schema,
		sem:      semaphore.NewWeighted(maxInFlight),
		handlers: map[string]Handler{},
	}
	srv.registerTools()
	return srv
}

// Dispatch runs the named tool against payload, acquiring the
// in-flight semaphore and recovering any panic into INTERNAL_ERROR —
// a last-resort safety net, never a substitute for typed errors
// (spec.md §7).
func (s *Server) Dispatch(ctx context.Context, tool string, payload json.RawMessage) (env Envelope) {
	handler, ok := s.handlers[tool]
	if !ok {
		return Fail(types.NewError(types.ErrValidation, "unknown tool %q", tool))
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Fail(types.NewError(types.ErrInternal, "dispatch: %v", err))
	}
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			diag.Logf("PANIC recovered in tool %q: %v", tool, r)
			env = Fail(types.NewError(types.ErrInternal, "unexpected internal error"))
		}
	}()

	data, err := handler(ctx, payload)
	if err != nil {
		return Fail(err)
	}
	return Ok(fmt.Sprintf("%s completed", tool), data)
}

func (s *Server) registerTools() {
	s.handlers["manage_items"] = s.handleManageItems
	s.handlers["query_items"] = s.handleQueryItems
	s.handlers["manage_notes"] = s.handleManageNotes
	s.handlers["query_notes"] = s.handleQueryNotes
	s.handlers["manage_dependencies"] = s.handleManageDependencies
	s.handlers["query_dependencies"] = s.handleQueryDependencies
	s.handlers["advance_item"] = s.handleAdvanceItem
	s.handlers["get_next_status"] = s.handleGetNextStatus
	s.handlers["get_next_item"] = s.handleGetNextItem
	s.handlers["get_blocked_items"] = s.handleGetBlockedItems
	s.handlers["create_work_tree"] = s.handleCreateWorkTree
	s.handlers["complete_tree"] = s.handleCompleteTree
	s.handlers["get_context"] = s.handleGetContext
}
