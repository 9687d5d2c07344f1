// Package ravel provides a minimal public API for extending the
// engine with custom Go orchestration.
//
// Most extensions should talk to the tool registry over stdio or HTTP
// (see internal/server). This package exports only the essential
// types and constructors needed for Go-based extensions that want to
// drive the storage and workflow layers directly, in-process.
package ravel

import (
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/server"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/store/sqlite"
	"github.com/ravelhq/ravel/internal/telemetry"
	"github.com/ravelhq/ravel/internal/types"
)

// Core types for working with the hierarchical work-item tree.
type (
	WorkItem   = types.WorkItem
	Role       = types.Role
	Trigger    = types.Trigger
	Priority   = types.Priority
	Dependency = types.Dependency
	Note       = types.Note
)

// Role constants for the queue/work/review/blocked/terminal state machine.
const (
	RoleQueue    = types.RoleQueue
	RoleWork     = types.RoleWork
	RoleReview   = types.RoleReview
	RoleBlocked  = types.RoleBlocked
	RoleTerminal = types.RoleTerminal
)

// Trigger constants requesting a role transition via advance_item.
const (
	TriggerStart    = types.TriggerStart
	TriggerComplete = types.TriggerComplete
	TriggerBlock    = types.TriggerBlock
	TriggerHold     = types.TriggerHold
	TriggerResume   = types.TriggerResume
	TriggerCancel   = types.TriggerCancel
)

// Priority constants used for get_next_item ranking.
const (
	PriorityHigh   = types.PriorityHigh
	PriorityMedium = types.PriorityMedium
	PriorityLow    = types.PriorityLow
)

// DependencyType constants for the typed dependency graph.
const (
	DepBlocks      = types.DepBlocks
	DepIsBlockedBy = types.DepIsBlockedBy
	DepRelatesTo   = types.DepRelatesTo
)

// Store is the minimal persistence interface extensions can drive
// directly: work items, notes, dependencies, and role-transition audit.
type Store = store.Store

// NoteSchema is the immutable per-tag note-gating registry loaded from
// a TOML config file (empty path yields a schema with no required notes).
type NoteSchema = noteschema.Registry

// Server is the in-process tool registry. Extensions embedding the
// engine should prefer Server.Dispatch over importing internal
// packages directly, since it enforces the same gate, dependency, and
// audit invariants the stdio/HTTP transports do.
type Server = server.Server

// Envelope is the standard response shape every tool call returns.
type Envelope = server.Envelope

// NewSQLiteStore opens a work-item database for programmatic access.
func NewSQLiteStore(dbPath string) (Store, error) {
	return sqlite.New(dbPath)
}

// LoadNoteSchema loads a note schema from a TOML file. An empty path
// returns a schema with no tags registered and the default
// preserve-on-cleanup tag set.
func LoadNoteSchema(path string) (*NoteSchema, error) {
	return noteschema.Load(path)
}

// NewServer builds a Server against store s, gated by schema, with an
// in-flight call limit matching the store's connection pool size (1
// for the default single-writer SQLite pool). metrics may be nil.
func NewServer(s Store, schema *NoteSchema, metrics *telemetry.WorkflowMetrics, maxInFlight int64) *Server {
	return server.New(s, schema, metrics, maxInFlight)
}
