// Package store defines the transactional persistence interface every
// higher layer (RSM, gate, dependency graph, workflow, compound
// operations, query services) builds on. The concrete implementation
// lives in internal/store/sqlite; this package exists so those layers
// never import a driver-specific type.
package store

import (
	"context"

	"github.com/ravelhq/ravel/internal/types"
)

// Store is the durable, transactional persistence surface described in
// spec.md §4.1. Items and dependencies can be created singly or as a
// batch, and a batch runs within one transaction; updates, deletes and
// note writes take one record per call. Lookups fail with
// types.ErrNotFound; mutations fail with types.ErrValidation,
// types.ErrConflict, or types.ErrDatabase.
type Store interface {
	// Items

	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	CreateItem(ctx context.Context, item *types.WorkItem) error
	CreateItems(ctx context.Context, items []*types.WorkItem) error
	UpdateItem(ctx context.Context, item *types.WorkItem, expectedVersion int64) error
	DeleteItem(ctx context.Context, id string, recursive bool) (*types.DeleteResult, error)
	ListByParent(ctx context.Context, parentID string) ([]*types.WorkItem, error)
	FindByFilters(ctx context.Context, f *types.SearchFilter) ([]*types.WorkItem, error)
	CountByFilters(ctx context.Context, f *types.SearchFilter) (int, error)
	CountChildrenByRole(ctx context.Context, parentID string) (types.RoleCounts, error)
	FindRootItems(ctx context.Context) ([]*types.WorkItem, error)
	FindAncestorChain(ctx context.Context, id string) ([]*types.WorkItem, error)

	// Dependencies

	CreateDependency(ctx context.Context, dep *types.Dependency) error
	CreateDependencies(ctx context.Context, deps []*types.Dependency) error
	DeleteDependency(ctx context.Context, id string) error
	GetDependency(ctx context.Context, id string) (*types.Dependency, error)
	ListDependenciesFrom(ctx context.Context, itemID string) ([]*types.Dependency, error)
	ListDependenciesTo(ctx context.Context, itemID string) ([]*types.Dependency, error)
	ListAllDependencies(ctx context.Context) ([]*types.Dependency, error)

	// Notes

	UpsertNote(ctx context.Context, itemID, key string, role types.Role, body string) (*types.Note, error)
	DeleteNote(ctx context.Context, id string) error
	GetNote(ctx context.Context, itemID, key string) (*types.Note, error)
	ListNotes(ctx context.Context, itemID string) ([]*types.Note, error)

	// Audit

	RecordTransition(ctx context.Context, t *types.RoleTransition) error
	ListTransitions(ctx context.Context, entityID string) ([]*types.RoleTransition, error)

	// WithTransaction runs fn inside a single serializable transaction.
	// Every compound operation declares its transaction boundary through
	// this primitive; nested calls to WithTransaction from inside fn
	// reuse the same transaction rather than opening a new one.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Close() error
}
