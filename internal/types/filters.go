package types

import "time"

// SortField is a column search results may be ordered by.
type SortField string

const (
	SortTitle      SortField = "title"
	SortPriority   SortField = "priority"
	SortComplexity SortField = "complexity"
	SortCreatedAt  SortField = "createdAt"
	SortModifiedAt SortField = "modifiedAt"
)

// SortDir is ascending or descending order.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// TimeWindow bounds a timestamp column; either end may be zero to mean
// unbounded.
type TimeWindow struct {
	After  time.Time
	Before time.Time
}

func (w TimeWindow) empty() bool {
	return w.After.IsZero() && w.Before.IsZero()
}

// SearchFilter is the full filter set for query_items(search).
type SearchFilter struct {
	ParentID *string
	Depth    *int
	Role     *Role
	Priority *Priority
	Tags     []string // any-of
	Query    string   // substring match on title+summary

	Created     TimeWindow
	Modified    TimeWindow
	RoleChanged TimeWindow

	SortBy  SortField
	SortDir SortDir

	Limit  int
	Offset int

	IncludeAncestors bool
	MinimalProjection bool
}

// HasTimeFilters reports whether any time-window filter is set.
func (f *SearchFilter) HasTimeFilters() bool {
	return !f.Created.empty() || !f.Modified.empty() || !f.RoleChanged.empty()
}

// SearchResult is query_items(search)'s response shape.
type SearchResult struct {
	Items    []*WorkItem
	Total    int
	Returned int
	Limit    int
	Offset   int
	// Ancestors maps item ID to its ancestor chain, root-first, present
	// only when IncludeAncestors was requested.
	Ancestors map[string][]*WorkItem
}

// RoleCounts tallies children by role under a parent.
type RoleCounts map[Role]int

// OverviewNode is one entry of query_items(overview)'s result, either a
// single item (item id given) or one root among many (no id given).
type OverviewNode struct {
	Item         *WorkItem
	ChildCounts  RoleCounts
	Children     []*WorkItem // direct children, when requested
}

// BlockedItem is one entry of get_blocked_items's result.
type BlockedItem struct {
	Item     *WorkItem
	Blockers []BlockerRef
}

// BlockerRef names one unsatisfied blocker of a BlockedItem.
type BlockerRef struct {
	DependencyID string
	BlockerID    string
	BlockerRole  Role
	UnblockAt    Role
}

// DeleteResult reports the outcome of manage_items(delete) with an
// optional recursive subtree delete.
type DeleteResult struct {
	DeletedIDs []string
}
