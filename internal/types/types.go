// Package types holds the domain model shared by every layer of the
// work-item orchestration engine: the WorkItem/Dependency/Note value
// types, the Role/Priority/DependencyType/Trigger enums, and the tagged
// error variant every package returns instead of panicking.
package types

import "time"

// Role is the coarse semantic phase of a WorkItem. It drives gating and
// cascade logic; StatusLabel is cosmetic and never affects it.
type Role string

const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleBlocked  Role = "blocked"
	RoleTerminal Role = "terminal"
)

// Valid reports whether r is one of the five defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview, RoleBlocked, RoleTerminal:
		return true
	}
	return false
}

// rank orders roles for unblock-threshold comparisons. Blocked has no
// rank: it never satisfies a threshold and is never compared against one.
var rank = map[Role]int{
	RoleQueue:    0,
	RoleWork:     1,
	RoleReview:   2,
	RoleTerminal: 3,
}

// Reaches reports whether role r has progressed at least as far as
// threshold in the queue<work<review<terminal ordering. Blocked always
// returns false: it is not on the path and never satisfies a threshold.
func (r Role) Reaches(threshold Role) bool {
	rr, ok := rank[r]
	if !ok {
		return false
	}
	tr, ok := rank[threshold]
	if !ok {
		return false
	}
	return rr >= tr
}

// Priority is the caller-assigned urgency of a WorkItem.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityRank orders priorities for recommender tie-breaking (higher
// is more urgent).
var priorityRank = map[Priority]int{
	PriorityHigh:   2,
	PriorityMedium: 1,
	PriorityLow:    0,
}

// Rank returns a comparable ordinal for p, highest-priority-first.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Trigger is a verb requesting a role transition.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerComplete Trigger = "complete"
	TriggerBlock    Trigger = "block"
	TriggerHold     Trigger = "hold"
	TriggerResume   Trigger = "resume"
	TriggerCancel   Trigger = "cancel"
)

// DependencyType is the kind of a typed edge between two work items.
type DependencyType string

const (
	DepBlocks        DependencyType = "BLOCKS"
	DepIsBlockedBy   DependencyType = "IS_BLOCKED_BY"
	DepRelatesTo     DependencyType = "RELATES_TO"
)

// Valid reports whether t is a recognized dependency type.
func (t DependencyType) Valid() bool {
	switch t {
	case DepBlocks, DepIsBlockedBy, DepRelatesTo:
		return true
	}
	return false
}

// EntityType identifies the historical tier name of a RoleTransition's
// subject, preserved for audit readability across the ≤3-level tree.
type EntityType string

const (
	EntityTask    EntityType = "task"
	EntityFeature EntityType = "feature"
	EntityProject EntityType = "project"
	EntityItem    EntityType = "item"
)

// EntityTypeForDepth returns the conventional entity type name for a
// given tree depth (0=project, 1=feature, 2=task), falling back to the
// generic "item" label outside that range.
func EntityTypeForDepth(depth int) EntityType {
	switch depth {
	case 0:
		return EntityProject
	case 1:
		return EntityFeature
	case 2:
		return EntityTask
	default:
		return EntityItem
	}
}

// WorkItem is a single unit of work at any tier of a ≤3-level tree.
type WorkItem struct {
	ID           string
	ParentID     string // empty for root items
	Depth        int    // 0..2, equals parent.Depth+1

	Title       string
	Summary     string
	Description string

	Role         Role
	StatusLabel  string // free-form label within Role; defaults to string(Role)
	PreviousRole Role   // while blocked, the role held before blocking; empty otherwise

	Priority              Priority
	Complexity            int // 1..10
	RequiresVerification  bool

	Metadata string
	Tags     []string

	CreatedAt     time.Time
	ModifiedAt    time.Time
	RoleChangedAt time.Time
	Version       int64
}

// EffectiveStatusLabel returns StatusLabel, defaulting to the role name
// when the caller has not supplied a custom label.
func (w *WorkItem) EffectiveStatusLabel() string {
	if w.StatusLabel != "" {
		return w.StatusLabel
	}
	return string(w.Role)
}

// HasTag reports whether the item carries tag.
func (w *WorkItem) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Dependency is a typed directed edge between two work items.
type Dependency struct {
	ID         string
	FromItemID string
	ToItemID   string
	Type       DependencyType

	// UnblockAt is the role at which the blocker is deemed satisfied for
	// the purpose of unblocking the blocked side. Empty defaults to
	// RoleTerminal. Must be empty for RELATES_TO.
	UnblockAt Role
}

// EffectiveUnblockAt returns UnblockAt, defaulting to RoleTerminal.
func (d *Dependency) EffectiveUnblockAt() Role {
	if d.UnblockAt == "" {
		return RoleTerminal
	}
	return d.UnblockAt
}

// Note is a structured text attachment on a work item, keyed by a
// schema-defined name.
type Note struct {
	ID         string
	ItemID     string
	Key        string
	Role       Role // phase in which this note is required/expected
	Body       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Filled reports whether the note's body carries content.
func (n *Note) Filled() bool {
	return n != nil && n.Body != ""
}

// NoteSchemaEntry is one configured expectation for a tag.
type NoteSchemaEntry struct {
	Key      string
	Role     Role
	Required bool
}

// RoleTransition is an immutable audit history row.
type RoleTransition struct {
	ID             string
	EntityID       string
	EntityType     EntityType
	FromRole       Role
	ToRole         Role
	FromStatus     string
	ToStatus       string
	TransitionedAt time.Time
	Trigger        Trigger
	Summary        string
}
