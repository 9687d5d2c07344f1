// Package rsm implements the Role State Machine: the legal
// (role, trigger) -> role table and cascade-candidate detection
// described in spec.md §4.2. Every function here is pure: no I/O, no
// hidden state, errors returned rather than panicked.
package rsm

import (
	"time"

	"github.com/ravelhq/ravel/internal/types"
)

// transition is one row of the canonical RSM table.
type transition struct {
	from []types.Role
	to   types.Role
}

var table = map[types.Trigger]transition{
	types.TriggerStart:    {from: []types.Role{types.RoleQueue}, to: types.RoleWork},
	types.TriggerComplete: {from: []types.Role{types.RoleWork, types.RoleReview}, to: types.RoleTerminal},
	types.TriggerBlock:    {from: []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview}, to: types.RoleBlocked},
	types.TriggerHold:     {from: []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview}, to: types.RoleBlocked},
	types.TriggerResume:   {from: []types.Role{types.RoleBlocked}, to: types.Role("")}, // resolved dynamically to previousRole
	types.TriggerCancel:   {from: []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview, types.RoleBlocked}, to: types.RoleTerminal},
}

// Resolve computes the destination role for (current, trigger,
// previousRole), or returns an INVALID_TRANSITION error if the pair is
// not in the RSM table. previousRole is only consulted for
// TriggerResume, defaulting to RoleQueue when empty.
func Resolve(current types.Role, trigger types.Trigger, previousRole types.Role) (types.Role, error) {
	t, ok := table[trigger]
	if !ok {
		return "", types.NewError(types.ErrInvalidTransition, "unknown trigger %q", trigger)
	}
	if !containsRole(t.from, current) {
		return "", types.NewError(types.ErrInvalidTransition,
			"trigger %q is not legal from role %q", trigger, current).
			WithDetails("valid source roles: %v", t.from)
	}
	if trigger == types.TriggerResume {
		if previousRole == "" {
			return types.RoleQueue, nil
		}
		return previousRole, nil
	}
	return t.to, nil
}

func containsRole(roles []types.Role, r types.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

// LegalTriggers returns every trigger currently legal from role r, for
// get_next_status's read-only recommendation.
func LegalTriggers(r types.Role) []types.Trigger {
	var out []types.Trigger
	// Deterministic order matches the table in spec.md §4.2.
	order := []types.Trigger{
		types.TriggerStart, types.TriggerComplete, types.TriggerBlock,
		types.TriggerHold, types.TriggerResume, types.TriggerCancel,
	}
	for _, trig := range order {
		if containsRole(table[trig].from, r) {
			out = append(out, trig)
		}
	}
	return out
}

// ApplyTransition mutates item in place to reflect a transition to
// newRole via trigger at time now, per spec.md §4.2 invariants (b)-(d):
//   - roleChangedAt and role update atomically
//   - entering blocked preserves the prior role in PreviousRole; leaving
//     blocked (resume) clears it so a later block captures the right role
//   - statusLabel is cleared so EffectiveStatusLabel falls back to the role name
func ApplyTransition(item *types.WorkItem, newRole types.Role, now time.Time) {
	if newRole == types.RoleBlocked && item.Role != types.RoleBlocked {
		item.PreviousRole = item.Role
	} else if item.Role == types.RoleBlocked && newRole != types.RoleBlocked {
		item.PreviousRole = ""
	}
	item.Role = newRole
	item.StatusLabel = ""
	item.RoleChangedAt = now
	item.ModifiedAt = now
}

// CascadeCandidate describes a parent-level transition a child-level
// transition makes possible. It is informational only (spec.md §4.2,
// §5): the caller decides whether to actually advance the parent in a
// separate call.
type CascadeCandidate struct {
	ParentID     string
	Trigger      types.Trigger
	CurrentRole  types.Role
	SuggestedTo  types.Role
	Reason       string
}

// DetectCompletionCascade returns a non-nil candidate when every
// sibling of the item that just reached terminal (including itself) is
// also terminal, meaning the parent could legally complete/cancel.
func DetectCompletionCascade(parent *types.WorkItem, siblingCounts types.RoleCounts, totalSiblings int) *CascadeCandidate {
	if parent == nil {
		return nil
	}
	if parent.Role != types.RoleWork && parent.Role != types.RoleReview {
		return nil
	}
	if totalSiblings == 0 {
		return nil
	}
	if siblingCounts[types.RoleTerminal] != totalSiblings {
		return nil
	}
	return &CascadeCandidate{
		ParentID:    parent.ID,
		Trigger:     types.TriggerComplete,
		CurrentRole: parent.Role,
		SuggestedTo: types.RoleTerminal,
		Reason:      "all children reached terminal",
	}
}

// DetectStartCascade returns a non-nil candidate when a queue parent's
// first non-queue child just started, suggesting the parent move
// queue -> work.
func DetectStartCascade(parent *types.WorkItem, isFirstActiveChild bool) *CascadeCandidate {
	if parent == nil || parent.Role != types.RoleQueue || !isFirstActiveChild {
		return nil
	}
	return &CascadeCandidate{
		ParentID:    parent.ID,
		Trigger:     types.TriggerStart,
		CurrentRole: types.RoleQueue,
		SuggestedTo: types.RoleWork,
		Reason:      "first child started",
	}
}

// FlowPosition returns the index of role within the canonical flow
// ordering (queue, work, review, terminal). Blocked items report the
// index of previousRole instead, with suspended=true, so a caller can
// render progress without re-deriving the RSM table (spec.md §4.5,
// SPEC_FULL.md §11).
func FlowPosition(role, previousRole types.Role) (position int, suspended bool) {
	flow := []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview, types.RoleTerminal}
	indexOf := func(r types.Role) int {
		for i, f := range flow {
			if f == r {
				return i
			}
		}
		return -1
	}
	if role == types.RoleBlocked {
		p := previousRole
		if p == "" {
			p = types.RoleQueue
		}
		return max(indexOf(p), 0), true
	}
	return max(indexOf(role), 0), false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
