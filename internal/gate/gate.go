// Package gate implements the Gate Evaluator (spec.md §4.3): given an
// item's tags, its current notes, and the incoming role of a proposed
// transition, decide whether every note the schema requires at that
// role is filled.
package gate

import (
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/types"
)

// Status is the gate's open/closed verdict for a proposed transition.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ExpectedNote is one schema entry annotated with its current fill
// state, returned to callers (e.g. get_context) as a session-resume
// aid.
type ExpectedNote struct {
	Key      string     `json:"key"`
	Role     types.Role `json:"role"`
	Required bool       `json:"required"`
	Filled   bool       `json:"filled"`
}

// Result is the full Gate Evaluator output for one proposed
// transition.
type Result struct {
	ExpectedNotes         []ExpectedNote `json:"expectedNotes"`
	MissingRequiredNotes  []string       `json:"missingRequiredNotes"`
	GateStatus            Status         `json:"gateStatus"`
}

// Evaluate computes the Gate Evaluator result for an item carrying
// tags, with existing notes keyed by note key, against the incoming
// role of a proposed transition. A required entry gates the
// transition only when its Role matches incomingRole (spec.md §4.3:
// "whose role matches the incoming role of the proposed transition").
func Evaluate(schema *noteschema.Registry, tags []string, incomingRole types.Role, notes []*types.Note) Result {
	byKey := make(map[string]*types.Note, len(notes))
	for _, n := range notes {
		byKey[n.Key] = n
	}

	entries := schema.EntriesForTags(tags)
	result := Result{GateStatus: StatusOpen}
	for _, e := range entries {
		n, ok := byKey[e.Key]
		filled := ok && n.Filled()
		result.ExpectedNotes = append(result.ExpectedNotes, ExpectedNote{
			Key:      e.Key,
			Role:     e.Role,
			Required: e.Required,
			Filled:   filled,
		})
		if e.Required && e.Role == incomingRole && !filled {
			result.MissingRequiredNotes = append(result.MissingRequiredNotes, e.Key)
		}
	}
	if len(result.MissingRequiredNotes) > 0 {
		result.GateStatus = StatusClosed
	}
	return result
}

// Validate runs Evaluate and returns a GATE_NOT_SATISFIED error
// listing the missing keys when the gate is closed, or nil when it is
// open. This is the call site workflow.AdvanceItem uses at step 3 of
// spec.md §4.5.
func Validate(schema *noteschema.Registry, tags []string, incomingRole types.Role, notes []*types.Note) (Result, error) {
	result := Evaluate(schema, tags, incomingRole, notes)
	if result.GateStatus == StatusClosed {
		return result, types.NewError(types.ErrGateNotSatisfied,
			"required notes not filled for role %q", incomingRole).
			WithData("missingRequiredNotes", result.MissingRequiredNotes)
	}
	return result, nil
}
