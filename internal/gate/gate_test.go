package gate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/gate"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/types"
)

func loadSchema(t *testing.T) *noteschema.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.toml")
	contents := `
[tags]
bug = [
  { key = "repro", role = "work", required = true },
  { key = "root_cause", role = "review", required = true },
  { key = "notes", role = "review", required = false },
]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	r, err := noteschema.Load(path)
	require.NoError(t, err)
	return r
}

func TestEvaluate_ClosedWhenRequiredNoteForIncomingRoleMissing(t *testing.T) {
	schema := loadSchema(t)
	result := gate.Evaluate(schema, []string{"bug"}, types.RoleReview, nil)
	// No notes filled, but incoming role is review; only role=review
	// required entries gate, and root_cause is missing.
	assert.Equal(t, gate.StatusClosed, result.GateStatus)
	assert.Equal(t, []string{"root_cause"}, result.MissingRequiredNotes)
}

func TestEvaluate_OnlyGatesOnIncomingRoleMatch(t *testing.T) {
	schema := loadSchema(t)
	// Transitioning into "work": only the work-role required entry
	// (repro) can gate, regardless of the unfilled review-role entry.
	result := gate.Evaluate(schema, []string{"bug"}, types.RoleWork, nil)
	assert.Equal(t, gate.StatusClosed, result.GateStatus)
	assert.Equal(t, []string{"repro"}, result.MissingRequiredNotes)
}

func TestEvaluate_OpenWhenRequiredNotesFilled(t *testing.T) {
	schema := loadSchema(t)
	notes := []*types.Note{
		{Key: "repro", Body: "steps to reproduce"},
	}
	result := gate.Evaluate(schema, []string{"bug"}, types.RoleWork, notes)
	assert.Equal(t, gate.StatusOpen, result.GateStatus)
	assert.Empty(t, result.MissingRequiredNotes)
}

func TestEvaluate_EmptyBodyNotCountedAsFilled(t *testing.T) {
	schema := loadSchema(t)
	notes := []*types.Note{{Key: "repro", Body: ""}}
	result := gate.Evaluate(schema, []string{"bug"}, types.RoleWork, notes)
	assert.Equal(t, gate.StatusClosed, result.GateStatus)
}

func TestEvaluate_UnrecognizedTagNeverGates(t *testing.T) {
	schema := loadSchema(t)
	result := gate.Evaluate(schema, []string{"untracked"}, types.RoleWork, nil)
	assert.Equal(t, gate.StatusOpen, result.GateStatus)
	assert.Empty(t, result.ExpectedNotes)
}

func TestValidate_ReturnsErrorWhenClosed(t *testing.T) {
	schema := loadSchema(t)
	_, err := gate.Validate(schema, []string{"bug"}, types.RoleWork, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrGateNotSatisfied, types.CodeOf(err))
}

func TestValidate_NilErrorWhenOpen(t *testing.T) {
	schema := loadSchema(t)
	notes := []*types.Note{{Key: "repro", Body: "steps"}}
	_, err := gate.Validate(schema, []string{"bug"}, types.RoleWork, notes)
	assert.NoError(t, err)
}
