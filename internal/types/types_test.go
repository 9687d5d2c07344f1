package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ravelhq/ravel/internal/types"
)

func TestRole_Reaches(t *testing.T) {
	assert.True(t, types.RoleWork.Reaches(types.RoleQueue))
	assert.True(t, types.RoleWork.Reaches(types.RoleWork))
	assert.False(t, types.RoleQueue.Reaches(types.RoleWork))
	assert.True(t, types.RoleTerminal.Reaches(types.RoleReview))
}

func TestRole_Reaches_BlockedNeverSatisfiesAThreshold(t *testing.T) {
	assert.False(t, types.RoleBlocked.Reaches(types.RoleQueue))
	assert.False(t, types.RoleBlocked.Reaches(types.RoleBlocked))
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview, types.RoleBlocked, types.RoleTerminal} {
		assert.True(t, r.Valid())
	}
	assert.False(t, types.Role("bogus").Valid())
}

func TestPriority_Rank(t *testing.T) {
	assert.Greater(t, types.PriorityHigh.Rank(), types.PriorityMedium.Rank())
	assert.Greater(t, types.PriorityMedium.Rank(), types.PriorityLow.Rank())
}

func TestDependencyType_Valid(t *testing.T) {
	assert.True(t, types.DepBlocks.Valid())
	assert.True(t, types.DepIsBlockedBy.Valid())
	assert.True(t, types.DepRelatesTo.Valid())
	assert.False(t, types.DependencyType("MAYBE_BLOCKS").Valid())
}

func TestError_ErrorStringIncludesDetailsWhenPresent(t *testing.T) {
	e := types.NewError(types.ErrValidation, "bad input")
	assert.Equal(t, "VALIDATION_ERROR: bad input", e.Error())

	e.WithDetails("field %q is required", "title")
	assert.Contains(t, e.Error(), `field "title" is required`)
}

func TestError_WithDataAccumulates(t *testing.T) {
	e := types.NewError(types.ErrConflict, "stale write").WithData("currentVersion", 3).WithData("itemId", "abc")
	assert.Equal(t, 3, e.AdditionalData["currentVersion"])
	assert.Equal(t, "abc", e.AdditionalData["itemId"])
}

func TestCodeOf_UnwrapsWrappedErrors(t *testing.T) {
	base := types.NotFound("item", "xyz")
	wrapped := fmt.Errorf("loading item: %w", base)
	assert.Equal(t, types.ErrNotFound, types.CodeOf(wrapped))
}

func TestCodeOf_DefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, types.ErrInternal, types.CodeOf(errors.New("some other failure")))
}

func TestNote_Filled(t *testing.T) {
	var n *types.Note
	assert.False(t, n.Filled(), "a nil note is never filled")

	n = &types.Note{Body: ""}
	assert.False(t, n.Filled())

	n.Body = "steps to reproduce"
	assert.True(t, n.Filled())
}

func TestWorkItem_EffectiveStatusLabel(t *testing.T) {
	w := &types.WorkItem{Role: types.RoleWork}
	assert.Equal(t, "work", w.EffectiveStatusLabel())

	w.StatusLabel = "waiting on design review"
	assert.Equal(t, "waiting on design review", w.EffectiveStatusLabel())
}

func TestWorkItem_HasTag(t *testing.T) {
	w := &types.WorkItem{Tags: []string{"bug", "urgent"}}
	assert.True(t, w.HasTag("bug"))
	assert.False(t, w.HasTag("feature"))
}

func TestDependency_EffectiveUnblockAt(t *testing.T) {
	d := &types.Dependency{}
	assert.Equal(t, types.RoleTerminal, d.EffectiveUnblockAt())

	d.UnblockAt = types.RoleWork
	assert.Equal(t, types.RoleWork, d.EffectiveUnblockAt())
}
