package rsm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/rsm"
	"github.com/ravelhq/ravel/internal/types"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		current      types.Role
		trigger      types.Trigger
		previousRole types.Role
		want         types.Role
		wantErr      bool
	}{
		{name: "start from queue", current: types.RoleQueue, trigger: types.TriggerStart, want: types.RoleWork},
		{name: "start from work rejected", current: types.RoleWork, trigger: types.TriggerStart, wantErr: true},
		{name: "complete from work", current: types.RoleWork, trigger: types.TriggerComplete, want: types.RoleTerminal},
		{name: "complete from review", current: types.RoleReview, trigger: types.TriggerComplete, want: types.RoleTerminal},
		{name: "complete from queue rejected", current: types.RoleQueue, trigger: types.TriggerComplete, wantErr: true},
		{name: "block from work", current: types.RoleWork, trigger: types.TriggerBlock, want: types.RoleBlocked},
		{name: "cancel from blocked", current: types.RoleBlocked, trigger: types.TriggerCancel, want: types.RoleTerminal},
		{name: "resume with previous role", current: types.RoleBlocked, trigger: types.TriggerResume, previousRole: types.RoleReview, want: types.RoleReview},
		{name: "resume defaults to queue", current: types.RoleBlocked, trigger: types.TriggerResume, previousRole: "", want: types.RoleQueue},
		{name: "resume from non-blocked rejected", current: types.RoleQueue, trigger: types.TriggerResume, wantErr: true},
		{name: "unknown trigger rejected", current: types.RoleQueue, trigger: types.Trigger("frobnicate"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rsm.Resolve(tt.current, tt.trigger, tt.previousRole)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidTransition, types.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLegalTriggers(t *testing.T) {
	assert.Equal(t, []types.Trigger{types.TriggerStart, types.TriggerBlock, types.TriggerHold, types.TriggerCancel}, rsm.LegalTriggers(types.RoleQueue))
	assert.Equal(t, []types.Trigger{types.TriggerComplete, types.TriggerBlock, types.TriggerHold, types.TriggerCancel}, rsm.LegalTriggers(types.RoleWork))
	assert.Equal(t, []types.Trigger{types.TriggerResume, types.TriggerCancel}, rsm.LegalTriggers(types.RoleBlocked))
	assert.Empty(t, rsm.LegalTriggers(types.RoleTerminal))
}

func TestApplyTransition_EnteringBlockedPreservesPreviousRole(t *testing.T) {
	item := &types.WorkItem{Role: types.RoleWork}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rsm.ApplyTransition(item, types.RoleBlocked, now)

	assert.Equal(t, types.RoleBlocked, item.Role)
	assert.Equal(t, types.RoleWork, item.PreviousRole)
	assert.Equal(t, now, item.RoleChangedAt)
	assert.Equal(t, now, item.ModifiedAt)
}

func TestApplyTransition_LeavingBlockedClearsPreviousRole(t *testing.T) {
	item := &types.WorkItem{Role: types.RoleBlocked, PreviousRole: types.RoleReview}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rsm.ApplyTransition(item, types.RoleReview, now)

	assert.Equal(t, types.RoleReview, item.Role)
	assert.Empty(t, item.PreviousRole)
}

func TestApplyTransition_ClearsStatusLabel(t *testing.T) {
	item := &types.WorkItem{Role: types.RoleQueue, StatusLabel: "triaging"}
	rsm.ApplyTransition(item, types.RoleWork, time.Now())
	assert.Empty(t, item.StatusLabel)
}

func TestDetectCompletionCascade(t *testing.T) {
	parent := &types.WorkItem{ID: "p1", Role: types.RoleWork}

	t.Run("all siblings terminal triggers cascade", func(t *testing.T) {
		counts := types.RoleCounts{types.RoleTerminal: 3}
		cand := rsm.DetectCompletionCascade(parent, counts, 3)
		require.NotNil(t, cand)
		assert.Equal(t, "p1", cand.ParentID)
		assert.Equal(t, types.TriggerComplete, cand.Trigger)
		assert.Equal(t, types.RoleTerminal, cand.SuggestedTo)
	})

	t.Run("partial completion does not cascade", func(t *testing.T) {
		counts := types.RoleCounts{types.RoleTerminal: 2, types.RoleWork: 1}
		assert.Nil(t, rsm.DetectCompletionCascade(parent, counts, 3))
	})

	t.Run("nil parent never cascades", func(t *testing.T) {
		assert.Nil(t, rsm.DetectCompletionCascade(nil, types.RoleCounts{types.RoleTerminal: 1}, 1))
	})

	t.Run("already terminal parent does not recascade", func(t *testing.T) {
		terminalParent := &types.WorkItem{ID: "p2", Role: types.RoleTerminal}
		assert.Nil(t, rsm.DetectCompletionCascade(terminalParent, types.RoleCounts{types.RoleTerminal: 1}, 1))
	})
}

func TestDetectStartCascade(t *testing.T) {
	queueParent := &types.WorkItem{ID: "p1", Role: types.RoleQueue}

	cand := rsm.DetectStartCascade(queueParent, true)
	require.NotNil(t, cand)
	assert.Equal(t, types.TriggerStart, cand.Trigger)
	assert.Equal(t, types.RoleWork, cand.SuggestedTo)

	assert.Nil(t, rsm.DetectStartCascade(queueParent, false))

	workParent := &types.WorkItem{ID: "p2", Role: types.RoleWork}
	assert.Nil(t, rsm.DetectStartCascade(workParent, true))
}

func TestFlowPosition(t *testing.T) {
	pos, suspended := rsm.FlowPosition(types.RoleQueue, "")
	assert.Equal(t, 0, pos)
	assert.False(t, suspended)

	pos, suspended = rsm.FlowPosition(types.RoleReview, "")
	assert.Equal(t, 2, pos)
	assert.False(t, suspended)

	pos, suspended = rsm.FlowPosition(types.RoleBlocked, types.RoleWork)
	assert.Equal(t, 1, pos)
	assert.True(t, suspended)

	pos, suspended = rsm.FlowPosition(types.RoleBlocked, "")
	assert.Equal(t, 0, pos)
	assert.True(t, suspended)
}
