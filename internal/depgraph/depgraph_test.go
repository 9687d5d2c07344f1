package depgraph_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/depgraph"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/store/sqlite"
	"github.com/ravelhq/ravel/internal/types"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "depgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreateItem(t *testing.T, ctx context.Context, st store.Store, role types.Role) *types.WorkItem {
	t.Helper()
	item := &types.WorkItem{
		ID:        uuid.NewString(),
		Title:     "item",
		Role:      role,
		Priority:  types.PriorityMedium,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateItem(ctx, item))
	return item
}

func TestValidateInsert_RejectsSelfLoop(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	a := mustCreateItem(t, ctx, st, types.RoleQueue)

	err := g.ValidateInsert(ctx, []*types.Dependency{
		{ID: uuid.NewString(), FromItemID: a.ID, ToItemID: a.ID, Type: types.DepBlocks},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
}

func TestValidateInsert_RejectsCycleAcrossProposedAndExisting(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	a := mustCreateItem(t, ctx, st, types.RoleQueue)
	b := mustCreateItem(t, ctx, st, types.RoleQueue)
	c := mustCreateItem(t, ctx, st, types.RoleQueue)

	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks,
	}))
	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: b.ID, ToItemID: c.ID, Type: types.DepBlocks,
	}))

	// c BLOCKS a would close the cycle a->b->c->a.
	err := g.ValidateInsert(ctx, []*types.Dependency{
		{ID: uuid.NewString(), FromItemID: c.ID, ToItemID: a.ID, Type: types.DepBlocks},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
}

func TestValidateInsert_AllowsAcyclicBatch(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	a := mustCreateItem(t, ctx, st, types.RoleQueue)
	b := mustCreateItem(t, ctx, st, types.RoleQueue)
	c := mustCreateItem(t, ctx, st, types.RoleQueue)

	err := g.ValidateInsert(ctx, []*types.Dependency{
		{ID: uuid.NewString(), FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
		{ID: uuid.NewString(), FromItemID: b.ID, ToItemID: c.ID, Type: types.DepBlocks},
	})
	assert.NoError(t, err)
}

func TestValidateInsert_FoldsIsBlockedBy(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	a := mustCreateItem(t, ctx, st, types.RoleQueue)
	b := mustCreateItem(t, ctx, st, types.RoleQueue)

	// a IS_BLOCKED_BY b folds to blocks-edge b -> a. Adding b IS_BLOCKED_BY a
	// folds to a -> b, closing a 2-cycle.
	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: a.ID, ToItemID: b.ID, Type: types.DepIsBlockedBy,
	}))

	err := g.ValidateInsert(ctx, []*types.Dependency{
		{ID: uuid.NewString(), FromItemID: b.ID, ToItemID: a.ID, Type: types.DepIsBlockedBy},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
}

func TestIsBlocked(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	blocker := mustCreateItem(t, ctx, st, types.RoleQueue)
	blocked := mustCreateItem(t, ctx, st, types.RoleQueue)

	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: blocker.ID, ToItemID: blocked.ID, Type: types.DepBlocks,
	}))

	isBlocked, blockers, err := g.IsBlocked(ctx, blocked.ID)
	require.NoError(t, err)
	assert.True(t, isBlocked)
	require.Len(t, blockers, 1)
	assert.Equal(t, types.RoleQueue, blockers[0].BlockerRole)

	// RELATES_TO never blocks.
	other := mustCreateItem(t, ctx, st, types.RoleQueue)
	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: other.ID, ToItemID: blocked.ID, Type: types.DepRelatesTo,
	}))
	isBlocked, _, err = g.IsBlocked(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, isBlocked)
}

func TestIsBlocked_SatisfiedAtCustomUnblockAt(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	blocker := mustCreateItem(t, ctx, st, types.RoleWork)
	blocked := mustCreateItem(t, ctx, st, types.RoleQueue)

	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: blocker.ID, ToItemID: blocked.ID,
		Type: types.DepBlocks, UnblockAt: types.RoleWork,
	}))

	isBlocked, _, err := g.IsBlocked(ctx, blocked.ID)
	require.NoError(t, err)
	assert.False(t, isBlocked, "blocker already reached the configured unblockAt threshold")
}

func TestUnblockedAfter(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	blocker := mustCreateItem(t, ctx, st, types.RoleWork)
	blocked := mustCreateItem(t, ctx, st, types.RoleQueue)

	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: blocker.ID, ToItemID: blocked.ID, Type: types.DepBlocks,
	}))

	isBlocked, _, err := g.IsBlocked(ctx, blocked.ID)
	require.NoError(t, err)
	require.True(t, isBlocked)

	blocker.Role = types.RoleTerminal
	require.NoError(t, st.UpdateItem(ctx, blocker, blocker.Version))

	unblocked, err := g.UnblockedAfter(ctx, blocker.ID, types.RoleTerminal)
	require.NoError(t, err)
	assert.Contains(t, unblocked, blocked.ID)
}

func TestTraverse_RespectsMaxDepth(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	g := depgraph.New(st)
	a := mustCreateItem(t, ctx, st, types.RoleQueue)
	b := mustCreateItem(t, ctx, st, types.RoleQueue)
	c := mustCreateItem(t, ctx, st, types.RoleQueue)

	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks,
	}))
	require.NoError(t, st.CreateDependency(ctx, &types.Dependency{
		ID: uuid.NewString(), FromItemID: b.ID, ToItemID: c.ID, Type: types.DepBlocks,
	}))

	depth1, err := g.Traverse(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b.ID}, depth1)

	depth2, err := g.Traverse(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b.ID, c.ID}, depth2)
}
