package server_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/compound"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/server"
	"github.com/ravelhq/ravel/internal/store"
	"github.com/ravelhq/ravel/internal/store/sqlite"
	"github.com/ravelhq/ravel/internal/types"
)

func newServer(t *testing.T) (*server.Server, store.Store) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	schema, err := noteschema.Load("")
	require.NoError(t, err)
	return server.New(st, schema, nil, 1), st
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func dataMap(t *testing.T, env server.Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "expected envelope data to be a map, got %T", env.Data)
	return m
}

func TestDispatch_UnknownToolFails(t *testing.T) {
	srv, _ := newServer(t)
	env := srv.Dispatch(context.Background(), "does_not_exist", nil)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, types.ErrValidation, env.Error.Code)
}

func TestDispatch_ManageItemsCreateAndQueryItemsGet(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "ship it", "priority": "high"}},
	}))
	require.True(t, env.Success, "%+v", env.Error)
	created := dataMap(t, env)["created"].([]*types.WorkItem)
	require.Len(t, created, 1)
	id := created[0].ID
	assert.NotEmpty(t, id)

	env = srv.Dispatch(ctx, "query_items", mustJSON(t, map[string]any{"op": "get", "id": id}))
	require.True(t, env.Success, "%+v", env.Error)
	item := env.Data.(*types.WorkItem)
	assert.Equal(t, "ship it", item.Title)
	assert.Equal(t, types.RoleQueue, item.Role)
}

func TestDispatch_ManageItemsUpdateConflictSurfacesEnvelopeError(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "task"}},
	}))
	require.True(t, env.Success)
	id := dataMap(t, env)["created"].([]*types.WorkItem)[0].ID

	env = srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"update": []map[string]any{{"id": id, "title": "renamed", "version": 99}},
	}))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, types.ErrConflict, env.Error.Code)
}

func TestDispatch_ManageDependenciesLinearPattern(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "a"}, {"title": "b"}, {"title": "c"}},
	}))
	require.True(t, env.Success)
	created := dataMap(t, env)["created"].([]*types.WorkItem)
	ids := make([]string, len(created))
	for i, c := range created {
		ids[i] = c.ID
	}

	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"pattern": map[string]any{"kind": "linear", "itemIds": ids},
	}))
	require.True(t, env.Success, "%+v", env.Error)
	createdDeps := dataMap(t, env)["created"].([]*types.Dependency)
	assert.Len(t, createdDeps, 2)

	env = srv.Dispatch(ctx, "query_dependencies", mustJSON(t, map[string]any{"itemId": ids[0]}))
	require.True(t, env.Success)
	from := env.Data.([]*types.Dependency)
	require.Len(t, from, 1)
	assert.Equal(t, ids[1], from[0].ToItemID)
}

func TestDispatch_ManageDependenciesBatchRollsBackOnPartialFailure(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "a"}, {"title": "b"}, {"title": "c"}},
	}))
	require.True(t, env.Success)
	created := dataMap(t, env)["created"].([]*types.WorkItem)
	a, b, c := created[0].ID, created[1].ID, created[2].ID

	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"create": []map[string]any{{"fromId": a, "toId": b, "type": "BLOCKS"}},
	}))
	require.True(t, env.Success, "%+v", env.Error)

	// The second edge in this batch duplicates the one already created
	// above, so the whole batch must roll back: the a->c edge must not
	// survive even though it precedes the failing edge.
	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"create": []map[string]any{
			{"fromId": a, "toId": c, "type": "BLOCKS"},
			{"fromId": a, "toId": b, "type": "BLOCKS"},
		},
	}))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)

	env = srv.Dispatch(ctx, "query_dependencies", mustJSON(t, map[string]any{"itemId": a}))
	require.True(t, env.Success)
	from := env.Data.([]*types.Dependency)
	require.Len(t, from, 1, "only the first manage_dependencies call's edge should survive")
	assert.Equal(t, b, from[0].ToItemID)
}

func TestDispatch_ManageDependenciesRejectsCycle(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "a"}, {"title": "b"}},
	}))
	require.True(t, env.Success)
	created := dataMap(t, env)["created"].([]*types.WorkItem)
	a, b := created[0].ID, created[1].ID

	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"create": []map[string]any{{"fromId": a, "toId": b, "type": "BLOCKS"}},
	}))
	require.True(t, env.Success, "%+v", env.Error)

	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"create": []map[string]any{{"fromId": b, "toId": a, "type": "BLOCKS"}},
	}))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, types.ErrValidation, env.Error.Code)
}

func TestDispatch_AdvanceItemStart(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "task"}},
	}))
	require.True(t, env.Success)
	id := dataMap(t, env)["created"].([]*types.WorkItem)[0].ID

	env = srv.Dispatch(ctx, "advance_item", mustJSON(t, map[string]any{"itemId": id, "trigger": "start"}))
	require.True(t, env.Success, "%+v", env.Error)

	env = srv.Dispatch(ctx, "query_items", mustJSON(t, map[string]any{"op": "get", "id": id}))
	require.True(t, env.Success)
	assert.Equal(t, types.RoleWork, env.Data.(*types.WorkItem).Role)
}

func TestDispatch_AdvanceItemBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "ok"}},
	}))
	require.True(t, env.Success)
	okID := dataMap(t, env)["created"].([]*types.WorkItem)[0].ID

	env = srv.Dispatch(ctx, "advance_item", mustJSON(t, map[string]any{
		"transitions": []map[string]any{
			{"itemId": okID, "trigger": "start"},
			{"itemId": "does-not-exist", "trigger": "start"},
		},
	}))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)

	env = srv.Dispatch(ctx, "query_items", mustJSON(t, map[string]any{"op": "get", "id": okID}))
	require.True(t, env.Success)
	assert.Equal(t, types.RoleQueue, env.Data.(*types.WorkItem).Role, "batch failure must roll back the whole transaction")
}

func TestDispatch_CreateWorkTreeAndCompleteTree(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "create_work_tree", mustJSON(t, map[string]any{
		"root": map[string]any{"title": "epic"},
		"children": []map[string]any{
			{"ref": "design", "title": "design"},
			{"ref": "build", "title": "build"},
		},
		"deps": []map[string]any{
			{"fromRef": "design", "toRef": "build", "type": "BLOCKS"},
		},
	}))
	require.True(t, env.Success, "%+v", env.Error)
	result := env.Data.(*compound.CreateTreeResult)
	rootID := result.ItemsByRef["root"].ID

	env = srv.Dispatch(ctx, "complete_tree", mustJSON(t, map[string]any{
		"rootIds": []string{rootID},
		"mode":    "complete",
	}))
	require.True(t, env.Success, "%+v", env.Error)

	env = srv.Dispatch(ctx, "query_items", mustJSON(t, map[string]any{"op": "get", "id": rootID}))
	require.True(t, env.Success)
	assert.Equal(t, types.RoleTerminal, env.Data.(*types.WorkItem).Role)
}

func TestDispatch_GetNextItemAndGetContext(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "urgent", "priority": "high"}},
	}))
	require.True(t, env.Success)
	id := dataMap(t, env)["created"].([]*types.WorkItem)[0].ID

	env = srv.Dispatch(ctx, "get_next_item", nil)
	require.True(t, env.Success, "%+v", env.Error)
	next := env.Data.(*types.WorkItem)
	assert.Equal(t, id, next.ID)

	env = srv.Dispatch(ctx, "get_context", mustJSON(t, map[string]any{"itemId": id}))
	require.True(t, env.Success, "%+v", env.Error)
}

func TestDispatch_ManageNotesAndQueryNotes(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "bug"}},
	}))
	require.True(t, env.Success)
	id := dataMap(t, env)["created"].([]*types.WorkItem)[0].ID

	env = srv.Dispatch(ctx, "manage_notes", mustJSON(t, map[string]any{
		"upsert": []map[string]any{{"itemId": id, "key": "repro", "role": "work", "body": "steps"}},
	}))
	require.True(t, env.Success, "%+v", env.Error)

	env = srv.Dispatch(ctx, "query_notes", mustJSON(t, map[string]any{"itemId": id}))
	require.True(t, env.Success)
	notes := env.Data.([]*types.Note)
	require.Len(t, notes, 1)
	assert.Equal(t, "steps", notes[0].Body)
}

func TestDispatch_GetBlockedItemsAndNextStatus(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	env := srv.Dispatch(ctx, "manage_items", mustJSON(t, map[string]any{
		"create": []map[string]any{{"title": "blocker"}, {"title": "blocked"}},
	}))
	require.True(t, env.Success)
	created := dataMap(t, env)["created"].([]*types.WorkItem)
	blocker, blocked := created[0].ID, created[1].ID

	env = srv.Dispatch(ctx, "manage_dependencies", mustJSON(t, map[string]any{
		"create": []map[string]any{{"fromId": blocker, "toId": blocked, "type": "BLOCKS"}},
	}))
	require.True(t, env.Success)

	env = srv.Dispatch(ctx, "get_blocked_items", nil)
	require.True(t, env.Success)
	items := env.Data.([]*types.BlockedItem)
	require.Len(t, items, 1)
	assert.Equal(t, blocked, items[0].Item.ID)

	env = srv.Dispatch(ctx, "get_next_status", mustJSON(t, map[string]any{"itemId": blocked}))
	require.True(t, env.Success, "%+v", env.Error)
}

func TestDispatch_ManageItemsRejectsMalformedPayload(t *testing.T) {
	srv, _ := newServer(t)
	env := srv.Dispatch(context.Background(), "manage_items", json.RawMessage(`{"create": "not-an-array"}`))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, types.ErrValidation, env.Error.Code)
}
