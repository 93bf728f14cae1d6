package memory_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/dbutil"
	"github.com/soorma-platform/soorma/pkg/memory"
	"github.com/soorma-platform/soorma/test/dbtest"
)

func newTestStore(t *testing.T) *memory.Store {
	migrations := os.DirFS("migrations")
	cfg := dbtest.NewTestDB(t, migrations, ".")
	db, err := dbutil.Open(context.Background(), *cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return memory.NewStore(db)
}

func scope() memory.Scope {
	return memory.Scope{TenantID: "t1", UserID: "u1"}
}

func TestStore_WorkingMemoryUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.UpsertWorking(ctx, scope(), "plan-1", "k1", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "k1", rec.Key)

	got, err := store.GetWorking(ctx, scope(), "plan-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
}

func TestStore_WorkingMemoryUserScopingIsolates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertWorking(ctx, memory.Scope{TenantID: "t1", UserID: "userA"}, "plan-1", "k1", "v")
	require.NoError(t, err)

	_, err = store.GetWorking(ctx, memory.Scope{TenantID: "t1", UserID: "userB"}, "plan-1", "k1")
	assert.Error(t, err)
}

func TestStore_WorkingMemoryPerPlanDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertWorking(ctx, scope(), "plan-2", "k1", "v1")
	require.NoError(t, err)
	_, err = store.UpsertWorking(ctx, scope(), "plan-2", "k2", "v2")
	require.NoError(t, err)

	n, err := store.DeleteWorkingPlan(ctx, scope(), "plan-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.GetWorking(ctx, scope(), "plan-2", "k1")
	assert.Error(t, err)
}

func TestStore_EpisodicAppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendEpisodic(ctx, scope(), memory.EpisodicAppendRequest{AgentID: "a1", Role: "user", Content: "hello"}, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.AppendEpisodic(ctx, scope(), memory.EpisodicAppendRequest{AgentID: "a1", Role: "assistant", Content: "hi"}, []float32{0, 1, 0})
	require.NoError(t, err)

	out, err := store.RecentEpisodic(ctx, scope(), "a1", 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Content)
}

func TestStore_EpisodicSearchRanksBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendEpisodic(ctx, scope(), memory.EpisodicAppendRequest{AgentID: "a1", Role: "user", Content: "exact match"}, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.AppendEpisodic(ctx, scope(), memory.EpisodicAppendRequest{AgentID: "a1", Role: "user", Content: "unrelated"}, []float32{0, 1, 0})
	require.NoError(t, err)

	out, err := store.SearchEpisodic(ctx, scope(), "a1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "exact match", out[0].Content)
	require.NotNil(t, out[0].Score)
	assert.Greater(t, *out[0].Score, *out[1].Score)
}

func TestStore_SemanticUpsertByExternalID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertSemantic(ctx, scope(), memory.SemanticUpsertRequest{
		Content: "v1", ExternalID: "doc", IsPublic: false,
	}, []float32{1, 0})
	require.NoError(t, err)

	second, err := store.UpsertSemantic(ctx, scope(), memory.SemanticUpsertRequest{
		Content: "v2", ExternalID: "doc", IsPublic: false,
	}, []float32{0, 1})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", second.Content)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestStore_SemanticUpsertByContentHashDedupes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertSemantic(ctx, scope(), memory.SemanticUpsertRequest{Content: "same content"}, []float32{1, 0})
	require.NoError(t, err)
	second, err := store.UpsertSemantic(ctx, scope(), memory.SemanticUpsertRequest{Content: "same content"}, []float32{1, 0})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	out, err := store.SearchSemantic(ctx, scope(), []float32{1, 0}, 10, false)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStore_SemanticPublicVisibleAcrossUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertSemantic(ctx, memory.Scope{TenantID: "t1", UserID: "owner"}, memory.SemanticUpsertRequest{
		Content: "public knowledge", IsPublic: true,
	}, []float32{1, 0})
	require.NoError(t, err)

	out, err := store.SearchSemantic(ctx, memory.Scope{TenantID: "t1", UserID: "other"}, []float32{1, 0}, 10, true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsPublic)
}

func TestStore_ProceduralUpsertAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertProcedural(ctx, scope(), memory.ProceduralUpsertRequest{
		AgentID: "a1", ProcedureType: "retry", TriggerCondition: "timeout", Content: "back off and retry",
	}, []float32{1, 0})
	require.NoError(t, err)

	out, err := store.SearchProcedural(ctx, scope(), "a1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
