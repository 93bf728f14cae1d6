package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/embedding/local"
	"github.com/soorma-platform/soorma/pkg/memory"
)

func TestService_SemanticSearchDefaultsIncludePublicTrue(t *testing.T) {
	store := newTestStore(t)
	svc := memory.NewService(store, local.New(32))
	ctx := context.Background()

	_, err := svc.UpsertSemantic(ctx, memory.Scope{TenantID: "t1", UserID: "owner"}, memory.SemanticUpsertRequest{
		Content: "published fact", IsPublic: true,
	})
	require.NoError(t, err)

	out, err := svc.SearchSemantic(ctx, memory.Scope{TenantID: "t1", UserID: "reader"}, memory.SemanticSearchRequest{
		Query: "published fact", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "published fact", out[0].Content)
}

func TestService_EpisodicAppendComputesEmbedding(t *testing.T) {
	store := newTestStore(t)
	svc := memory.NewService(store, local.New(32))
	ctx := context.Background()

	rec, err := svc.AppendEpisodic(ctx, memory.Scope{TenantID: "t1", UserID: "u1"}, memory.EpisodicAppendRequest{
		AgentID: "a1", Content: "hello there",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", rec.Content)
}
