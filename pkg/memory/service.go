package memory

import (
	"context"

	"github.com/soorma-platform/soorma/pkg/embedding"
)

// Service is the Memory Service's business layer: it wraps Store with
// embedding computation, matching the teacher's thin service-over-store
// layering (pkg/services).
type Service struct {
	store    *Store
	embedder embedding.Provider
}

// NewService constructs a Service backed by store, computing embeddings via
// embedder for episodic/semantic/procedural writes and searches.
func NewService(store *Store, embedder embedding.Provider) *Service {
	return &Service{store: store, embedder: embedder}
}

// --- working memory ---------------------------------------------------

func (s *Service) UpsertWorking(ctx context.Context, scope Scope, planID, key string, value any) (*WorkingMemoryRecord, error) {
	return s.store.UpsertWorking(ctx, scope, planID, key, value)
}

func (s *Service) GetWorking(ctx context.Context, scope Scope, planID, key string) (*WorkingMemoryRecord, error) {
	return s.store.GetWorking(ctx, scope, planID, key)
}

func (s *Service) DeleteWorkingKey(ctx context.Context, scope Scope, planID, key string) (bool, error) {
	return s.store.DeleteWorkingKey(ctx, scope, planID, key)
}

func (s *Service) DeleteWorkingPlan(ctx context.Context, scope Scope, planID string) (int64, error) {
	return s.store.DeleteWorkingPlan(ctx, scope, planID)
}

// --- episodic memory ----------------------------------------------------

func (s *Service) AppendEpisodic(ctx context.Context, scope Scope, req EpisodicAppendRequest) (*EpisodicRecord, error) {
	vec, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	return s.store.AppendEpisodic(ctx, scope, req, vec)
}

func (s *Service) RecentEpisodic(ctx context.Context, scope Scope, agentID string, limit int) ([]EpisodicRecord, error) {
	return s.store.RecentEpisodic(ctx, scope, agentID, limit)
}

func (s *Service) SearchEpisodic(ctx context.Context, scope Scope, agentID, query string, limit int) ([]EpisodicRecord, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.SearchEpisodic(ctx, scope, agentID, vec, limit)
}

// --- semantic memory ------------------------------------------------------

func (s *Service) UpsertSemantic(ctx context.Context, scope Scope, req SemanticUpsertRequest) (*SemanticRecord, error) {
	vec, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertSemantic(ctx, scope, req, vec)
}

func (s *Service) SearchSemantic(ctx context.Context, scope Scope, req SemanticSearchRequest) ([]SemanticRecord, error) {
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	includePublic := true
	if req.IncludePublic != nil {
		includePublic = *req.IncludePublic
	}
	return s.store.SearchSemantic(ctx, scope, vec, req.Limit, includePublic)
}

// --- procedural memory -----------------------------------------------------

func (s *Service) UpsertProcedural(ctx context.Context, scope Scope, req ProceduralUpsertRequest) (*ProceduralRecord, error) {
	vec, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertProcedural(ctx, scope, req, vec)
}

func (s *Service) SearchProcedural(ctx context.Context, scope Scope, agentID, query string, limit int) ([]ProceduralRecord, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.SearchProcedural(ctx, scope, agentID, vec, limit)
}

// DeletePlanCascade removes every working-memory row for planID regardless
// of user, for use by plan deletion (§4.7).
func (s *Service) DeletePlanCascade(ctx context.Context, tenantID, planID string) (int64, error) {
	return s.store.DeleteWorkingPlanAnyUser(ctx, tenantID, planID)
}
