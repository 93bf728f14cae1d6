package registry

import (
	"context"
	"fmt"
	"time"
)

const (
	cacheTTL      = 30 * time.Second
	cacheCapacity = 1000
)

// Service is the Registry's business layer: store access fronted by two
// small read caches (events, agents), invalidated in full on any write —
// intentionally coarse per §4.3, acceptable because the TTL is short and
// writes are infrequent.
type Service struct {
	store *Store
	ttl   time.Duration

	eventCache *ttlCache
	agentCache *ttlCache
}

// NewService constructs a registry Service. ttl is the agent liveness TTL
// (AGENT_TTL_SECONDS), not the read-cache TTL.
func NewService(store *Store, ttl time.Duration) *Service {
	return &Service{
		store:      store,
		ttl:        ttl,
		eventCache: newTTLCache(cacheTTL, cacheCapacity),
		agentCache: newTTLCache(cacheTTL, cacheCapacity),
	}
}

func (s *Service) UpsertEvent(ctx context.Context, e *EventDefinition) (*EventDefinition, error) {
	out, err := s.store.UpsertEvent(ctx, e)
	if err != nil {
		return nil, err
	}
	s.eventCache.flush()
	return out, nil
}

func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]EventDefinition, error) {
	key := fmt.Sprintf("events:%s:%s", f.EventName, f.Topic)
	if cached, ok := s.eventCache.get(key); ok {
		return cached.([]EventDefinition), nil
	}
	out, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	s.eventCache.set(key, out)
	return out, nil
}

func (s *Service) UpsertAgent(ctx context.Context, req *AgentUpsertRequest) (*Agent, error) {
	out, err := s.store.UpsertAgent(ctx, req)
	if err != nil {
		return nil, err
	}
	s.agentCache.flush()
	return out, nil
}

func (s *Service) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	return s.store.GetAgent(ctx, agentID)
}

func (s *Service) ListAgents(ctx context.Context, f AgentFilter) ([]Agent, error) {
	key := fmt.Sprintf("agents:%s:%s:%s:%s:%v", f.AgentID, f.Name, f.ConsumedEvent, f.ProducedEvent, f.IncludeExpired)
	if cached, ok := s.agentCache.get(key); ok {
		return cached.([]Agent), nil
	}
	out, err := s.store.ListAgents(ctx, f, s.ttl)
	if err != nil {
		return nil, err
	}
	s.agentCache.set(key, out)
	return out, nil
}

func (s *Service) Heartbeat(ctx context.Context, agentID string) error {
	if err := s.store.Heartbeat(ctx, agentID); err != nil {
		return err
	}
	s.agentCache.flush()
	return nil
}

func (s *Service) DeleteAgent(ctx context.Context, agentID string) error {
	if err := s.store.DeleteAgent(ctx, agentID); err != nil {
		return err
	}
	s.agentCache.flush()
	return nil
}
