package plan

import "context"

// CascadeFunc deletes every working-memory row for a plan, regardless of
// user. Injected rather than importing pkg/memory directly, keeping plan/
// memory's dependency edge one-directional.
type CascadeFunc func(ctx context.Context, tenantID, planID string) (int64, error)

// Service is the thin business layer over Store, wiring the working-memory
// cascade delete_plan requires (§4.7).
type Service struct {
	store          *Store
	cascadeWorking CascadeFunc
}

// NewService constructs a Service. cascade may be nil if the Memory Service
// is not wired (e.g. in isolated unit tests of plan/task CRUD).
func NewService(store *Store, cascade CascadeFunc) *Service {
	return &Service{store: store, cascadeWorking: cascade}
}

func (s *Service) CreatePlan(ctx context.Context, tenantID, userID string, req CreateRequest) (*Context, error) {
	return s.store.CreatePlan(ctx, tenantID, userID, req)
}

func (s *Service) GetPlanContext(ctx context.Context, tenantID, planID string) (*Context, error) {
	return s.store.GetPlanContext(ctx, tenantID, planID)
}

func (s *Service) GetPlanByCorrelation(ctx context.Context, tenantID, correlationID string) (*Context, error) {
	return s.store.GetPlanByCorrelation(ctx, tenantID, correlationID)
}

func (s *Service) ListPlans(ctx context.Context, tenantID string, f ListFilter) ([]Context, error) {
	return s.store.ListPlans(ctx, tenantID, f)
}

func (s *Service) UpdatePlanState(ctx context.Context, tenantID, planID string, mutate func(*Context) error) (*Context, error) {
	return s.store.UpdatePlanState(ctx, tenantID, planID, mutate)
}

// DeletePlan removes the plan record and cascades to working memory.
func (s *Service) DeletePlan(ctx context.Context, tenantID, planID string) error {
	if err := s.store.DeletePlan(ctx, tenantID, planID); err != nil {
		return err
	}
	if s.cascadeWorking != nil {
		if _, err := s.cascadeWorking(ctx, tenantID, planID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) UpsertTaskContext(ctx context.Context, tenantID, userID string, req TaskUpsertRequest) (*TaskContext, error) {
	return s.store.UpsertTaskContext(ctx, tenantID, userID, req)
}

func (s *Service) GetTaskContext(ctx context.Context, tenantID, taskID string) (*TaskContext, error) {
	return s.store.GetTaskContext(ctx, tenantID, taskID)
}

func (s *Service) UpdateTaskContext(ctx context.Context, tenantID, taskID string, mutate func(*TaskContext) error) (*TaskContext, error) {
	return s.store.UpdateTaskContext(ctx, tenantID, taskID, mutate)
}

func (s *Service) DeleteTaskContext(ctx context.Context, tenantID, taskID string) error {
	return s.store.DeleteTaskContext(ctx, tenantID, taskID)
}

func (s *Service) GetTaskBySubtask(ctx context.Context, tenantID, subTaskID string) (*TaskContext, error) {
	return s.store.GetTaskBySubtask(ctx, tenantID, subTaskID)
}
