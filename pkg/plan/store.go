package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// Store is the Postgres-backed persistence layer for plan and task context,
// sharing the Memory Service's connection pool and tables (created by
// pkg/memory's migrations).
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- plans ---------------------------------------------------------------

// CreatePlan persists a new plan record. correlation_ids always contains
// plan_id plus whatever the caller supplied (typically the client's
// original correlation_id), per §4.7's "goal intake" rule.
func (s *Store) CreatePlan(ctx context.Context, tenantID, userID string, req CreateRequest) (*Context, error) {
	if req.PlanID == "" {
		return nil, soormaerrors.NewValidationError("plan_id", "is required")
	}
	ids := append([]string{req.PlanID}, req.CorrelationIDs...)
	ids = dedupe(ids)

	goalData, err := json.Marshal(nonNilMap(req.GoalData))
	if err != nil {
		return nil, fmt.Errorf("marshal goal_data: %w", err)
	}
	corrIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal correlation_ids: %w", err)
	}

	var parentPlanID any
	if req.ParentPlanID != "" {
		parentPlanID = req.ParentPlanID
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO plan_context (id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', '{}'::jsonb, '', $9, $10)
		RETURNING id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
	`, uuid.NewString(), tenantID, userID, req.PlanID, req.SessionID, req.GoalEvent, goalData, req.ResponseEvent, corrIDs, parentPlanID)

	return scanPlan(row)
}

// GetPlanContext returns a plan by plan_id, scoped to tenant.
func (s *Store) GetPlanContext(ctx context.Context, tenantID, planID string) (*Context, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
		FROM plan_context WHERE tenant_id = $1 AND plan_id = $2
	`, tenantID, planID)
	return scanPlan(row)
}

// GetPlanByCorrelation searches plans whose correlation_ids[] array contains
// correlationID.
func (s *Store) GetPlanByCorrelation(ctx context.Context, tenantID, correlationID string) (*Context, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
		FROM plan_context WHERE tenant_id = $1 AND correlation_ids ? $2
		LIMIT 1
	`, tenantID, correlationID)
	return scanPlan(row)
}

// ListPlans returns plans matching f.
func (s *Store) ListPlans(ctx context.Context, tenantID string, f ListFilter) ([]Context, error) {
	query := `SELECT id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
		FROM plan_context WHERE tenant_id = $1`
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []Context
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePlanState performs a read-modify-write of a plan's state/status/
// current_state in a single transaction, matching §5's CAS-like update
// requirement when multiple planner instances share a plan via queue groups.
func (s *Store) UpdatePlanState(ctx context.Context, tenantID, planID string, mutate func(*Context) error) (*Context, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
		FROM plan_context WHERE tenant_id = $1 AND plan_id = $2 FOR UPDATE
	`, tenantID, planID)
	p, err := scanPlan(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(p); err != nil {
		return nil, err
	}

	state, err := json.Marshal(nonNilMap(p.State))
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	corrIDs, err := json.Marshal(dedupe(p.CorrelationIDs))
	if err != nil {
		return nil, fmt.Errorf("marshal correlation_ids: %w", err)
	}

	out := tx.QueryRowContext(ctx, `
		UPDATE plan_context SET status = $3, state = $4, current_state = $5, correlation_ids = $6, updated_at = now()
		WHERE tenant_id = $1 AND plan_id = $2
		RETURNING id, tenant_id, user_id, plan_id, session_id, goal_event, goal_data, response_event, status, state, current_state, correlation_ids, parent_plan_id, created_at, updated_at
	`, tenantID, planID, p.Status, state, p.CurrentState, corrIDs)
	updated, err := scanPlan(out)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// DeletePlan removes a plan record. Callers are responsible for also
// cascading to working memory (pkg/memory owns that table).
func (s *Store) DeletePlan(ctx context.Context, tenantID, planID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plan_context WHERE tenant_id = $1 AND plan_id = $2`, tenantID, planID)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return soormaerrors.ErrNotFound
	}
	return nil
}

func scanPlan(row rowScanner) (*Context, error) {
	var p Context
	var goalData, state, corrIDs []byte
	var parentPlanID sql.NullString
	if err := row.Scan(&p.ID, &p.TenantID, &p.UserID, &p.PlanID, &p.SessionID, &p.GoalEvent, &goalData, &p.ResponseEvent, &p.Status, &state, &p.CurrentState, &corrIDs, &parentPlanID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan plan context: %w", err)
	}
	_ = json.Unmarshal(goalData, &p.GoalData)
	_ = json.Unmarshal(state, &p.State)
	_ = json.Unmarshal(corrIDs, &p.CorrelationIDs)
	if parentPlanID.Valid {
		p.ParentPlanID = &parentPlanID.String
	}
	return &p, nil
}

// --- tasks -----------------------------------------------------------------

// UpsertTaskContext inserts or updates a task by (tenant_id, task_id).
func (s *Store) UpsertTaskContext(ctx context.Context, tenantID, userID string, req TaskUpsertRequest) (*TaskContext, error) {
	if req.TaskID == "" {
		return nil, soormaerrors.NewValidationError("task_id", "is required")
	}
	data, err := json.Marshal(nonNilMap(req.Data))
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	subTasks, err := json.Marshal(nonNilStrings(req.SubTasks))
	if err != nil {
		return nil, fmt.Errorf("marshal sub_tasks: %w", err)
	}
	state, err := json.Marshal(nonNilMap(req.State))
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var planID any
	if req.PlanID != "" {
		planID = req.PlanID
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO task_context (id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, task_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			event_type = EXCLUDED.event_type,
			response_event = EXCLUDED.response_event,
			response_topic = EXCLUDED.response_topic,
			data = EXCLUDED.data,
			sub_tasks = EXCLUDED.sub_tasks,
			state = EXCLUDED.state,
			updated_at = now()
		RETURNING id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state, created_at, updated_at
	`, uuid.NewString(), tenantID, userID, req.TaskID, planID, req.EventType, req.ResponseEvent, req.ResponseTopic, data, subTasks, state)

	return scanTask(row)
}

// GetTaskContext returns a task by (tenant_id, task_id).
func (s *Store) GetTaskContext(ctx context.Context, tenantID, taskID string) (*TaskContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state, created_at, updated_at
		FROM task_context WHERE tenant_id = $1 AND task_id = $2
	`, tenantID, taskID)
	return scanTask(row)
}

// UpdateTaskContext performs a read-modify-write via mutate, within a
// transaction, then persists the result.
func (s *Store) UpdateTaskContext(ctx context.Context, tenantID, taskID string, mutate func(*TaskContext) error) (*TaskContext, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state, created_at, updated_at
		FROM task_context WHERE tenant_id = $1 AND task_id = $2 FOR UPDATE
	`, tenantID, taskID)
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}

	data, err := json.Marshal(nonNilMap(t.Data))
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	subTasks, err := json.Marshal(nonNilStrings(t.SubTasks))
	if err != nil {
		return nil, fmt.Errorf("marshal sub_tasks: %w", err)
	}
	state, err := json.Marshal(nonNilMap(t.State))
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	out := tx.QueryRowContext(ctx, `
		UPDATE task_context SET event_type = $3, response_event = $4, response_topic = $5, data = $6, sub_tasks = $7, state = $8, updated_at = now()
		WHERE tenant_id = $1 AND task_id = $2
		RETURNING id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state, created_at, updated_at
	`, tenantID, taskID, t.EventType, t.ResponseEvent, t.ResponseTopic, data, subTasks, state)
	updated, err := scanTask(out)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// DeleteTaskContext removes a task, idempotently — completion (§4.7) always
// calls this after publishing the terminal response.
func (s *Store) DeleteTaskContext(ctx context.Context, tenantID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_context WHERE tenant_id = $1 AND task_id = $2`, tenantID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// GetTaskBySubtask finds the task row where subTaskID is a member of
// sub_tasks[], i.e. the parent of that sub-task.
func (s *Store) GetTaskBySubtask(ctx context.Context, tenantID, subTaskID string) (*TaskContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, task_id, plan_id, event_type, response_event, response_topic, data, sub_tasks, state, created_at, updated_at
		FROM task_context WHERE tenant_id = $1 AND sub_tasks ? $2
		LIMIT 1
	`, tenantID, subTaskID)
	return scanTask(row)
}

func scanTask(row rowScanner) (*TaskContext, error) {
	var t TaskContext
	var data, subTasks, state []byte
	var planID sql.NullString
	if err := row.Scan(&t.ID, &t.TenantID, &t.UserID, &t.TaskID, &planID, &t.EventType, &t.ResponseEvent, &t.ResponseTopic, &data, &subTasks, &state, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan task context: %w", err)
	}
	_ = json.Unmarshal(data, &t.Data)
	_ = json.Unmarshal(subTasks, &t.SubTasks)
	_ = json.Unmarshal(state, &t.State)
	if planID.Valid {
		t.PlanID = &planID.String
	}
	return &t, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
