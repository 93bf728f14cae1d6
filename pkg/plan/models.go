// Package plan implements the Plan/Task execution contracts (§4.7): the
// persisted state-machine records and lookup rules a planner and its
// delegated workers coordinate through. It is not a standalone network
// service — it shares the Memory Service's database and is exposed through
// the Memory Service's /v1/plans and /v1/tasks HTTP surface.
package plan

import "time"

// Status is a PlanContext's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Context is a persisted plan state machine.
type Context struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	PlanID         string         `json:"plan_id"`
	SessionID      string         `json:"session_id,omitempty"`
	GoalEvent      string         `json:"goal_event"`
	GoalData       map[string]any `json:"goal_data,omitempty"`
	ResponseEvent  string         `json:"response_event,omitempty"`
	Status         Status         `json:"status"`
	State          map[string]any `json:"state,omitempty"`
	CurrentState   string         `json:"current_state,omitempty"`
	CorrelationIDs []string       `json:"correlation_ids,omitempty"`
	ParentPlanID   *string        `json:"parent_plan_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CreateRequest is the body for POST /v1/plans.
type CreateRequest struct {
	PlanID         string         `json:"plan_id"`
	SessionID      string         `json:"session_id,omitempty"`
	GoalEvent      string         `json:"goal_event"`
	GoalData       map[string]any `json:"goal_data,omitempty"`
	ResponseEvent  string         `json:"response_event,omitempty"`
	CorrelationIDs []string       `json:"correlation_ids,omitempty"`
	ParentPlanID   string         `json:"parent_plan_id,omitempty"`
}

// ListFilter filters list_plans.
type ListFilter struct {
	Status Status
	UserID string
}

// TaskContext is a persisted task/sub-task record.
type TaskContext struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	UserID        string         `json:"user_id"`
	TaskID        string         `json:"task_id"`
	PlanID        *string        `json:"plan_id,omitempty"`
	EventType     string         `json:"event_type,omitempty"`
	ResponseEvent string         `json:"response_event,omitempty"`
	ResponseTopic string         `json:"response_topic,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	SubTasks      []string       `json:"sub_tasks,omitempty"`
	State         map[string]any `json:"state,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TaskUpsertRequest is the body for upsert_task_context.
type TaskUpsertRequest struct {
	TaskID        string         `json:"task_id"`
	PlanID        string         `json:"plan_id,omitempty"`
	EventType     string         `json:"event_type,omitempty"`
	ResponseEvent string         `json:"response_event,omitempty"`
	ResponseTopic string         `json:"response_topic,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	SubTasks      []string       `json:"sub_tasks,omitempty"`
	State         map[string]any `json:"state,omitempty"`
}
