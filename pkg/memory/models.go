package memory

import "time"

// WorkingMemoryRecord is a single plan-scoped key/value row.
type WorkingMemoryRecord struct {
	PlanID    string `json:"plan_id"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EpisodicRecord is an immutable interaction-log row.
type EpisodicRecord struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Score     *float64       `json:"score,omitempty"`
}

// EpisodicAppendRequest is the POST /v1/memory/episodic body.
type EpisodicAppendRequest struct {
	AgentID  string         `json:"agent_id"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SemanticRecord is a knowledge item with privacy and upsert semantics.
type SemanticRecord struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	ExternalID *string        `json:"external_id,omitempty"`
	IsPublic   bool           `json:"is_public"`
	Tags       []string       `json:"tags,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Score      *float64       `json:"score,omitempty"`
}

// SemanticUpsertRequest is the POST /v1/memory/semantic body.
type SemanticUpsertRequest struct {
	Content    string         `json:"content"`
	ExternalID string         `json:"external_id,omitempty"`
	IsPublic   bool           `json:"is_public"`
	Tags       []string       `json:"tags,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SemanticSearchRequest is the POST /v1/memory/semantic/search body.
type SemanticSearchRequest struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	IncludePublic *bool  `json:"include_public"`
}

// ProceduralRecord is a learned trigger/action pair.
type ProceduralRecord struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	ProcedureType    string    `json:"procedure_type"`
	TriggerCondition string    `json:"trigger_condition"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Score            *float64  `json:"score,omitempty"`
}

// ProceduralUpsertRequest is the POST /v1/memory/procedural body.
type ProceduralUpsertRequest struct {
	AgentID          string `json:"agent_id"`
	ProcedureType    string `json:"procedure_type"`
	TriggerCondition string `json:"trigger_condition"`
	Content          string `json:"content"`
}

// Scope carries the tenant/user pair every memory operation is filtered by.
type Scope struct {
	TenantID string
	UserID   string
}
