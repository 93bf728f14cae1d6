package registry

import (
	"encoding/json"
	"time"
)

// EventDefinition is the durable event_name -> schema registration.
type EventDefinition struct {
	ID             string          `json:"id"`
	EventName      string          `json:"eventName"`
	Topic          string          `json:"topic"`
	Description    string          `json:"description"`
	PayloadSchema  json.RawMessage `json:"payloadSchema"`
	ResponseSchema json.RawMessage `json:"responseSchema,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Capability describes one task an agent can perform.
type Capability struct {
	TaskName       string   `json:"taskName"`
	ConsumedEvent  string   `json:"consumedEvent"`
	ProducedEvents []string `json:"producedEvents"`
	Description    string   `json:"description"`
}

// Agent is the durable agent_id -> capabilities/liveness registration.
type Agent struct {
	ID             string                 `json:"id"`
	AgentID        string                 `json:"agentId"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	AgentType      string                 `json:"agentType"`
	ConsumedEvents []string               `json:"consumedEvents"`
	ProducedEvents []string               `json:"producedEvents"`
	Capabilities   []Capability           `json:"capabilities"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	LastHeartbeat  time.Time              `json:"lastHeartbeat"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// IsActive reports whether the agent's last heartbeat is within ttl of now.
func (a *Agent) IsActive(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.LastHeartbeat) <= ttl
}

// flexCapability unmarshals either a bare string (auto-expanded per §4.3) or
// a full capability object.
type flexCapability struct {
	TaskName       string   `json:"task_name"`
	ConsumedEvent  string   `json:"consumed_event"`
	ProducedEvents []string `json:"produced_events"`
	Description    string   `json:"description"`
}

func (c *flexCapability) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.TaskName = s
		c.ConsumedEvent = "unknown"
		return nil
	}
	type alias flexCapability
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = flexCapability(a)
	if c.ConsumedEvent == "" {
		c.ConsumedEvent = "unknown"
	}
	return nil
}

// AgentUpsertRequest is the SDK-flat shape accepted by POST /v1/agents.
type AgentUpsertRequest struct {
	AgentID        string                 `json:"agent_id"`
	Name           string                 `json:"name"`
	AgentType      string                 `json:"agent_type"`
	Capabilities   []flexCapability       `json:"capabilities"`
	EventsConsumed []string               `json:"events_consumed"`
	EventsProduced []string               `json:"events_produced"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (r *AgentUpsertRequest) toCapabilities() []Capability {
	out := make([]Capability, 0, len(r.Capabilities))
	for _, c := range r.Capabilities {
		out = append(out, Capability{
			TaskName:       c.TaskName,
			ConsumedEvent:  c.ConsumedEvent,
			ProducedEvents: c.ProducedEvents,
			Description:    c.Description,
		})
	}
	return out
}

// EventUpsertRequest is the body of POST /v1/events.
type EventUpsertRequest struct {
	Event EventDefinition `json:"event"`
}

// AgentFilter narrows GET /v1/agents.
type AgentFilter struct {
	AgentID        string
	Name           string
	ConsumedEvent  string
	ProducedEvent  string
	IncludeExpired bool
}

// EventFilter narrows GET /v1/events.
type EventFilter struct {
	EventName string
	Topic     string
}
