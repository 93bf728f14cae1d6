// Package envelope defines the platform's uniform wire message and the
// typed constructor helpers used to derive child requests and responses
// from it.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic is one of the eight enumerated logical channels the bus carries.
type Topic string

const (
	TopicBusinessFacts      Topic = "business-facts"
	TopicActionRequests     Topic = "action-requests"
	TopicActionResults      Topic = "action-results"
	TopicBillingEvents      Topic = "billing-events"
	TopicNotificationEvents Topic = "notification-events"
	TopicSystemEvents       Topic = "system-events"
	TopicPlanEvents         Topic = "plan-events"
	TopicTaskEvents         Topic = "task-events"
)

// ValidTopics is the closed set of topics accepted on the wire.
var ValidTopics = map[Topic]bool{
	TopicBusinessFacts:      true,
	TopicActionRequests:     true,
	TopicActionResults:      true,
	TopicBillingEvents:      true,
	TopicNotificationEvents: true,
	TopicSystemEvents:       true,
	TopicPlanEvents:         true,
	TopicTaskEvents:         true,
}

// SpecVersion is the constant specversion carried by every envelope.
const SpecVersion = "1.0"

// Envelope is the platform's CloudEvents-shaped wire message. It is treated
// as immutable once constructed; derivation helpers always return a new
// value rather than mutating the receiver.
type Envelope struct {
	ID                string          `json:"id"`
	Source            string          `json:"source"`
	Type              string          `json:"type"`
	Topic             Topic           `json:"topic"`
	SpecVersion       string          `json:"specversion"`
	Time              time.Time       `json:"time"`
	Data              json.RawMessage `json:"data,omitempty"`
	CorrelationID     string          `json:"correlation_id"`
	ResponseEvent     string          `json:"response_event,omitempty"`
	ResponseTopic     Topic           `json:"response_topic,omitempty"`
	TraceID           string          `json:"trace_id,omitempty"`
	ParentEventID     string          `json:"parent_event_id,omitempty"`
	TenantID          string          `json:"tenant_id,omitempty"`
	UserID            string          `json:"user_id,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
	Subject           string          `json:"subject,omitempty"`
	PayloadSchemaName string          `json:"payload_schema_name,omitempty"`
}

// DataAs unmarshals the envelope's data payload into v.
func (e *Envelope) DataAs(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Normalize fills in defaults (id, specversion, time, correlation_id) for an
// envelope that is about to be published, generating values where the
// caller omitted them. It does not validate.
func (e *Envelope) Normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SpecVersion == "" {
		e.SpecVersion = SpecVersion
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	} else {
		e.Time = e.Time.UTC()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
	if e.ResponseTopic == "" && e.ResponseEvent != "" {
		e.ResponseTopic = TopicActionResults
	}
}

// Validate checks the required fields and the closed topic enum. It returns
// a FieldError describing the first problem found, or nil.
func (e *Envelope) Validate() error {
	if e.Source == "" {
		return &FieldError{Field: "source", Message: "is required"}
	}
	if e.Type == "" {
		return &FieldError{Field: "type", Message: "is required"}
	}
	if e.Topic == "" {
		return &FieldError{Field: "topic", Message: "is required"}
	}
	if !ValidTopics[e.Topic] {
		return &FieldError{Field: "topic", Message: fmt.Sprintf("unknown topic %q", e.Topic)}
	}
	if e.CorrelationID == "" {
		return &FieldError{Field: "correlation_id", Message: "is required"}
	}
	return nil
}

// FieldError reports a single malformed or missing envelope field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("envelope field %q %s", e.Field, e.Message)
}

// NewActionRequest builds a fresh action-request envelope.
func NewActionRequest(source, eventType string, data any) (*Envelope, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Source: source,
		Type:   eventType,
		Topic:  TopicActionRequests,
		Data:   raw,
	}
	env.Normalize()
	return env, nil
}

// NewActionResult builds a response envelope for the given request,
// following the derivation invariant in §3.1: the result copies
// correlation_id, trace_id, tenant_id, session_id from the request and uses
// request.response_event as its type.
func NewActionResult(source string, request *Envelope, data any) (*Envelope, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	responseTopic := request.ResponseTopic
	if responseTopic == "" {
		responseTopic = TopicActionResults
	}
	env := &Envelope{
		Source:        source,
		Type:          request.ResponseEvent,
		Topic:         responseTopic,
		Data:          raw,
		CorrelationID: request.CorrelationID,
		TraceID:       request.TraceID,
		TenantID:      request.TenantID,
		UserID:        request.UserID,
		SessionID:     request.SessionID,
	}
	env.Normalize()
	// CorrelationID/TraceID must be copied verbatim, not minted.
	env.CorrelationID = request.CorrelationID
	env.TraceID = request.TraceID
	return env, nil
}

// DeriveChildRequest builds a child request from a parent envelope per the
// derivation invariant in §3.1: copies trace_id, tenant_id, session_id,
// sets parent_event_id=parent.id, mints a new correlation_id.
func DeriveChildRequest(source string, parent *Envelope, eventType string, topic Topic, data any) (*Envelope, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Source:        source,
		Type:          eventType,
		Topic:         topic,
		Data:          raw,
		TraceID:       parent.TraceID,
		TenantID:      parent.TenantID,
		SessionID:     parent.SessionID,
		ParentEventID: parent.ID,
	}
	env.Normalize()
	return env, nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope data: %w", err)
	}
	return b, nil
}
