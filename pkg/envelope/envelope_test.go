package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActionRequest_Normalizes(t *testing.T) {
	env, err := NewActionRequest("planner", "research.requested", map[string]string{"q": "x"})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, SpecVersion, env.SpecVersion)
	assert.Equal(t, TopicActionRequests, env.Topic)
	assert.False(t, env.Time.IsZero())
	require.NoError(t, env.Validate())
}

func TestNewActionResult_CopiesCorrelation(t *testing.T) {
	req, err := NewActionRequest("planner", "research.requested", nil)
	require.NoError(t, err)
	req.ResponseEvent = "research.completed"
	req.TraceID = "trace-1"
	req.TenantID = "tenant-1"

	res, err := NewActionResult("worker-1", req, map[string]string{"answer": "42"})
	require.NoError(t, err)

	assert.Equal(t, req.CorrelationID, res.CorrelationID)
	assert.Equal(t, req.TraceID, res.TraceID)
	assert.Equal(t, req.TenantID, res.TenantID)
	assert.Equal(t, "research.completed", res.Type)
	assert.Equal(t, TopicActionResults, res.Topic)
}

func TestDeriveChildRequest_MintsNewCorrelationID(t *testing.T) {
	parent, err := NewActionRequest("planner", "plan.started", nil)
	require.NoError(t, err)
	parent.TraceID = "trace-1"

	child, err := DeriveChildRequest("planner", parent, "research.requested", TopicActionRequests, nil)
	require.NoError(t, err)

	assert.NotEqual(t, parent.CorrelationID, child.CorrelationID)
	assert.Equal(t, parent.ID, child.ParentEventID)
	assert.Equal(t, parent.TraceID, child.TraceID)
}

func TestValidate_RejectsUnknownTopic(t *testing.T) {
	env := &Envelope{Source: "s", Type: "t", Topic: "bogus", CorrelationID: "c"}
	err := env.Validate()
	require.Error(t, err)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "topic", fe.Field)
}

func TestRoundTrip_PreservesFields(t *testing.T) {
	env, err := NewActionRequest("planner", "research.requested", map[string]string{"q": "x"})
	require.NoError(t, err)
	env.Subject = "sub"
	env.PayloadSchemaName = "schema.v1"

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, json.Unmarshal(b, &out))

	assert.Equal(t, env.ID, out.ID)
	assert.Equal(t, env.CorrelationID, out.CorrelationID)
	assert.Equal(t, env.Subject, out.Subject)
	assert.JSONEq(t, string(env.Data), string(out.Data))
}
