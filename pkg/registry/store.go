package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// Store is the Postgres-backed persistence layer for event and agent
// registrations. Transactions wrap each upsert/delete, matching the
// teacher's per-request-session convention.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertEvent inserts or updates an event definition by event_name.
func (s *Store) UpsertEvent(ctx context.Context, e *EventDefinition) (*EventDefinition, error) {
	if e.EventName == "" {
		return nil, soormaerrors.NewValidationError("event_name", "is required")
	}
	if e.Topic == "" {
		return nil, soormaerrors.NewValidationError("topic", "is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payloadSchema := e.PayloadSchema
	if len(payloadSchema) == 0 {
		payloadSchema = json.RawMessage("{}")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO event_definitions (id, event_name, topic, description, payload_schema, response_schema)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_name) DO UPDATE SET
			topic = EXCLUDED.topic,
			description = EXCLUDED.description,
			payload_schema = EXCLUDED.payload_schema,
			response_schema = EXCLUDED.response_schema,
			updated_at = now()
		RETURNING id, event_name, topic, description, payload_schema, response_schema, created_at, updated_at
	`, e.ID, e.EventName, e.Topic, e.Description, payloadSchema, nullableJSON(e.ResponseSchema))

	return scanEventDefinition(row)
}

// ListEvents returns event definitions matching the given filter.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]EventDefinition, error) {
	query := `SELECT id, event_name, topic, description, payload_schema, response_schema, created_at, updated_at FROM event_definitions WHERE 1=1`
	var args []any
	if f.EventName != "" {
		args = append(args, f.EventName)
		query += fmt.Sprintf(" AND event_name = $%d", len(args))
	}
	if f.Topic != "" {
		args = append(args, f.Topic)
		query += fmt.Sprintf(" AND topic = $%d", len(args))
	}
	query += " ORDER BY event_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventDefinition
	for rows.Next() {
		ed, err := scanEventDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ed)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventDefinition(row rowScanner) (*EventDefinition, error) {
	var e EventDefinition
	var responseSchema sql.NullString
	var payloadSchema []byte
	if err := row.Scan(&e.ID, &e.EventName, &e.Topic, &e.Description, &payloadSchema, &responseSchema, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan event definition: %w", err)
	}
	e.PayloadSchema = payloadSchema
	if responseSchema.Valid {
		e.ResponseSchema = json.RawMessage(responseSchema.String)
	}
	return &e, nil
}

// UpsertAgent inserts or updates an agent and transactionally wipes and
// replaces its capability rows. Sets last_heartbeat = now.
func (s *Store) UpsertAgent(ctx context.Context, req *AgentUpsertRequest) (*Agent, error) {
	if req.AgentID == "" {
		return nil, soormaerrors.NewValidationError("agent_id", "is required")
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	consumed, err := json.Marshal(nonNil(req.EventsConsumed))
	if err != nil {
		return nil, fmt.Errorf("marshal events_consumed: %w", err)
	}
	produced, err := json.Marshal(nonNil(req.EventsProduced))
	if err != nil {
		return nil, fmt.Errorf("marshal events_produced: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO agents (id, agent_id, name, description, agent_type, consumed_events, produced_events, metadata, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (agent_id) DO UPDATE SET
			name = EXCLUDED.name,
			agent_type = EXCLUDED.agent_type,
			consumed_events = EXCLUDED.consumed_events,
			produced_events = EXCLUDED.produced_events,
			metadata = EXCLUDED.metadata,
			last_heartbeat = now(),
			updated_at = now()
		RETURNING id, agent_id, name, description, agent_type, consumed_events, produced_events, metadata, last_heartbeat, created_at, updated_at
	`, uuid.NewString(), req.AgentID, req.Name, "", req.AgentType, consumed, produced, metadata)

	agent, err := scanAgent(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capabilities WHERE agent_id = $1`, req.AgentID); err != nil {
		return nil, fmt.Errorf("clear capabilities: %w", err)
	}
	for _, c := range req.toCapabilities() {
		producedEvents, err := json.Marshal(nonNil(c.ProducedEvents))
		if err != nil {
			return nil, fmt.Errorf("marshal capability produced_events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO capabilities (id, agent_id, task_name, consumed_event, produced_events, description)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), req.AgentID, c.TaskName, c.ConsumedEvent, producedEvents, c.Description); err != nil {
			return nil, fmt.Errorf("insert capability: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	agent.Capabilities = req.toCapabilities()
	return agent, nil
}

// GetAgent returns a single agent by agent_id, with its capabilities.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, name, description, agent_type, consumed_events, produced_events, metadata, last_heartbeat, created_at, updated_at
		FROM agents WHERE agent_id = $1
	`, agentID)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, err
	}
	caps, err := s.listCapabilities(ctx, agentID)
	if err != nil {
		return nil, err
	}
	agent.Capabilities = caps
	return agent, nil
}

// ListAgents returns agents matching f. Unless f.IncludeExpired, only
// agents whose heartbeat is within ttl are returned.
func (s *Store) ListAgents(ctx context.Context, f AgentFilter, ttl time.Duration) ([]Agent, error) {
	query := `SELECT DISTINCT a.id, a.agent_id, a.name, a.description, a.agent_type, a.consumed_events, a.produced_events, a.metadata, a.last_heartbeat, a.created_at, a.updated_at
		FROM agents a`
	var joins, conds []string
	var args []any

	if f.ConsumedEvent != "" || f.ProducedEvent != "" {
		joins = append(joins, "JOIN capabilities c ON c.agent_id = a.agent_id")
	}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		conds = append(conds, fmt.Sprintf("a.agent_id = $%d", len(args)))
	}
	if f.Name != "" {
		args = append(args, f.Name)
		conds = append(conds, fmt.Sprintf("a.name = $%d", len(args)))
	}
	if f.ConsumedEvent != "" {
		args = append(args, f.ConsumedEvent)
		conds = append(conds, fmt.Sprintf("c.consumed_event = $%d", len(args)))
	}
	if f.ProducedEvent != "" {
		args = append(args, "%"+f.ProducedEvent+"%")
		conds = append(conds, fmt.Sprintf("c.produced_events::text LIKE $%d", len(args)))
	}
	if !f.IncludeExpired {
		args = append(args, ttl.Seconds())
		conds = append(conds, fmt.Sprintf("(EXTRACT(EPOCH FROM (now() - a.last_heartbeat))) <= $%d", len(args)))
	}

	for _, j := range joins {
		query += " " + j
	}
	if len(conds) > 0 {
		query += " WHERE " + joinAnd(conds)
	}
	query += " ORDER BY a.agent_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		caps, err := s.listCapabilities(ctx, out[i].AgentID)
		if err != nil {
			return nil, err
		}
		out[i].Capabilities = caps
	}
	return out, nil
}

// Heartbeat bumps last_heartbeat to now. Returns ErrNotFound if the agent is
// unknown.
func (s *Store) Heartbeat(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET last_heartbeat = now(), updated_at = now() WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
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

// DeleteAgent removes an agent and (via ON DELETE CASCADE) its
// capabilities. Returns ErrNotFound if the agent is unknown.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
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

// DeleteExpiredAgents deletes every agent whose last_heartbeat is older
// than ttl, returning the number removed. Used by the liveness reaper.
func (s *Store) DeleteExpiredAgents(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE now() - last_heartbeat > $1::interval`, fmt.Sprintf("%d seconds", int64(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("delete expired agents: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphanedCapabilities removes capability rows whose agent no longer
// exists — self-healing against any row inserted outside the normal upsert
// path (e.g. a crash between the agent insert and the old cascade delete).
func (s *Store) DeleteOrphanedCapabilities(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM capabilities c
		WHERE NOT EXISTS (SELECT 1 FROM agents a WHERE a.agent_id = c.agent_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned capabilities: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) listCapabilities(ctx context.Context, agentID string) ([]Capability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_name, consumed_event, produced_events, description
		FROM capabilities WHERE agent_id = $1 ORDER BY task_name
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []Capability
	for rows.Next() {
		var c Capability
		var produced []byte
		if err := rows.Scan(&c.TaskName, &c.ConsumedEvent, &produced, &c.Description); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(produced, &c.ProducedEvents)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var consumed, produced, metadata []byte
	if err := row.Scan(&a.ID, &a.AgentID, &a.Name, &a.Description, &a.AgentType, &consumed, &produced, &metadata, &a.LastHeartbeat, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	_ = json.Unmarshal(consumed, &a.ConsumedEvents)
	_ = json.Unmarshal(produced, &a.ProducedEvents)
	_ = json.Unmarshal(metadata, &a.Metadata)
	return &a, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
