package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// Store is the Postgres-backed persistence layer for working, episodic,
// semantic, and procedural memory. Methods that take a Scope filter by
// (tenant_id, user_id) as required by §4.4's scoping invariant;
// SearchSemantic additionally returns other users' public rows when
// includePublic is set. DeleteWorkingPlanAnyUser filters by tenant only.
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

// --- working memory ---------------------------------------------------

// UpsertWorking inserts or updates a single plan-scoped key.
func (s *Store) UpsertWorking(ctx context.Context, scope Scope, planID, key string, value any) (*WorkingMemoryRecord, error) {
	if planID == "" || key == "" {
		return nil, soormaerrors.NewValidationError("plan_id/key", "are required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO working_memory (id, tenant_id, user_id, plan_id, key, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id, plan_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
		RETURNING plan_id, key, value, created_at, updated_at
	`, uuid.NewString(), scope.TenantID, scope.UserID, planID, key, raw)

	return scanWorking(row)
}

// GetWorking returns a single key's record, or ErrNotFound.
func (s *Store) GetWorking(ctx context.Context, scope Scope, planID, key string) (*WorkingMemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, key, value, created_at, updated_at
		FROM working_memory
		WHERE tenant_id = $1 AND user_id = $2 AND plan_id = $3 AND key = $4
	`, scope.TenantID, scope.UserID, planID, key)
	return scanWorking(row)
}

// DeleteWorkingKey removes a single key. deleted=false (not an error) if the
// key was absent, matching the idempotent-delete requirement.
func (s *Store) DeleteWorkingKey(ctx context.Context, scope Scope, planID, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM working_memory WHERE tenant_id = $1 AND user_id = $2 AND plan_id = $3 AND key = $4
	`, scope.TenantID, scope.UserID, planID, key)
	if err != nil {
		return false, fmt.Errorf("delete working key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteWorkingPlan removes every key for a plan, returning the count removed.
func (s *Store) DeleteWorkingPlan(ctx context.Context, scope Scope, planID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM working_memory WHERE tenant_id = $1 AND user_id = $2 AND plan_id = $3
	`, scope.TenantID, scope.UserID, planID)
	if err != nil {
		return 0, fmt.Errorf("delete working plan: %w", err)
	}
	return res.RowsAffected()
}

// DeleteWorkingPlanAnyUser removes every key for a plan regardless of user —
// used by plan deletion (§4.7's delete_plan cascade), which is not itself
// user-scoped.
func (s *Store) DeleteWorkingPlanAnyUser(ctx context.Context, tenantID, planID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM working_memory WHERE tenant_id = $1 AND plan_id = $2
	`, tenantID, planID)
	if err != nil {
		return 0, fmt.Errorf("delete working plan: %w", err)
	}
	return res.RowsAffected()
}

func scanWorking(row rowScanner) (*WorkingMemoryRecord, error) {
	var rec WorkingMemoryRecord
	var raw []byte
	if err := row.Scan(&rec.PlanID, &rec.Key, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan working memory: %w", err)
	}
	_ = json.Unmarshal(raw, &rec.Value)
	return &rec, nil
}

// --- episodic memory ----------------------------------------------------

// episodicSearchCap bounds how many candidate rows are pulled into Go for
// in-memory cosine ranking; the spec's scale (tenant-scoped working sets) is
// well under this.
const episodicSearchCap = 500

// AppendEpisodic inserts an immutable interaction-log row.
func (s *Store) AppendEpisodic(ctx context.Context, scope Scope, req EpisodicAppendRequest, embedding []float32) (*EpisodicRecord, error) {
	if req.Content == "" {
		return nil, soormaerrors.NewValidationError("content", "is required")
	}
	if req.Role == "" {
		req.Role = "user"
	}
	metadata, err := json.Marshal(nonNilMap(req.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}

	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO episodic_memory (id, tenant_id, user_id, agent_id, role, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, agent_id, role, content, metadata, created_at
	`, id, scope.TenantID, scope.UserID, req.AgentID, req.Role, req.Content, metadata, embJSON)

	return scanEpisodic(row)
}

// RecentEpisodic returns the newest rows first, up to limit.
func (s *Store) RecentEpisodic(ctx context.Context, scope Scope, agentID string, limit int) ([]EpisodicRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `SELECT id, agent_id, role, content, metadata, created_at FROM episodic_memory WHERE tenant_id = $1 AND user_id = $2`
	args := []any{scope.TenantID, scope.UserID}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent episodic: %w", err)
	}
	defer rows.Close()

	var out []EpisodicRecord
	for rows.Next() {
		rec, err := scanEpisodic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SearchEpisodic ranks candidate rows by cosine similarity to queryEmbedding,
// descending, returning up to limit with Score populated.
func (s *Store) SearchEpisodic(ctx context.Context, scope Scope, agentID string, queryEmbedding []float32, limit int) ([]EpisodicRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `SELECT id, agent_id, role, content, metadata, created_at, embedding FROM episodic_memory WHERE tenant_id = $1 AND user_id = $2`
	args := []any{scope.TenantID, scope.UserID}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	args = append(args, episodicSearchCap)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search episodic: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		rec EpisodicRecord
		emb []float32
	}
	var candidates []candidate
	for rows.Next() {
		var rec EpisodicRecord
		var metadata, embRaw []byte
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Role, &rec.Content, &metadata, &rec.CreatedAt, &embRaw); err != nil {
			return nil, fmt.Errorf("scan episodic candidate: %w", err)
		}
		_ = json.Unmarshal(metadata, &rec.Metadata)
		var emb []float32
		_ = json.Unmarshal(embRaw, &emb)
		candidates = append(candidates, candidate{rec: rec, emb: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankBySimilarity(candidates, queryEmbedding, limit,
		func(c candidate) []float32 { return c.emb },
		func(c candidate, score float64) EpisodicRecord {
			c.rec.Score = &score
			return c.rec
		},
	)
}

func scanEpisodic(row rowScanner) (*EpisodicRecord, error) {
	var rec EpisodicRecord
	var metadata []byte
	if err := row.Scan(&rec.ID, &rec.AgentID, &rec.Role, &rec.Content, &metadata, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan episodic: %w", err)
	}
	_ = json.Unmarshal(metadata, &rec.Metadata)
	return &rec, nil
}

// --- semantic memory ------------------------------------------------------

// semanticSearchCap bounds how many candidate rows are pulled into Go for
// in-memory cosine ranking.
const semanticSearchCap = 500

// HashContent returns the SHA-256 hex digest of content verbatim (no
// normalization), matching the original source's behaviour where the spec is
// silent on normalization.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UpsertSemantic applies the §3.4 upsert rule: match on (tenant, external_id)
// when is_public, else (tenant, user, external_id); fall back to
// content_hash when external_id is empty. On match, update content,
// embedding, is_public, metadata; keep created_at, bump updated_at.
func (s *Store) UpsertSemantic(ctx context.Context, scope Scope, req SemanticUpsertRequest, embedding []float32) (*SemanticRecord, error) {
	if req.Content == "" {
		return nil, soormaerrors.NewValidationError("content", "is required")
	}
	hash := HashContent(req.Content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	var lookupErr error
	switch {
	case req.ExternalID != "" && req.IsPublic:
		lookupErr = tx.QueryRowContext(ctx, `
			SELECT id FROM semantic_memory WHERE tenant_id = $1 AND external_id = $2 AND is_public = true FOR UPDATE
		`, scope.TenantID, req.ExternalID).Scan(&existingID)
	case req.ExternalID != "" && !req.IsPublic:
		lookupErr = tx.QueryRowContext(ctx, `
			SELECT id FROM semantic_memory WHERE tenant_id = $1 AND user_id = $2 AND external_id = $3 AND is_public = false FOR UPDATE
		`, scope.TenantID, scope.UserID, req.ExternalID).Scan(&existingID)
	case req.ExternalID == "" && req.IsPublic:
		lookupErr = tx.QueryRowContext(ctx, `
			SELECT id FROM semantic_memory WHERE tenant_id = $1 AND content_hash = $2 AND is_public = true FOR UPDATE
		`, scope.TenantID, hash).Scan(&existingID)
	default:
		lookupErr = tx.QueryRowContext(ctx, `
			SELECT id FROM semantic_memory WHERE tenant_id = $1 AND user_id = $2 AND content_hash = $3 AND is_public = false FOR UPDATE
		`, scope.TenantID, scope.UserID, hash).Scan(&existingID)
	}

	metadata, err := json.Marshal(nonNilMap(req.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := json.Marshal(nonNilStrings(req.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}

	var row *sql.Row
	switch {
	case errors.Is(lookupErr, sql.ErrNoRows):
		var externalID any
		if req.ExternalID != "" {
			externalID = req.ExternalID
		}
		row = tx.QueryRowContext(ctx, `
			INSERT INTO semantic_memory (id, tenant_id, user_id, content, external_id, content_hash, is_public, tags, source, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, user_id, content, external_id, is_public, tags, source, metadata, created_at, updated_at
		`, uuid.NewString(), scope.TenantID, scope.UserID, req.Content, externalID, hash, req.IsPublic, tags, req.Source, metadata, embJSON)
	case lookupErr != nil:
		return nil, fmt.Errorf("lookup semantic upsert target: %w", lookupErr)
	default:
		row = tx.QueryRowContext(ctx, `
			UPDATE semantic_memory SET
				content = $2, content_hash = $3, is_public = $4, tags = $5, source = $6, metadata = $7, embedding = $8, updated_at = now()
			WHERE id = $1
			RETURNING id, user_id, content, external_id, is_public, tags, source, metadata, created_at, updated_at
		`, existingID, req.Content, hash, req.IsPublic, tags, req.Source, metadata, embJSON)
	}

	rec, err := scanSemantic(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return rec, nil
}

// SearchSemantic returns rows visible under the privacy rule (own + public
// when includePublic), ranked by cosine similarity.
func (s *Store) SearchSemantic(ctx context.Context, scope Scope, queryEmbedding []float32, limit int, includePublic bool) ([]SemanticRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `SELECT id, user_id, content, external_id, is_public, tags, source, metadata, created_at, updated_at, embedding
		FROM semantic_memory WHERE tenant_id = $1 AND (user_id = $2`
	args := []any{scope.TenantID, scope.UserID}
	if includePublic {
		query += " OR is_public = true"
	}
	query += ")"
	args = append(args, semanticSearchCap)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search semantic: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		rec SemanticRecord
		emb []float32
	}
	var candidates []candidate
	for rows.Next() {
		var rec SemanticRecord
		var externalID sql.NullString
		var tags, metadata, embRaw []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Content, &externalID, &rec.IsPublic, &tags, &rec.Source, &metadata, &rec.CreatedAt, &rec.UpdatedAt, &embRaw); err != nil {
			return nil, fmt.Errorf("scan semantic candidate: %w", err)
		}
		if externalID.Valid {
			rec.ExternalID = &externalID.String
		}
		_ = json.Unmarshal(tags, &rec.Tags)
		_ = json.Unmarshal(metadata, &rec.Metadata)
		var emb []float32
		_ = json.Unmarshal(embRaw, &emb)
		candidates = append(candidates, candidate{rec: rec, emb: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankBySimilarity(candidates, queryEmbedding, limit,
		func(c candidate) []float32 { return c.emb },
		func(c candidate, score float64) SemanticRecord {
			c.rec.Score = &score
			return c.rec
		},
	)
}

func scanSemantic(row rowScanner) (*SemanticRecord, error) {
	var rec SemanticRecord
	var externalID sql.NullString
	var tags, metadata []byte
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Content, &externalID, &rec.IsPublic, &tags, &rec.Source, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan semantic: %w", err)
	}
	if externalID.Valid {
		rec.ExternalID = &externalID.String
	}
	_ = json.Unmarshal(tags, &rec.Tags)
	_ = json.Unmarshal(metadata, &rec.Metadata)
	return &rec, nil
}

// --- procedural memory -----------------------------------------------------

// UpsertProcedural inserts a learned trigger/action pair. Procedural memory
// carries no upsert key in the spec's data model; each call appends a row.
func (s *Store) UpsertProcedural(ctx context.Context, scope Scope, req ProceduralUpsertRequest, embedding []float32) (*ProceduralRecord, error) {
	if req.Content == "" || req.ProcedureType == "" {
		return nil, soormaerrors.NewValidationError("content/procedure_type", "are required")
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO procedural_memory (id, tenant_id, user_id, agent_id, procedure_type, trigger_condition, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, agent_id, procedure_type, trigger_condition, content, created_at, updated_at
	`, uuid.NewString(), scope.TenantID, scope.UserID, req.AgentID, req.ProcedureType, req.TriggerCondition, req.Content, embJSON)
	return scanProcedural(row)
}

// SearchProcedural ranks candidate rows by cosine similarity to queryEmbedding.
func (s *Store) SearchProcedural(ctx context.Context, scope Scope, agentID string, queryEmbedding []float32, limit int) ([]ProceduralRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `SELECT id, agent_id, procedure_type, trigger_condition, content, created_at, updated_at, embedding
		FROM procedural_memory WHERE tenant_id = $1 AND user_id = $2`
	args := []any{scope.TenantID, scope.UserID}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	args = append(args, semanticSearchCap)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search procedural: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		rec ProceduralRecord
		emb []float32
	}
	var candidates []candidate
	for rows.Next() {
		var rec ProceduralRecord
		var embRaw []byte
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.ProcedureType, &rec.TriggerCondition, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt, &embRaw); err != nil {
			return nil, fmt.Errorf("scan procedural candidate: %w", err)
		}
		var emb []float32
		_ = json.Unmarshal(embRaw, &emb)
		candidates = append(candidates, candidate{rec: rec, emb: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankBySimilarity(candidates, queryEmbedding, limit,
		func(c candidate) []float32 { return c.emb },
		func(c candidate, score float64) ProceduralRecord {
			c.rec.Score = &score
			return c.rec
		},
	)
}

func scanProcedural(row rowScanner) (*ProceduralRecord, error) {
	var rec ProceduralRecord
	if err := row.Scan(&rec.ID, &rec.AgentID, &rec.ProcedureType, &rec.TriggerCondition, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, soormaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan procedural: %w", err)
	}
	return &rec, nil
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
