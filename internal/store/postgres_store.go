package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/coachcall/api/internal/model"
)

// Schema creates the tables the Postgres store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    company_id TEXT,
    call_type TEXT NOT NULL,
    analysis_type TEXT NOT NULL DEFAULT 'full',
    audio_file_path TEXT NOT NULL,
    customer_name TEXT,
    agent_notes TEXT,
    analysis_notes TEXT,
    processing_status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    transcript TEXT,
    transcript_segments JSONB,
    transcript_words JSONB,
    tone_analysis_report JSONB,
    analysis_report JSONB,
    overall_score DOUBLE PRECISION,
    red_flag BOOLEAN,
    analyzed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS calls_status_updated_idx ON calls (processing_status, updated_at);

CREATE TABLE IF NOT EXISTS call_logs (
    id TEXT PRIMARY KEY,
    call_id TEXT NOT NULL,
    message TEXT NOT NULL,
    details JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS call_logs_call_idx ON call_logs (call_id, created_at);

CREATE TABLE IF NOT EXISTS prompts (
    call_type TEXT PRIMARY KEY,
    system_prompt TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_questionnaires (
    company_id TEXT PRIMARY KEY,
    industry TEXT,
    product_service TEXT,
    target_audience TEXT,
    key_differentiator TEXT,
    customer_benefits TEXT
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    role TEXT
);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var callSelectColumns = []string{
	colID, colUserID, colCompanyID, colCallType, colAnalysisType, colAudioFilePath,
	colCustomerName, colAgentNotes, colAnalysisNotes,
	model.ColProcessingStatus, model.ColErrorMessage, model.ColTranscript,
	model.ColTranscriptSegments, model.ColTranscriptWords, model.ColToneReport, model.ColContentReport,
	model.ColOverallScore, model.ColRedFlag, model.ColAnalyzedAt, colCreatedAt, model.ColUpdatedAt,
}

// PostgresStore persists calls, logs and prompts into Postgres.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCall(ctx context.Context, call *model.Call) error {
	cols, err := callColumns(call)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("calls").SetMap(sqlValues(cols)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCallExists
		}
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (*model.Call, error) {
	query, args, err := psql.Select(callSelectColumns...).From("calls").Where(sq.Eq{colID: id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	call, err := scanCall(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}
	return call, nil
}

// UpdateCall issues a single UPDATE covering only the fields set on u.
func (s *PostgresStore) UpdateCall(ctx context.Context, id string, u model.CallUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	cols, err := updateColumns(u)
	if err != nil {
		return err
	}
	cols[model.ColUpdatedAt] = time.Now().UTC()

	query, args, err := psql.Update("calls").SetMap(cols).Where(sq.Eq{colID: id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrCallNotFound
	}
	return nil
}

func (s *PostgresStore) ListStalled(ctx context.Context, before time.Time, limit int) ([]*model.Call, error) {
	statuses := make([]string, 0, len(model.InFlightStatuses))
	for _, st := range model.InFlightStatuses {
		statuses = append(statuses, string(st))
	}

	builder := psql.Select(callSelectColumns...).From("calls").
		Where(sq.Expr("processing_status = ANY(?)", pq.Array(statuses))).
		Where(sq.Expr("COALESCE(updated_at, created_at) < ?", before.UTC())).
		OrderBy("COALESCE(updated_at, created_at) ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stalled: %w", err)
	}
	defer rows.Close()

	var calls []*model.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return calls, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *model.CallLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details interface{}
	if len(entry.Data) > 0 {
		data, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("marshal log details: %w", err)
		}
		details = string(data)
	}

	query, args, err := psql.Insert("call_logs").
		Columns("id", "call_id", "message", "details", "created_at").
		Values(entry.ID, entry.CallID, entry.Message, details, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, callID string, limit int) ([]model.CallLog, error) {
	builder := psql.Select("id", "call_id", "message", "details", "created_at").
		From("call_logs").
		Where(sq.Eq{"call_id": callID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []model.CallLog
	for rows.Next() {
		var (
			entry   model.CallLog
			details sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.CallID, &entry.Message, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if details.Valid {
			_ = json.Unmarshal([]byte(details.String), &entry.Data)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	// newest first from the query; callers expect chronological order
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

func (s *PostgresStore) GetPromptForCategory(ctx context.Context, callType string) (string, bool, error) {
	query, args, err := psql.Select("system_prompt").From("prompts").
		Where(sq.Eq{"call_type": promptField(callType), "is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build select: %w", err)
	}

	var prompt string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load prompt: %w", err)
	}
	return prompt, prompt != "", nil
}

func (s *PostgresStore) UpsertPrompt(ctx context.Context, callType, prompt string) error {
	query, args, err := psql.Insert("prompts").
		Columns("call_type", "system_prompt", "is_active", "updated_at").
		Values(promptField(callType), prompt, true, time.Now().UTC()).
		Suffix(`ON CONFLICT (call_type) DO UPDATE
              SET system_prompt = EXCLUDED.system_prompt,
                  is_active = TRUE,
                  updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivatePrompt(ctx context.Context, callType string) error {
	query, args, err := psql.Update("prompts").
		Set("is_active", false).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"call_type": promptField(callType), "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivate prompt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// GetBusinessContext joins the company with its questionnaire and reads the
// caller's role. Missing rows yield a nil context.
func (s *PostgresStore) GetBusinessContext(ctx context.Context, call *model.Call) (*model.BusinessContext, error) {
	var bc model.BusinessContext

	if call.CompanyID != "" {
		query, args, err := psql.Select(
			"c.name",
			"COALESCE(q.industry, '')",
			"COALESCE(q.product_service, '')",
			"COALESCE(q.target_audience, '')",
			"COALESCE(q.key_differentiator, '')",
			"COALESCE(q.customer_benefits, '')",
		).
			From("companies c").
			LeftJoin("company_questionnaires q ON q.company_id = c.id").
			Where(sq.Eq{"c.id": call.CompanyID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build select: %w", err)
		}

		err = s.db.QueryRowContext(ctx, query, args...).Scan(
			&bc.CompanyName, &bc.Industry, &bc.ProductService,
			&bc.TargetAudience, &bc.KeyDifferentiator, &bc.CustomerBenefits,
		)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load company: %w", err)
		}
	}

	if call.UserID != "" {
		query, args, err := psql.Select("COALESCE(role, '')").From("users").Where(sq.Eq{"id": call.UserID}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build select: %w", err)
		}
		err = s.db.QueryRowContext(ctx, query, args...).Scan(&bc.UserRole)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load user: %w", err)
		}
	}

	if bc == (model.BusinessContext{}) {
		return nil, nil
	}
	return &bc, nil
}

// sqlValues maps an empty error message to NULL; JSON columns arrive as
// strings so jsonb accepts them.
// updateColumns is the SET clause for u; cleared outputs become NULL.
func updateColumns(u model.CallUpdate) (map[string]interface{}, error) {
	cols, err := u.Columns()
	if err != nil {
		return nil, err
	}
	for _, col := range u.ClearedColumns() {
		cols[col] = nil
	}
	return sqlValues(cols), nil
}

func sqlValues(cols map[string]interface{}) map[string]interface{} {
	if v, ok := cols[model.ColErrorMessage]; ok && v == "" {
		cols[model.ColErrorMessage] = nil
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCall reads a row in callSelectColumns order and decodes it through
// the same string form the Redis store uses.
func scanCall(row rowScanner) (*model.Call, error) {
	var (
		texts     [12]sql.NullString
		jsons     [4]sql.NullString
		score     sql.NullFloat64
		redFlag   sql.NullBool
		analyzed  sql.NullTime
		createdAt time.Time
		updated   sql.NullTime
	)

	dest := make([]interface{}, 0, len(callSelectColumns))
	for i := range texts {
		dest = append(dest, &texts[i])
	}
	for i := range jsons {
		dest = append(dest, &jsons[i])
	}
	dest = append(dest, &score, &redFlag, &analyzed, &createdAt, &updated)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	h := make(map[string]string, len(callSelectColumns))
	for i, v := range texts {
		if v.Valid {
			h[callSelectColumns[i]] = v.String
		}
	}
	for i, v := range jsons {
		if v.Valid {
			h[callSelectColumns[len(texts)+i]] = v.String
		}
	}
	if score.Valid {
		h[model.ColOverallScore] = strconv.FormatFloat(score.Float64, 'f', -1, 64)
	}
	if redFlag.Valid {
		h[model.ColRedFlag] = strconv.FormatBool(redFlag.Bool)
	}
	if analyzed.Valid {
		h[model.ColAnalyzedAt] = analyzed.Time.UTC().Format(time.RFC3339Nano)
	}
	h[colCreatedAt] = createdAt.UTC().Format(time.RFC3339Nano)
	if updated.Valid {
		h[model.ColUpdatedAt] = updated.Time.UTC().Format(time.RFC3339Nano)
	}

	return callFromHash(h)
}
