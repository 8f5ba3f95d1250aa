// Package usage records token usage for completed chat turns. Records
// are append-only and indexed by timestamp, legacy and conversation for
// aggregation queries.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/database"
)

// Record is the token usage of one completed turn, summed over every
// model call the turn made.
type Record struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	LegacyID       string    `json:"legacy_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Provider       string    `json:"provider"` // "anthropic", "gemini"
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	ToolCalls      int       `json:"tool_calls"`
	Rounds         int       `json:"rounds"`
}

// Summary holds aggregated token totals.
type Summary struct {
	TotalRecords      int   `json:"total_records"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	TotalToolCalls    int64 `json:"total_tool_calls"`
}

// Store is an append-only SQLite store for usage records. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a usage store on an open database. The schema is
// created automatically on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id              TEXT PRIMARY KEY,
		timestamp       TEXT NOT NULL,
		legacy_id       TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		model           TEXT NOT NULL,
		provider        TEXT NOT NULL,
		input_tokens    INTEGER NOT NULL,
		output_tokens   INTEGER NOT NULL,
		tool_calls      INTEGER NOT NULL DEFAULT 0,
		rounds          INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_legacy ON usage_records(legacy_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_conversation ON usage_records(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a usage record. If rec.ID is empty, a UUIDv7 is
// generated; a zero Timestamp is set to now.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, legacy_id, user_id, conversation_id, model, provider,
			 input_tokens, output_tokens, tool_calls, rounds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		database.FormatTime(rec.Timestamp),
		rec.LegacyID,
		rec.UserID,
		rec.ConversationID,
		rec.Model,
		rec.Provider,
		rec.InputTokens,
		rec.OutputTokens,
		rec.ToolCalls,
		rec.Rounds,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Filter narrows a summary to a time window and, optionally, one legacy.
// A zero End means now.
type Filter struct {
	Start    time.Time
	End      time.Time
	LegacyID string
}

func (s *Store) where(f Filter) (string, []any) {
	end := f.End
	if end.IsZero() {
		end = s.now()
	}
	clause := `WHERE timestamp >= ? AND timestamp < ?`
	args := []any{database.FormatTime(f.Start), database.FormatTime(end)}
	if f.LegacyID != "" {
		clause += ` AND legacy_id = ?`
		args = append(args, f.LegacyID)
	}
	return clause, args
}

// Summary returns aggregated totals for records matching f.
func (s *Store) Summary(ctx context.Context, f Filter) (*Summary, error) {
	clause, args := s.where(f)
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(tool_calls), 0)
		 FROM usage_records `+clause,
		args...,
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalToolCalls); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByModel returns per-model totals for records matching f.
func (s *Store) SummaryByModel(ctx context.Context, f Filter) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "model", f)
}

// SummaryByProvider returns per-provider totals for records matching f.
func (s *Store) SummaryByProvider(ctx context.Context, f Filter) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "provider", f)
}

func (s *Store) summaryGroupedBy(ctx context.Context, column string, f Filter) (map[string]*Summary, error) {
	// column is always a constant from our own methods.
	clause, args := s.where(f)
	query := fmt.Sprintf(
		`SELECT COALESCE(%s, ''), COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(tool_calls), 0)
		 FROM usage_records
		 %s
		 GROUP BY %s
		 ORDER BY SUM(input_tokens + output_tokens) DESC`,
		column, clause, column,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		var sum Summary
		if err := rows.Scan(&key, &sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalToolCalls); err != nil {
			return nil, fmt.Errorf("scan usage by %s: %w", column, err)
		}
		result[key] = &sum
	}
	return result, rows.Err()
}
