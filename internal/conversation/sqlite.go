package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/database"
)

// SQLiteStore keeps transcripts in the shared SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a store on an open database, creating the
// schema if needed. Close does not close db.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate conversation schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		legacy_id  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(legacy_id, user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		input_tokens    INTEGER NOT NULL DEFAULT 0,
		output_tokens   INTEGER NOT NULL DEFAULT 0,
		model           TEXT NOT NULL DEFAULT '',
		tool_calls      TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error { return nil }

// Create starts a new conversation.
func (s *SQLiteStore) Create(ctx context.Context, legacyID, userID string) (Conversation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Conversation{}, fmt.Errorf("generate conversation ID: %w", err)
	}
	now := s.now().UTC()
	ts := database.FormatTime(now)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, legacy_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), legacyID, userID, ts, ts); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return Conversation{ID: id.String(), LegacyID: legacyID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (Conversation, error) {
	var c Conversation
	var created, updated string
	if err := row.Scan(&c.ID, &c.LegacyID, &c.UserID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("read conversation: %w", err)
	}
	c.CreatedAt, _ = database.ParseTime(created)
	c.UpdatedAt, _ = database.ParseTime(updated)
	return c, nil
}

// Get returns a conversation by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, legacy_id, user_id, created_at, updated_at FROM conversations WHERE id = ?`, id))
}

// Latest returns the owner's most recently updated conversation.
func (s *SQLiteStore) Latest(ctx context.Context, legacyID, userID string) (Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, legacy_id, user_id, created_at, updated_at FROM conversations
		 WHERE legacy_id = ? AND user_id = ?
		 ORDER BY updated_at DESC, id DESC LIMIT 1`,
		legacyID, userID))
}

// Append adds a message to an existing conversation.
func (s *SQLiteStore) Append(ctx context.Context, m Message) (Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, fmt.Errorf("generate message ID: %w", err)
	}
	m.ID = id.String()
	m.CreatedAt = s.now().UTC()
	ts := database.FormatTime(m.CreatedAt)

	content, err := encodeContent(m.Content)
	if err != nil {
		return Message{}, err
	}
	var toolCalls any
	if m.ToolCalls != nil {
		raw, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return Message{}, fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, m.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, input_tokens, output_tokens, model, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, content, m.InputTokens, m.OutputTokens, m.Model, toolCalls, ts); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit message: %w", err)
	}
	return m, nil
}

const messageColumns = `id, conversation_id, role, content, input_tokens, output_tokens, model, tool_calls, created_at`

// Recent returns up to n of the newest messages, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	return s.scanMessages(rows)
}

// Messages returns the whole transcript, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return s.scanMessages(rows)
}

func (s *SQLiteStore) scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var content string
		var toolCalls sql.NullString
		var created string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &content,
			&m.InputTokens, &m.OutputTokens, &m.Model, &toolCalls, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = database.ParseTime(created)
		blocks, err := decodeContent(content)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
		m.Content = blocks
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				s.logger.Warn("dropping unreadable tool calls",
					"message", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}
