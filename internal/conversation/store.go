// Package conversation persists chat transcripts: one conversation per
// legacy and user at a time, each an ordered list of messages.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/heirloom/internal/llm"
	"github.com/nugget/heirloom/internal/tools"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation is a transcript header.
type Conversation struct {
	ID        string    `json:"id"`
	LegacyID  string    `json:"legacy_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolCallRecord is one tool invocation made while producing an
// assistant message.
type ToolCallRecord struct {
	Name    string         `json:"name"`
	Input   map[string]any `json:"input"`
	Outcome tools.Outcome  `json:"outcome"`
}

// Message is one persisted turn. Token counts, Model and ToolCalls are
// only set on assistant messages; ToolCalls is nil when no tool ran.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           string           `json:"role"`
	Content        []llm.Block      `json:"-"`
	InputTokens    int              `json:"input_tokens,omitempty"`
	OutputTokens   int              `json:"output_tokens,omitempty"`
	Model          string           `json:"model,omitempty"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TextMessage builds a message holding a single text block.
func TextMessage(conversationID, role, text string) Message {
	return Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        []llm.Block{llm.TextBlock{Text: text}},
	}
}

// Text joins the message's text blocks.
func (m Message) Text() string {
	return strings.Join(llm.Texts(m.Content), "\n\n")
}

// messageJSON is Message on the wire: Content as typed blocks plus the
// joined text for clients that only render text.
type messageJSON struct {
	messageFields
	Content json.RawMessage `json:"content"`
	Text    string          `json:"text"`
}

type messageFields Message

// MarshalJSON encodes Content in the block storage encoding.
func (m Message) MarshalJSON() ([]byte, error) {
	blocks, err := llm.MarshalBlocks(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{messageFields: messageFields(m), Content: blocks, Text: m.Text()})
}

// UnmarshalJSON decodes the output of MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message(w.messageFields)
	if len(w.Content) == 0 || string(w.Content) == "null" {
		m.Content = nil
		return nil
	}
	blocks, err := llm.UnmarshalBlocks(w.Content)
	if err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	m.Content = blocks
	return nil
}

// encodeContent and decodeContent convert Content to and from the text
// both stores keep in their content field.
func encodeContent(blocks []llm.Block) (string, error) {
	raw, err := llm.MarshalBlocks(blocks)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(raw), nil
}

func decodeContent(s string) ([]llm.Block, error) {
	if s == "" {
		return nil, nil
	}
	blocks, err := llm.UnmarshalBlocks([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return blocks, nil
}

// Store is the transcript persistence contract. Messages always come
// back in the order they were appended.
type Store interface {
	// Create starts a new, empty conversation.
	Create(ctx context.Context, legacyID, userID string) (Conversation, error)
	// Get returns a conversation by ID or ErrNotFound.
	Get(ctx context.Context, id string) (Conversation, error)
	// Latest returns the most recently updated conversation for the
	// legacy and user, or ErrNotFound.
	Latest(ctx context.Context, legacyID, userID string) (Conversation, error)
	// Append adds a message and bumps the conversation's UpdatedAt. The
	// message ID and CreatedAt are assigned by the store.
	Append(ctx context.Context, m Message) (Message, error)
	// Recent returns up to n of the newest messages, oldest first.
	Recent(ctx context.Context, conversationID string, n int) ([]Message, error)
	// Messages returns the whole transcript, oldest first.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	// Delete removes a conversation and its messages, reporting whether
	// anything was deleted.
	Delete(ctx context.Context, id string) (bool, error)
	// Close releases the store's resources.
	Close() error
}
