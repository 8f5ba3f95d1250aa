// Package llm provides LLM client implementations.
package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Conversation roles. System instructions travel separately in
// [Request.System]; tool results ride in user turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Block is one element of a message's content. The set of block types
// is closed: [TextBlock], [ToolUseBlock] and [ToolResultBlock].
type Block interface {
	blockType() string
}

// TextBlock is plain model- or user-authored text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is the model asking for a tool to run.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock answers the ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) blockType() string       { return "text" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }

// Message is one conversation turn sent to or received from a model.
type Message struct {
	Role    string
	Content []Block
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []Block{TextBlock{Text: text}}}
}

// Texts returns the text of every TextBlock in order.
func Texts(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		if t, ok := b.(TextBlock); ok {
			out = append(out, t.Text)
		}
	}
	return out
}

// ToolUses returns every ToolUseBlock in order.
func ToolUses(blocks []Block) []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	return strings.Join(Texts(m.Content), "")
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a provider-neutral inference request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
	// Temperature is sent as given, zero included. Nil leaves the
	// provider default.
	Temperature *float64
}

// Response is the unified response from any LLM provider.
// Wire format conversion happens at provider boundaries.
type Response struct {
	Model      string
	Provider   string
	StopReason string
	Content    []Block

	InputTokens  int
	OutputTokens int
}

// Text concatenates the response's text blocks.
func (r *Response) Text() string {
	return strings.Join(Texts(r.Content), "")
}

// ToolUses returns the tool-use blocks of the response.
func (r *Response) ToolUses() []ToolUseBlock {
	return ToolUses(r.Content)
}

// wireBlock is the storage encoding of a Block.
type wireBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// MarshalBlocks encodes blocks as a JSON array of typed objects.
func MarshalBlocks(blocks []Block) ([]byte, error) {
	wire := make([]wireBlock, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case TextBlock:
			wire = append(wire, wireBlock{Type: v.blockType(), Text: v.Text})
		case ToolUseBlock:
			wire = append(wire, wireBlock{Type: v.blockType(), ID: v.ID, Name: v.Name, Input: v.Input})
		case ToolResultBlock:
			wire = append(wire, wireBlock{Type: v.blockType(), ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError})
		default:
			return nil, fmt.Errorf("unsupported block %T", b)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalBlocks decodes the output of MarshalBlocks.
func UnmarshalBlocks(data []byte) ([]Block, error) {
	var wire []wireBlock
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	blocks := make([]Block, 0, len(wire))
	for _, w := range wire {
		switch w.Type {
		case "text":
			blocks = append(blocks, TextBlock{Text: w.Text})
		case "tool_use":
			blocks = append(blocks, ToolUseBlock{ID: w.ID, Name: w.Name, Input: w.Input})
		case "tool_result":
			blocks = append(blocks, ToolResultBlock{ToolUseID: w.ToolUseID, Content: w.Content, IsError: w.IsError})
		default:
			return nil, fmt.Errorf("unknown block type %q", w.Type)
		}
	}
	return blocks, nil
}
