package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConvertToAnthropic(t *testing.T) {
	req := &Request{
		Model:  "claude-test",
		System: "You are a legacy assistant.",
		Messages: []Message{
			TextMessage(RoleUser, "Hello!"),
			TextMessage(RoleAssistant, "Hi there!"),
			TextMessage(RoleUser, "Set Bella's cooking to 5."),
		},
		MaxTokens:   512,
		Temperature: ptr(0.5),
	}

	result := convertToAnthropic(req)

	if result.System != "You are a legacy assistant." {
		t.Errorf("System = %q", result.System)
	}
	if len(result.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].Role != RoleUser {
		t.Errorf("first role = %s, want user", result.Messages[0].Role)
	}
	if result.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", result.MaxTokens)
	}
	if result.Temperature == nil || *result.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", result.Temperature)
	}
}

func TestConvertToAnthropicWithToolBlocks(t *testing.T) {
	req := &Request{
		Messages: []Message{
			TextMessage(RoleUser, "Max Bella's cooking."),
			{Role: RoleAssistant, Content: []Block{
				TextBlock{Text: "On it."},
				ToolUseBlock{ID: "toolu_abc123", Name: "update_skill", Input: map[string]any{"entity_name": "Bella"}},
			}},
			{Role: RoleUser, Content: []Block{
				ToolResultBlock{ToolUseID: "toolu_abc123", Content: `{"success":false}`, IsError: true},
			}},
		},
	}

	result := convertToAnthropic(req)
	if len(result.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result.Messages))
	}

	want := []anthropicContent{
		{Type: "text", Text: "On it."},
		{Type: "tool_use", ID: "toolu_abc123", Name: "update_skill", Input: map[string]any{"entity_name": "Bella"}},
	}
	if diff := cmp.Diff(want, result.Messages[1].Content); diff != "" {
		t.Errorf("assistant content mismatch (-want +got):\n%s", diff)
	}

	tr := result.Messages[2].Content[0]
	if tr.Type != "tool_result" || tr.ToolUseID != "toolu_abc123" || !tr.IsError {
		t.Errorf("tool result = %+v", tr)
	}
}

func TestConvertToAnthropicMergesSameRole(t *testing.T) {
	req := &Request{
		Messages: []Message{
			TextMessage(RoleUser, "first"),
			TextMessage(RoleUser, "second"),
			TextMessage(RoleAssistant, ""),
			TextMessage(RoleAssistant, "reply"),
		},
	}

	result := convertToAnthropic(req)
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result.Messages))
	}
	if len(result.Messages[0].Content) != 2 {
		t.Errorf("merged user turn has %d blocks, want 2", len(result.Messages[0].Content))
	}
	if result.MaxTokens != 1024 {
		t.Errorf("MaxTokens default = %d, want 1024", result.MaxTokens)
	}
	if result.Temperature != nil {
		t.Errorf("Temperature should be omitted when unset")
	}
}

func TestConvertToAnthropicZeroTemperature(t *testing.T) {
	result := convertToAnthropic(&Request{
		Model:       "claude-test",
		Messages:    []Message{TextMessage(RoleUser, "hi")},
		Temperature: ptr(0.0),
	})
	if result.Temperature == nil || *result.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", result.Temperature)
	}
	body, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `"temperature":0`) {
		t.Errorf("request body %s should carry temperature 0", body)
	}
}

func ptr[T any](v T) *T { return &v }

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []ToolSpec{
		{
			Name:        "get_goal_progress",
			Description: "Show goal progress",
		},
		{
			Name:        "update_skill",
			Description: "Set a skill level",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"entity_name"},
			},
		},
	}

	result := convertToolsToAnthropic(tools)
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}
	if result[0].Name != "get_goal_progress" {
		t.Errorf("Name = %q", result[0].Name)
	}
	if schema, ok := result[0].InputSchema.(map[string]any); !ok || schema["type"] != "object" {
		t.Errorf("nil schema should default to empty object, got %v", result[0].InputSchema)
	}
	if convertToolsToAnthropic(nil) != nil {
		t.Error("no tools should convert to nil")
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	raw := `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "toolu_1", "name": "get_person_details", "input": {"entity_name": "Bella"}}
		],
		"usage": {"input_tokens": 120, "output_tokens": 30}
	}`

	var wire anthropicResponse
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := convertFromAnthropic(&wire)
	want := &Response{
		Model:      "claude-test",
		Provider:   "anthropic",
		StopReason: "tool_use",
		Content: []Block{
			TextBlock{Text: "Let me check."},
			ToolUseBlock{ID: "toolu_1", Name: "get_person_details", Input: map[string]any{"entity_name": "Bella"}},
		},
		InputTokens:  120,
		OutputTokens: 30,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestAnthropicClientChat(t *testing.T) {
	var gotBody anthropicRequest
	var gotKey, gotVersion string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"claude-test","stop_reason":"end_turn","content":[{"type":"text","text":"Done."}],"usage":{"input_tokens":10,"output_tokens":2}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient("sk-test", srv.URL, nil)
	resp, err := client.Chat(t.Context(), &Request{
		Model:    "claude-test",
		System:   "persona",
		Messages: []Message{TextMessage(RoleUser, "hello")},
		Tools:    []ToolSpec{{Name: "get_goal_progress"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotKey != "sk-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotBody.System != "persona" || len(gotBody.Tools) != 1 {
		t.Errorf("request body = %+v", gotBody)
	}
	if resp.Text() != "Done." {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicClientChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient("sk-test", srv.URL, nil)
	_, err := client.Chat(t.Context(), &Request{Messages: []Message{TextMessage(RoleUser, "hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error = %v", err)
	}
}
