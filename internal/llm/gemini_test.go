package llm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestConvertToGemini(t *testing.T) {
	messages := []Message{
		TextMessage(RoleUser, "Max Bella's cooking"),
		{Role: RoleAssistant, Content: []Block{
			ToolUseBlock{ID: "call_1", Name: "update_skill", Input: map[string]any{"entity_name": "Bella"}},
		}},
		{Role: RoleUser, Content: []Block{
			ToolResultBlock{ToolUseID: "call_1", Content: `{"success":true,"message":"ok"}`},
		}},
	}

	got := convertToGemini(messages)
	if len(got) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(got))
	}
	for i, want := range []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser} {
		if got[i].Role != string(want) {
			t.Errorf("content %d role = %q, want %q", i, got[i].Role, want)
		}
	}

	fc := got[1].Parts[0].FunctionCall
	if fc == nil || fc.Name != "update_skill" || fc.ID != "call_1" {
		t.Fatalf("function call = %+v", fc)
	}

	fr := got[2].Parts[0].FunctionResponse
	if fr == nil {
		t.Fatal("expected function response part")
	}
	if fr.Name != "update_skill" {
		t.Errorf("function response name = %q, want update_skill", fr.Name)
	}
	want := map[string]any{"output": map[string]any{"success": true, "message": "ok"}}
	if diff := cmp.Diff(want, fr.Response); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertToGeminiMintedIDsNotSent(t *testing.T) {
	id := geminiCallPrefix + "abc"
	got := convertToGemini([]Message{
		{Role: RoleAssistant, Content: []Block{ToolUseBlock{ID: id, Name: "get_goal_progress"}}},
		{Role: RoleUser, Content: []Block{ToolResultBlock{ToolUseID: id, Content: "boom", IsError: true}}},
	})

	if got[0].Parts[0].FunctionCall.ID != "" {
		t.Errorf("minted ID leaked: %q", got[0].Parts[0].FunctionCall.ID)
	}
	fr := got[1].Parts[0].FunctionResponse
	if fr.ID != "" || fr.Name != "get_goal_progress" {
		t.Errorf("function response = %+v", fr)
	}
	if fr.Response["error"] != "boom" {
		t.Errorf("error payload = %v", fr.Response)
	}
}

func TestConvertFromGemini(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "Let me look."},
				{FunctionCall: &genai.FunctionCall{Name: "get_goal_progress"}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     50,
			CandidatesTokenCount: 7,
		},
	}

	got := convertFromGemini(resp, "requested")
	if got.Model != "gemini-2.5-flash" || got.Provider != "gemini" {
		t.Errorf("model/provider = %q/%q", got.Model, got.Provider)
	}
	if got.InputTokens != 50 || got.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d", got.InputTokens, got.OutputTokens)
	}
	if len(got.Content) != 2 {
		t.Fatalf("expected 2 blocks (thought dropped), got %d", len(got.Content))
	}
	if got.Text() != "Let me look." {
		t.Errorf("Text() = %q", got.Text())
	}
	uses := got.ToolUses()
	if len(uses) != 1 || !strings.HasPrefix(uses[0].ID, geminiCallPrefix) {
		t.Errorf("tool uses = %+v", uses)
	}
	if uses[0].Input == nil {
		t.Error("nil args should become an empty map")
	}
}

func TestConvertFromGeminiEmpty(t *testing.T) {
	got := convertFromGemini(&genai.GenerateContentResponse{}, "m")
	if got.Model != "m" || len(got.Content) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestGeminiConfig(t *testing.T) {
	cfg := geminiConfig(&Request{
		System:      "persona",
		MaxTokens:   256,
		Temperature: ptr(0.4),
		Tools:       []ToolSpec{{Name: "get_goal_progress", InputSchema: map[string]any{"type": "object"}}},
	})

	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "persona" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.4) {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].FunctionDeclarations[0].Name != "get_goal_progress" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestGeminiConfigTemperature(t *testing.T) {
	if cfg := geminiConfig(&Request{}); cfg.Temperature != nil {
		t.Errorf("unset temperature sent as %v", *cfg.Temperature)
	}
	cfg := geminiConfig(&Request{Temperature: ptr(0.0)})
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", cfg.Temperature)
	}
}
