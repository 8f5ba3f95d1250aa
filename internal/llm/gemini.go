package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// geminiCallPrefix marks tool-use IDs minted for function calls that
// arrived without one. Minted IDs are never sent back to Gemini.
const geminiCallPrefix = "gemcall_"

// GeminiClient is a client for the Gemini generateContent API.
type GeminiClient struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client for the public Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		logger: logger.With("provider", "gemini"),
	}, nil
}

// Chat sends a single generateContent request.
func (c *GeminiClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	contents := convertToGemini(req.Messages)
	cfg := geminiConfig(req)

	c.logger.Debug("preparing request",
		"model", req.Model,
		"contents", len(contents),
		"tools", len(req.Tools),
		"system_len", len(req.System),
	)

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	result := convertFromGemini(resp, req.Model)
	c.logger.Debug("response received",
		"model", result.Model,
		"stop_reason", result.StopReason,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"blocks", len(result.Content),
	)
	return result, nil
}

func geminiConfig(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// convertToGemini maps conversation turns onto Gemini contents. Gemini
// answers a function call by name, so tool-use names are remembered by
// ID for the results that follow.
func convertToGemini(messages []Message) []*genai.Content {
	names := make(map[string]string)
	var out []*genai.Content

	for _, msg := range messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, b := range msg.Content {
			switch v := b.(type) {
			case TextBlock:
				if v.Text != "" {
					parts = append(parts, genai.NewPartFromText(v.Text))
				}
			case ToolUseBlock:
				names[v.ID] = v.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   geminiCallID(v.ID),
					Name: v.Name,
					Args: v.Input,
				}})
			case ToolResultBlock:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       geminiCallID(v.ToolUseID),
					Name:     names[v.ToolUseID],
					Response: geminiToolResponse(v),
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

func geminiCallID(id string) string {
	if strings.HasPrefix(id, geminiCallPrefix) {
		return ""
	}
	return id
}

// geminiToolResponse wraps a tool result in the object shape Gemini
// expects: "output" on success, "error" on failure.
func geminiToolResponse(b ToolResultBlock) map[string]any {
	var payload any = b.Content
	var decoded map[string]any
	if err := json.Unmarshal([]byte(b.Content), &decoded); err == nil {
		payload = decoded
	}
	if b.IsError {
		return map[string]any{"error": payload}
	}
	return map[string]any{"output": payload}
}

func convertFromGemini(resp *genai.GenerateContentResponse, model string) *Response {
	out := &Response{Model: model, Provider: "gemini"}
	if resp == nil {
		return out
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}

	cand := resp.Candidates[0]
	out.StopReason = string(cand.FinishReason)
	if cand.Content == nil {
		return out
	}
	for _, p := range cand.Content.Parts {
		switch {
		case p == nil || p.Thought:
		case p.FunctionCall != nil:
			id := p.FunctionCall.ID
			if id == "" {
				id = geminiCallPrefix + uuid.NewString()
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.Content = append(out.Content, ToolUseBlock{ID: id, Name: p.FunctionCall.Name, Input: args})
		case p.Text != "":
			out.Content = append(out.Content, TextBlock{Text: p.Text})
		}
	}
	return out
}
