package prompts

import (
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	result := SystemPrompt("Generation 1: Pioneer\n")

	if !strings.HasPrefix(result, "You are Heirloom") {
		t.Error("prompt should start with the persona")
	}
	if !strings.Contains(result, "## Current Legacy\nGeneration 1: Pioneer") {
		t.Error("prompt should contain the grounding under its header")
	}
}

func TestSystemPromptNoGrounding(t *testing.T) {
	result := SystemPrompt("  ")
	if strings.Contains(result, groundingHeader) {
		t.Error("blank grounding should omit the header")
	}
}

func TestFixedStringsNonEmpty(t *testing.T) {
	for name, s := range map[string]string{
		"EmptyResponseFallback": EmptyResponseFallback,
		"FollowUpQuestion":      FollowUpQuestion,
		"DegradedToolReply":     DegradedToolReply,
	} {
		if strings.TrimSpace(s) == "" {
			t.Errorf("%s is empty", name)
		}
	}
	if !strings.HasSuffix(FollowUpQuestion, "?") {
		t.Error("FollowUpQuestion should be a question")
	}
}
