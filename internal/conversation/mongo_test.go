package conversation

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/llm"
)

// TestMongoStore runs the store contract against a live server named by
// HEIRLOOM_TEST_MONGO_URI. Each subtest gets its own database.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("HEIRLOOM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("HEIRLOOM_TEST_MONGO_URI not set")
	}

	testStoreContract(t, func(t *testing.T) Store {
		name := "heirloom_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		s, err := DialMongo(context.Background(), uri, name, nil)
		if err != nil {
			t.Fatalf("DialMongo: %v", err)
		}
		t.Cleanup(func() {
			_ = s.conversations.Database().Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestMessageDocRoundTrip(t *testing.T) {
	m := Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           "assistant",
		Content:        []llm.Block{llm.TextBlock{Text: "Done."}},
		InputTokens:    10,
		OutputTokens:   4,
		Model:          "test-model",
		ToolCalls: []ToolCallRecord{{
			Name:  "complete_goal",
			Input: map[string]any{"free_text": "max cooking"},
		}},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	doc, err := toMessageDoc(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.ToolCalls, `"complete_goal"`) {
		t.Errorf("ToolCalls = %q", doc.ToolCalls)
	}
	got, err := fromMessageDoc(doc)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromMessageDocBadToolCalls(t *testing.T) {
	got, err := fromMessageDoc(messageDoc{ID: "m1", Role: "assistant", Content: `[{"type":"text","text":"ok"}]`, ToolCalls: "{not json"})
	if err == nil {
		t.Error("expected decode error")
	}
	if got.Text() != "ok" || got.ToolCalls != nil {
		t.Errorf("message = %+v", got)
	}
}
