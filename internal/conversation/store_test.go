package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nugget/heirloom/internal/llm"
	"github.com/nugget/heirloom/internal/tools"
)

// tickingClock returns a clock that advances one second per call, so
// ordering never depends on timer resolution.
func tickingClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func withClock(s Store, now func() time.Time) Store {
	switch v := s.(type) {
	case *SQLiteStore:
		v.now = now
	case *MongoStore:
		v.now = now
	}
	return s
}

// testStoreContract exercises behavior every Store must share.
func testStoreContract(t *testing.T, open func(t *testing.T) Store) {
	newStore := func(t *testing.T) Store {
		return withClock(open(t), tickingClock())
	}

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c, err := s.Create(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if diff := cmp.Diff(c, got, cmpopts.EquateApproxTime(0)); diff != "" {
			t.Errorf("conversation mismatch (-want +got):\n%s", diff)
		}

		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("append preserves order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.Create(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatal(err)
		}

		var want []string
		for i := range 25 {
			role := "user"
			if i%2 == 1 {
				role = "assistant"
			}
			text := fmt.Sprintf("message %02d", i)
			if _, err := s.Append(ctx, TextMessage(c.ID, role, text)); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
			want = append(want, text)
		}

		all, err := s.Messages(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, contents(all)); diff != "" {
			t.Errorf("transcript order mismatch (-want +got):\n%s", diff)
		}

		recent, err := s.Recent(ctx, c.ID, 20)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want[5:], contents(recent)); diff != "" {
			t.Errorf("recent window mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("append to missing conversation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Append(context.Background(), TextMessage("missing", "user", "hi"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("tool calls round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.Create(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatal(err)
		}

		calls := []ToolCallRecord{{
			Name:  "update_skill",
			Input: map[string]any{"entity_name": "Bella", "new_level": float64(10)},
			Outcome: tools.Outcome{
				Success: true,
				Message: "Bella's Cooking skill is now level 10 (was 0).",
				Data:    map[string]any{"level": float64(10)},
			},
		}}
		if _, err := s.Append(ctx, TextMessage(c.ID, "user", "Bella maxed cooking")); err != nil {
			t.Fatal(err)
		}
		blocks := []llm.Block{
			llm.TextBlock{Text: "Nice!"},
			llm.ToolUseBlock{ID: "tu-1", Name: "update_skill", Input: map[string]any{"entity_name": "Bella"}},
		}
		if _, err := s.Append(ctx, Message{
			ConversationID: c.ID, Role: "assistant", Content: blocks,
			InputTokens: 120, OutputTokens: 30, Model: "test-model", ToolCalls: calls,
		}); err != nil {
			t.Fatal(err)
		}

		msgs, err := s.Messages(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 2 {
			t.Fatalf("len = %d, want 2", len(msgs))
		}
		if msgs[0].ToolCalls != nil {
			t.Errorf("user message ToolCalls = %v, want nil", msgs[0].ToolCalls)
		}
		reply := msgs[1]
		if reply.InputTokens != 120 || reply.OutputTokens != 30 || reply.Model != "test-model" {
			t.Errorf("reply metadata = %+v", reply)
		}
		if diff := cmp.Diff(calls, reply.ToolCalls); diff != "" {
			t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(blocks, reply.Content); diff != "" {
			t.Errorf("content blocks mismatch (-want +got):\n%s", diff)
		}
		if reply.Text() != "Nice!" {
			t.Errorf("Text() = %q", reply.Text())
		}
	})

	t.Run("latest and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Latest(ctx, "legacy-1", "user-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest on empty store = %v, want ErrNotFound", err)
		}

		older, err := s.Create(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatal(err)
		}
		newer, err := s.Create(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Create(ctx, "legacy-1", "user-2"); err != nil {
			t.Fatal(err)
		}
		// Appending to the older conversation makes it the latest again.
		if _, err := s.Append(ctx, TextMessage(older.ID, "user", "back again")); err != nil {
			t.Fatal(err)
		}

		latest, err := s.Latest(ctx, "legacy-1", "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if latest.ID != older.ID {
			t.Errorf("Latest = %s, want %s (newer is %s)", latest.ID, older.ID, newer.ID)
		}

		deleted, err := s.Delete(ctx, older.ID)
		if err != nil || !deleted {
			t.Fatalf("Delete = %v, %v", deleted, err)
		}
		msgs, err := s.Messages(ctx, older.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Errorf("messages survived delete: %d", len(msgs))
		}
		deleted, err = s.Delete(ctx, older.ID)
		if err != nil || deleted {
			t.Errorf("second Delete = %v, %v; want false, nil", deleted, err)
		}
	})
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text())
	}
	return out
}
