// Package storagetest provides a behavioral test suite shared by all
// storage.HistoryStore adapters.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/storage"
)

// Run exercises the HistoryStore contract against stores created by
// newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.HistoryStore) {
	t.Helper()

	t.Run("AppendAndLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Append(ctx, "conv-1", "m1", completion.SystemMessage{Content: "be brief"}, completion.UserMessage{Content: "hi"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := s.Append(ctx, "conv-1", "m2", completion.AssistantMessage{Content: "hello"}); err != nil {
			t.Fatalf("second Append failed: %v", err)
		}

		msgs, err := s.Load(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("len(messages) = %d, want 3", len(msgs))
		}
		wantRoles := []completion.Role{completion.RoleSystem, completion.RoleUser, completion.RoleAssistant}
		for i, m := range msgs {
			if m.Role() != wantRoles[i] {
				t.Errorf("messages[%d] role = %q, want %q", i, m.Role(), wantRoles[i])
			}
		}
		if got := msgs[2].(completion.AssistantMessage).Content; got != "hello" {
			t.Errorf("assistant content = %q", got)
		}
	})

	t.Run("RoundTripsToolCalls", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		call := completion.AssistantMessage{ToolCalls: []completion.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: completion.FunctionCall{Name: "lookup", Arguments: `{"q":"go"}`},
		}}}
		result := completion.ToolMessage{Content: "found", ToolCallID: "call_1", Name: "lookup"}
		if err := s.Append(ctx, "tools", "m", call, result); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		msgs, err := s.Load(ctx, "tools")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		am, ok := msgs[0].(completion.AssistantMessage)
		if !ok || len(am.ToolCalls) != 1 || am.ToolCalls[0].Function.Arguments != `{"q":"go"}` {
			t.Errorf("tool call not preserved: %#v", msgs[0])
		}
		tm, ok := msgs[1].(completion.ToolMessage)
		if !ok || tm.ToolCallID != "call_1" || tm.Name != "lookup" {
			t.Errorf("tool result not preserved: %#v", msgs[1])
		}
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyID", func(t *testing.T) {
		s := newStore(t)
		err := s.Append(context.Background(), "", "m", completion.UserMessage{Content: "x"})
		if !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Append(ctx, "gone", "m", completion.UserMessage{Content: "x"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Load(ctx, "gone"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, "gone"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for second delete, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, id := range []string{"first", "second", "third"} {
			msgs := make([]completion.Message, i+1)
			for j := range msgs {
				msgs[j] = completion.UserMessage{Content: fmt.Sprintf("m%d", j)}
			}
			if err := s.Append(ctx, id, "model-"+id, msgs...); err != nil {
				t.Fatalf("Append(%s) failed: %v", id, err)
			}
			// Timestamps must differ for a deterministic order.
			time.Sleep(5 * time.Millisecond)
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("len(list) = %d, want 3", len(list))
		}
		if list[0].ID != "third" || list[2].ID != "first" {
			t.Errorf("order = [%s %s %s], want newest first", list[0].ID, list[1].ID, list[2].ID)
		}
		if list[0].MessageCount != 3 || list[0].Model != "model-third" {
			t.Errorf("summary = %+v", list[0])
		}
		if list[0].CreatedAt.IsZero() || list[0].UpdatedAt.IsZero() {
			t.Errorf("timestamps not set: %+v", list[0])
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t)
		list, err := s.List(context.Background())
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("len(list) = %d, want 0", len(list))
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		s := newStore(t)
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck failed: %v", err)
		}
	})
}
