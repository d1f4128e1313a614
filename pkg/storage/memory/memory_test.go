package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/storage"
	"github.com/rhuss/groqchat/pkg/storage/storagetest"
)

func TestHistoryStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.HistoryStore {
		return New(0)
	})
}

func TestLRUEviction(t *testing.T) {
	s := New(3) // max 3 entries
	ctx := context.Background()

	for _, id := range []string{"conv_a", "conv_b", "conv_c"} {
		s.Append(ctx, id, "m", completion.UserMessage{Content: id})
	}

	// Touch conv_a so conv_b becomes the least recently used.
	if _, err := s.Load(ctx, "conv_a"); err != nil {
		t.Fatalf("expected conv_a to exist, got %v", err)
	}

	s.Append(ctx, "conv_d", "m", completion.UserMessage{Content: "d"})

	if _, err := s.Load(ctx, "conv_b"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected conv_b to be evicted")
	}
	for _, id := range []string{"conv_a", "conv_c", "conv_d"} {
		if _, err := s.Load(ctx, id); err != nil {
			t.Errorf("expected %s to exist after eviction, got %v", id, err)
		}
	}
}

func TestLRUEviction_AppendToExistingDoesNotEvict(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.Append(ctx, "a", "m", completion.UserMessage{Content: "1"})
	s.Append(ctx, "b", "m", completion.UserMessage{Content: "1"})
	s.Append(ctx, "a", "m", completion.AssistantMessage{Content: "2"})

	list, _ := s.List(ctx)
	if len(list) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(list))
	}
}

func TestLRUEviction_Unlimited(t *testing.T) {
	s := New(0) // unlimited
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		s.Append(ctx, fmt.Sprintf("conv_%d", i), "m", completion.UserMessage{Content: "x"})
	}

	s.mu.Lock()
	count := len(s.entries)
	s.mu.Unlock()

	if count != 100 {
		t.Errorf("expected 100 entries, got %d", count)
	}
}

func TestLoadReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Append(ctx, "c", "m", completion.UserMessage{Content: "original"})

	msgs, _ := s.Load(ctx, "c")
	msgs[0] = completion.UserMessage{Content: "changed"}

	again, _ := s.Load(ctx, "c")
	if got := again[0].(completion.UserMessage).Content; got != "original" {
		t.Errorf("stored message mutated: %q", got)
	}
}

func TestAppendKeepsModelWhenEmpty(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Append(ctx, "c", "llama", completion.UserMessage{Content: "x"})
	s.Append(ctx, "c", "", completion.AssistantMessage{Content: "y"})

	list, _ := s.List(ctx)
	if list[0].Model != "llama" {
		t.Errorf("model = %q, want llama", list[0].Model)
	}
}
