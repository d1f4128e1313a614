// Package memory provides an in-memory implementation of storage.HistoryStore
// for testing and one-off sessions. Conversations are lost when the process
// exits. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/storage"
)

// entry holds a stored conversation and its metadata.
type entry struct {
	id        string
	model     string
	messages  []completion.Message
	createdAt time.Time
	updatedAt time.Time
	lruElem   *list.Element // position in LRU list
}

// Store is an in-memory HistoryStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited

	now func() time.Time
}

// Ensure Store implements storage.HistoryStore at compile time.
var _ storage.HistoryStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used conversation is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Append adds messages to a conversation, creating it if needed.
func (s *Store) Append(_ context.Context, id, model string, msgs ...completion.Message) error {
	if id == "" {
		return storage.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[id]
	if !ok {
		// Evict if at capacity.
		if s.maxSize > 0 && len(s.entries) >= s.maxSize {
			s.evictOldest()
		}
		e = &entry{id: id, createdAt: now, lruElem: s.lruList.PushFront(id)}
		s.entries[id] = e
	} else {
		s.lruList.MoveToFront(e.lruElem)
	}

	e.messages = append(e.messages, completion.CloneMessages(msgs)...)
	if model != "" {
		e.model = model
	}
	e.updatedAt = now
	return nil
}

// Load returns a copy of the conversation's messages.
func (s *Store) Load(_ context.Context, id string) ([]completion.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)

	msgs := completion.CloneMessages(e.messages)
	if msgs == nil {
		msgs = []completion.Message{}
	}
	return msgs, nil
}

// List returns all conversations, most recently updated first.
func (s *Store) List(_ context.Context) ([]storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.Conversation, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, storage.Conversation{
			ID:           e.id,
			Model:        e.model,
			MessageCount: len(e.messages),
			CreatedAt:    e.createdAt,
			UpdatedAt:    e.updatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Delete removes a conversation.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
