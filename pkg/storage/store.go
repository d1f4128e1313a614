package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rhuss/groqchat/pkg/completion"
)

// Conversation summarizes a stored conversation.
type Conversation struct {
	ID           string
	Model        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryStore persists conversation histories between CLI runs.
type HistoryStore interface {
	// Append adds msgs to the end of the conversation, creating it if it
	// does not exist. model records the model last used with it.
	Append(ctx context.Context, conversationID, model string, msgs ...completion.Message) error

	// Load returns the messages of a conversation in the order they were
	// appended. Returns ErrNotFound if the conversation does not exist.
	Load(ctx context.Context, conversationID string) ([]completion.Message, error)

	// List returns all conversations, most recently updated first.
	List(ctx context.Context) ([]Conversation, error)

	// Delete removes a conversation. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, conversationID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// EncodeMessage returns the stored form of msg.
func EncodeMessage(msg completion.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encoding message: nil message")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Role(), err)
	}
	return data, nil
}

// DecodeMessage reverses EncodeMessage.
func DecodeMessage(data []byte) (completion.Message, error) {
	return completion.DecodeMessage(data)
}
