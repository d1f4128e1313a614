// Package sqlite provides a SQLite implementation of storage.HistoryStore.
// It uses modernc.org/sqlite, a pure-Go driver, so the CLI builds without CGO.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Register the modernc sqlite driver under the name "sqlite".
	_ "modernc.org/sqlite"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/storage"
)

// Store is a SQLite-backed HistoryStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements storage.HistoryStore at compile time.
var _ storage.HistoryStore = (*Store)(nil)

// Open opens (or creates) the database at path, creating its parent
// directory if needed, and applies pending migrations. Use ":memory:" for
// a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// PRAGMAs are applied per connection through the DSN.
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}

	// A single CLI process is the only writer. One connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %q: %w", path, err)
	}

	if err := MigrateUp(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	debug.Log("storage", "sqlite store opened", "path", path)
	return &Store{db: db}, nil
}

// Append adds messages to a conversation, creating it if needed.
func (s *Store) Append(ctx context.Context, id, model string, msgs ...completion.Message) error {
	if id == "" {
		return storage.ErrInvalidID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, model, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = CASE WHEN excluded.model = '' THEN conversations.model ELSE excluded.model END,
			updated_at = excluded.updated_at
	`, id, model, now, now); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = ?", id,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	for i, m := range msgs {
		body, err := storage.EncodeMessage(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, seq, role, body, created_at) VALUES (?, ?, ?, ?, ?)",
			id, next+i, string(m.Role()), string(body), now,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns a conversation's messages in append order.
func (s *Store) Load(ctx context.Context, id string) ([]completion.Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM messages WHERE conversation_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := []completion.Message{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m, err := storage.DecodeMessage([]byte(body))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// List returns all conversations, most recently updated first.
func (s *Store) List(ctx context.Context) ([]storage.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.model, c.created_at, c.updated_at, COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC, c.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	out := []storage.Conversation{}
	for rows.Next() {
		var c storage.Conversation
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Model, &created, &updated, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		c.CreatedAt = time.Unix(0, created)
		c.UpdatedAt = time.Unix(0, updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
