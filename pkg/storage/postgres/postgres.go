// Package postgres provides a PostgreSQL implementation of storage.HistoryStore.
// It uses pgx/v5 for connection pooling and JSONB for message storage, so a
// history can be shared by several machines.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/storage"
)

// Store is a PostgreSQL-backed HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.HistoryStore at compile time.
var _ storage.HistoryStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	debug.Log("storage", "postgres store opened", "max_conns", cfg.MaxConns)
	return s, nil
}

// Append adds messages to a conversation, creating it if needed. The
// upsert locks the conversation row, which serializes concurrent appends
// to the same conversation.
func (s *Store) Append(ctx context.Context, id, model string, msgs ...completion.Message) error {
	if id == "" {
		return storage.ErrInvalidID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, model, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			model = CASE WHEN EXCLUDED.model = '' THEN conversations.model ELSE EXCLUDED.model END,
			updated_at = EXCLUDED.updated_at
	`, id, model, now); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	var next int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = $1", id,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range msgs {
		body, err := storage.EncodeMessage(m)
		if err != nil {
			return err
		}
		batch.Queue(
			"INSERT INTO messages (conversation_id, seq, role, body, created_at) VALUES ($1, $2, $3, $4, $5)",
			id, next+i, string(m.Role()), body, now,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting messages: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Load returns a conversation's messages in append order.
func (s *Store) Load(ctx context.Context, id string) ([]completion.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		"SELECT body FROM messages WHERE conversation_id = $1 ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := []completion.Message{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m, err := storage.DecodeMessage(body)
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
	rows, err := s.pool.Query(ctx, `
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
		var count int64
		if err := rows.Scan(&c.ID, &c.Model, &c.CreatedAt, &c.UpdatedAt, &count); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		c.MessageCount = int(count)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

// Delete removes a conversation and, by cascade, its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
