package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
}

// migrate applies pending schema migrations from the embedded SQL files.
// The first migration creates schema_migrations itself; every migration
// runs in its own transaction together with its bookkeeping row.
func (s *Store) migrate(ctx context.Context) error {
	pending, err := listMigrations(migrationFiles)
	if err != nil {
		return err
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if applied[m.version] {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}

		slog.Info("applying migration", "file", m.name, "version", m.version)

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING",
				m.version,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
	}

	return nil
}

// appliedVersions returns the recorded migration versions. A database
// without schema_migrations has none.
func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	var present bool
	if err := s.pool.QueryRow(ctx,
		"SELECT to_regclass('schema_migrations') IS NOT NULL",
	).Scan(&present); err != nil {
		return nil, fmt.Errorf("checking schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	if !present {
		return applied, nil
	}

	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	for _, v := range versions {
		applied[int(v)] = true
	}
	return applied, nil
}

// listMigrations returns the versioned .sql files in fsys, ordered by
// version. Files without a numeric prefix are ignored.
func listMigrations(fsys fs.ReadDirFS) ([]migration, error) {
	entries, err := fsys.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		out = append(out, migration{version: version, name: entry.Name()})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].version < out[j].version
	})
	return out, nil
}
