package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/notekit/storage"
)

// Backend is the relational storage engine: a records table keyed by ID, an
// explicit tag join table for filtered listings, and a companion FTS5 index
// over title, body and category. When FTS5 is unavailable, search serves
// from a LIKE-based fallback tier with the shared weighted-term scorer.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
	fts    bool
}

var _ storage.Backend = (*Backend)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	body                TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	favorite            INTEGER NOT NULL DEFAULT 0,
	archived            INTEGER NOT NULL DEFAULT 0,
	deleted             INTEGER NOT NULL DEFAULT 0,
	sync_state          INTEGER NOT NULL,
	remote_version      TEXT NOT NULL DEFAULT '',
	conflict_title      TEXT,
	conflict_body       TEXT,
	conflict_version    TEXT,
	conflict_updated_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);

CREATE TABLE IF NOT EXISTS record_tags (
	record_id TEXT NOT NULL REFERENCES records(id),
	tag       TEXT NOT NULL,
	pos       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (record_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_record_tags_tag ON record_tags(tag);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(id UNINDEXED, title, body, category, tags);
`

// OpenBackend opens (creating if necessary) a SQLite database at the given
// path. Use ":memory:" for an in-memory database. The FTS index is created
// best-effort: mattn/go-sqlite3 only compiles the FTS5 module in when the
// binary is built with the "sqlite_fts5" build tag, and a build without it
// degrades every search to the fallback tier instead of failing. Deployments
// that want the indexed tier must build with
//
//	go build -tags sqlite_fts5 ./...
//
// FullTextEnabled reports which mode an opened backend is in.
func OpenBackend(path string) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps in-memory databases coherent and serializes
	// writers, which SQLite wants anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	b := &Backend{
		db:     db,
		logger: slog.Default(),
		fts:    true,
	}

	if _, err := db.Exec(ftsSchema); err != nil {
		b.logger.Warn("FTS5 unavailable, search degrades to fallback tier", "err", err)
		b.fts = false
	}

	return b, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Kind identifies the engine.
func (b *Backend) Kind() storage.Kind {
	return storage.KindRelational
}

// FullTextEnabled reports whether the FTS index is in use.
func (b *Backend) FullTextEnabled() bool {
	return b.fts
}

// Clear removes every record, tag row and index entry.
func (b *Backend) Clear(ctx context.Context) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return err
		}
		if b.fts {
			if _, err := tx.ExecContext(ctx, "DELETE FROM records_fts"); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx executes fn inside a transaction, rolling back on error.
func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
