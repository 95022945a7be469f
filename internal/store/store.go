// Package store persists entities and raw artifacts in a single SQLite
// file. Entities are JSON blobs keyed by slug; all mutation goes through
// the upsert so stored state only changes by the reconciliation rules.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"lens/internal/finalize"
	"lens/internal/model"
)

// ErrNotFound is returned when no entity exists under the requested slug.
var ErrNotFound = errors.New("entity not found")

// Store is a SQLite-backed entity and artifact store. Safe for concurrent
// use; per-slug upserts serialize on a single mutex since SQLite gives us
// one writer anyway.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	slug       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	source_id    TEXT NOT NULL,
	query        TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	payload      BLOB NOT NULL,
	fetched_at   TEXT NOT NULL,
	PRIMARY KEY (source_id, query, content_hash)
);
`

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert reconciles one merged entity into the store and returns the
// stored result. A new slug inserts; an existing one is read, reconciled,
// and written back inside a transaction, so reruns of identical input
// leave the row byte-identical.
func (s *Store) Upsert(ctx context.Context, merged model.MergedEntity, now time.Time) (model.Entity, bool, error) {
	slug := finalize.Slug(merged.Name, merged.City)
	if slug == "" {
		return model.Entity{}, false, errors.New("store: entity has no sluggable name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Entity{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	err = tx.QueryRowContext(ctx, `SELECT payload FROM entities WHERE slug = ?`, slug).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		entity := finalize.EntityFor(merged, now)
		entity.Slug = slug
		if err := s.write(ctx, tx, entity); err != nil {
			return model.Entity{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return model.Entity{}, false, fmt.Errorf("commit: %w", err)
		}
		return entity, true, nil
	case err != nil:
		return model.Entity{}, false, fmt.Errorf("select entity: %w", err)
	}

	var stored model.Entity
	if err := json.Unmarshal(payload, &stored); err != nil {
		return model.Entity{}, false, fmt.Errorf("decode entity %s: %w", slug, err)
	}
	next := finalize.Upsert(stored, merged, now)
	if err := s.write(ctx, tx, next); err != nil {
		return model.Entity{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Entity{}, false, fmt.Errorf("commit: %w", err)
	}
	return next, false, nil
}

func (s *Store) write(ctx context.Context, tx *sql.Tx, e model.Entity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.Slug, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (slug, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		e.Slug, payload, e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write entity %s: %w", e.Slug, err)
	}
	return nil
}

// Get returns the entity stored under slug, or ErrNotFound.
func (s *Store) Get(ctx context.Context, slug string) (model.Entity, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM entities WHERE slug = ?`, slug).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, ErrNotFound
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("select entity: %w", err)
	}
	var e model.Entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return model.Entity{}, fmt.Errorf("decode entity %s: %w", slug, err)
	}
	return e, nil
}

// List returns all stored entities in slug order.
func (s *Store) List(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM entities ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Entity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var e model.Entity
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveArtifact records one fetch result. Write-once: a second artifact with
// the same source, query, and content hash is a no-op.
func (s *Store) SaveArtifact(ctx context.Context, a model.RawArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (source_id, query, content_hash, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, query, content_hash) DO NOTHING`,
		a.SourceID, a.Query, a.ContentHash, a.Payload, a.FetchedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", a.SourceID, err)
	}
	return nil
}

// HasArtifact reports whether an identical payload was already stored for
// this source and query.
func (s *Store) HasArtifact(ctx context.Context, sourceID, query, contentHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM artifacts
		WHERE source_id = ? AND query = ? AND content_hash = ?`,
		sourceID, query, contentHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("select artifact: %w", err)
	}
	return n > 0, nil
}
