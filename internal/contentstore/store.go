// Package contentstore is the content-addressed blob layer shared by the
// fetcher, extractor, and discovery providers. Every blob is keyed by the
// hex SHA-256 of its normalized bytes; writes are idempotent and reads never
// mutate, per the addressed-storage contract every upstream caller relies on.
package contentstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Store wraps the shared SQLite connection (the same *sql.DB the rest of
// the module uses, single-writer per corestore.Open) with a dedicated
// content-addressed table.
type Store struct {
	db *sql.DB
}

// Open attaches the content store to an already-opened database handle and
// ensures its schema exists. Callers pass the *sql.DB obtained from
// corestore.Store.DB() so both layers share the one SQLite connection and
// its WAL/foreign-key pragmas.
func Open(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS content_blobs (
			id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL UNIQUE,
			mime_type TEXT NOT NULL DEFAULT '',
			content_bytes BLOB,
			content_text TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`); err != nil {
		return nil, fmt.Errorf("apply contentstore schema: %w", err)
	}
	return s, nil
}

// Hash returns the hex SHA-256 digest of b. This is the canonical
// content_hash used across the module — documents, enrichment records, and
// evidence bundles all key on the value this function returns.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Blob is one stored content-addressed payload.
type Blob struct {
	ID           string
	ContentHash  string
	MimeType     string
	ContentBytes []byte
	ContentText  string
	SizeBytes    int64
	CreatedAt    string
}

// Put writes bytes under their content hash. Idempotent: a second Put with
// the same bytes returns the original id and created=false instead of
// inserting a duplicate row.
func (s *Store) Put(ctx context.Context, id string, b []byte, mimeType, text string) (storedID, contentHash string, created bool, err error) {
	hash := Hash(b)

	if existing, err := s.byHash(ctx, hash); err != nil {
		return "", "", false, err
	} else if existing != nil {
		return existing.ID, existing.ContentHash, false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_blobs (id, content_hash, mime_type, content_bytes, content_text, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		id, hash, mimeType, b, text, len(b))
	if err != nil {
		return "", "", false, fmt.Errorf("insert content_blob: %w", err)
	}

	// Another writer may have raced us between the lookup and the insert;
	// re-select to find whichever row actually won.
	final, err := s.byHash(ctx, hash)
	if err != nil {
		return "", "", false, err
	}
	if final == nil {
		return "", "", false, fmt.Errorf("content_blob %s vanished after insert", hash)
	}
	return final.ID, final.ContentHash, final.ID == id, nil
}

// Get loads a blob by id. Never mutates.
func (s *Store) Get(ctx context.Context, id string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, mime_type, content_bytes, content_text, size_bytes, created_at
		FROM content_blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// GetByHash loads a blob by its content hash. Never mutates.
func (s *Store) GetByHash(ctx context.Context, contentHash string) (*Blob, error) {
	return s.byHash(ctx, contentHash)
}

// Has reports whether a blob with this content hash is already stored,
// without reading its bytes.
func (s *Store) Has(ctx context.Context, contentHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_blobs WHERE content_hash = ?`, contentHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check content_blob existence: %w", err)
	}
	return n > 0, nil
}

func (s *Store) byHash(ctx context.Context, contentHash string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, mime_type, content_bytes, content_text, size_bytes, created_at
		FROM content_blobs WHERE content_hash = ?`, contentHash)
	b, err := scanBlob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func scanBlob(row *sql.Row) (*Blob, error) {
	var b Blob
	if err := row.Scan(&b.ID, &b.ContentHash, &b.MimeType, &b.ContentBytes, &b.ContentText, &b.SizeBytes, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
