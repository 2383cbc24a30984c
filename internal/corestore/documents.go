package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SourceDocument statuses and types, per spec.md §3.
const (
	DocStatusNew       = "new"
	DocStatusFetched   = "fetched"
	DocStatusProcessed = "processed"
	DocStatusFailed    = "failed"

	SourceTypeURL          = "url"
	SourceTypePDF          = "pdf"
	SourceTypeText         = "text"
	SourceTypeProviderJSON = "provider_json"
	SourceTypeLLMJSON      = "llm_json"
)

// SourceDocument is an acquired artifact (fetched page, uploaded PDF,
// pasted text, or a provider/LLM response envelope).
type SourceDocument struct {
	ID                string
	Tenant            string
	RunID             string
	SourceType        string
	URLRaw            string
	URLNormalized     string
	CanonicalFinalURL string
	MimeType          string
	ContentHash       sql.NullString
	ContentBytes      []byte
	ContentText       string
	HTTPStatusCode    int
	HTTPErrorMessage  string
	HTTPFinalURL      string
	HTTPHeadersJSON   string
	Status            string
	AttemptCount      int
	MaxAttempts       int
	NextRetryAt       time.Time
	CanonicalSourceID sql.NullString
	MetaJSON          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InsertSourceDocument creates a new row. Use FindByContentHash first when
// the caller has already computed a content hash, to honor the content-hash
// dedupe invariant (module G).
func (s *Store) InsertSourceDocument(ctx context.Context, d *SourceDocument) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = DocStatusNew
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = 5
	}
	if d.MetaJSON == "" {
		d.MetaJSON = "{}"
	}
	if d.HTTPHeadersJSON == "" {
		d.HTTPHeadersJSON = "{}"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_documents (
			id, tenant, run_id, source_type, url_raw, url_normalized, canonical_final_url,
			mime_type, content_hash, content_bytes, content_text, http_status_code,
			http_error_message, http_final_url, http_headers_json, status, max_attempts,
			canonical_source_id, meta_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Tenant, d.RunID, d.SourceType, d.URLRaw, d.URLNormalized, d.CanonicalFinalURL,
		d.MimeType, d.ContentHash, d.ContentBytes, d.ContentText, d.HTTPStatusCode,
		d.HTTPErrorMessage, d.HTTPFinalURL, d.HTTPHeadersJSON, d.Status, d.MaxAttempts,
		d.CanonicalSourceID, d.MetaJSON, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert source_document: %w", err)
	}
	return nil
}

// FindByContentHash returns the canonical document with this hash within a
// run, if any. Used to detect the at-most-one-canonical invariant before
// insert.
func (s *Store) FindByContentHash(ctx context.Context, tenant, runID, contentHash string) (*SourceDocument, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+` WHERE tenant = ? AND run_id = ? AND content_hash = ?`,
		tenant, runID, contentHash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// GetSourceDocument loads a document by id.
func (s *Store) GetSourceDocument(ctx context.Context, tenant, id string) (*SourceDocument, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+` WHERE tenant = ? AND id = ?`, tenant, id)
	return scanDocument(row)
}

// ListSourceDocumentsForRun returns every document linked to a run, ordered
// by (id, created_at) for deterministic processing and evidence-bundle
// output.
func (s *Store) ListSourceDocumentsForRun(ctx context.Context, tenant, runID string) ([]*SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+` WHERE tenant = ? AND run_id = ? ORDER BY id ASC`, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("query source_documents: %w", err)
	}
	defer rows.Close()

	var out []*SourceDocument
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

const documentSelect = `
	SELECT id, tenant, run_id, source_type, url_raw, url_normalized, canonical_final_url,
	       mime_type, content_hash, content_bytes, content_text, http_status_code,
	       http_error_message, http_final_url, http_headers_json, status, attempt_count,
	       max_attempts, next_retry_at, canonical_source_id, meta_json, created_at, updated_at
	FROM source_documents`

func scanDocument(row *sql.Row) (*SourceDocument, error) {
	return scanDocumentFrom(row)
}

func scanDocumentRows(rows *sql.Rows) (*SourceDocument, error) {
	return scanDocumentFrom(rows)
}

func scanDocumentFrom(sc scannable) (*SourceDocument, error) {
	var d SourceDocument
	var nextRetryAt sql.NullString
	var createdAt, updatedAt string
	err := sc.Scan(&d.ID, &d.Tenant, &d.RunID, &d.SourceType, &d.URLRaw, &d.URLNormalized,
		&d.CanonicalFinalURL, &d.MimeType, &d.ContentHash, &d.ContentBytes, &d.ContentText,
		&d.HTTPStatusCode, &d.HTTPErrorMessage, &d.HTTPFinalURL, &d.HTTPHeadersJSON, &d.Status,
		&d.AttemptCount, &d.MaxAttempts, &nextRetryAt, &d.CanonicalSourceID, &d.MetaJSON,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if d.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// DocumentUpdate describes a mutation applied after a fetch/extract attempt.
type DocumentUpdate struct {
	Status             string
	ContentHash        *sql.NullString // nil leaves the column untouched; non-nil sets it (Valid=false clears to NULL)
	ContentBytes       []byte
	ContentText        *string
	HTTPStatusCode      *int
	HTTPErrorMessage    *string
	HTTPFinalURL        *string
	HTTPHeadersJSON     *string
	CanonicalFinalURL   *string
	AttemptInc         bool
	NextRetryAt        *time.Time
	CanonicalSourceID  *sql.NullString
	MetaJSON           *string
}

// UpdateSourceDocument applies a partial update.
func (s *Store) UpdateSourceDocument(ctx context.Context, tenant, id string, u DocumentUpdate) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE source_documents SET updated_at = ?`
	args := []any{formatTime(now)}
	if u.Status != "" {
		query += `, status = ?`
		args = append(args, u.Status)
	}
	if u.ContentHash != nil {
		query += `, content_hash = ?`
		args = append(args, *u.ContentHash)
	}
	if u.ContentBytes != nil {
		query += `, content_bytes = ?`
		args = append(args, u.ContentBytes)
	}
	if u.ContentText != nil {
		query += `, content_text = ?`
		args = append(args, *u.ContentText)
	}
	if u.HTTPStatusCode != nil {
		query += `, http_status_code = ?`
		args = append(args, *u.HTTPStatusCode)
	}
	if u.HTTPErrorMessage != nil {
		query += `, http_error_message = ?`
		args = append(args, *u.HTTPErrorMessage)
	}
	if u.HTTPFinalURL != nil {
		query += `, http_final_url = ?`
		args = append(args, *u.HTTPFinalURL)
	}
	if u.HTTPHeadersJSON != nil {
		query += `, http_headers_json = ?`
		args = append(args, *u.HTTPHeadersJSON)
	}
	if u.CanonicalFinalURL != nil {
		query += `, canonical_final_url = ?`
		args = append(args, *u.CanonicalFinalURL)
	}
	if u.AttemptInc {
		query += `, attempt_count = attempt_count + 1`
	}
	if u.NextRetryAt != nil {
		if u.NextRetryAt.IsZero() {
			query += `, next_retry_at = NULL`
		} else {
			query += `, next_retry_at = ?`
			args = append(args, formatTime(*u.NextRetryAt))
		}
	}
	if u.CanonicalSourceID != nil {
		query += `, canonical_source_id = ?`
		args = append(args, *u.CanonicalSourceID)
	}
	if u.MetaJSON != nil {
		query += `, meta_json = ?`
		args = append(args, *u.MetaJSON)
	}
	query += ` WHERE tenant = ? AND id = ?`
	args = append(args, tenant, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update source_document %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source_document %s not found", id)
	}
	return nil
}
