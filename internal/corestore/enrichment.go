package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Enrichment record statuses, per spec.md §3.
const (
	EnrichmentStatusPending   = "pending"
	EnrichmentStatusSucceeded = "succeeded"
	EnrichmentStatusFailed    = "failed"
)

// EnrichmentRecord is a ledger entry tracking one provider call against one
// target, keyed so repeat calls with the same input scope can be skipped.
type EnrichmentRecord struct {
	ID               string
	Tenant           string
	RunID            string
	Provider         string
	Purpose          string
	TargetType       string
	TargetID         string
	InputScopeHash   string
	ContentHash      sql.NullString
	Status           string
	SourceDocumentID sql.NullString
	ErrorMessage     string
	CreatedAt        time.Time
}

// InsertEnrichmentRecord adds a new ledger row.
func (s *Store) InsertEnrichmentRecord(ctx context.Context, r *EnrichmentRecord) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	r.CreatedAt = now
	if r.Status == "" {
		r.Status = EnrichmentStatusPending
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_records (
			id, tenant, run_id, provider, purpose, target_type, target_id, input_scope_hash,
			content_hash, status, source_document_id, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Tenant, r.RunID, r.Provider, r.Purpose, r.TargetType, r.TargetID, r.InputScopeHash,
		r.ContentHash, r.Status, r.SourceDocumentID, r.ErrorMessage, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert enrichment_record: %w", err)
	}
	return nil
}

// FindEnrichmentRecord returns the most recent ledger entry for the exact
// (tenant, run, provider, purpose, target_type, target_id, input_scope_hash)
// tuple, matching idx_enrichment_lookup. Callers use this before invoking a
// provider to decide whether the work has already been done (module F's
// skip-if-already-enriched rule).
func (s *Store) FindEnrichmentRecord(ctx context.Context, tenant, runID, provider, purpose, targetType, targetID, inputScopeHash string) (*EnrichmentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, provider, purpose, target_type, target_id, input_scope_hash,
		       content_hash, status, source_document_id, error_message, created_at
		FROM enrichment_records
		WHERE tenant = ? AND run_id = ? AND provider = ? AND purpose = ? AND target_type = ?
		  AND target_id = ? AND input_scope_hash = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		tenant, runID, provider, purpose, targetType, targetID, inputScopeHash)
	rec, err := scanEnrichmentRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListEnrichmentRecordsForTarget returns every enrichment attempt recorded
// against a target, ordered by creation — used to build evidence bundles and
// to audit repeated provider calls.
func (s *Store) ListEnrichmentRecordsForTarget(ctx context.Context, tenant, targetType, targetID string) ([]*EnrichmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, run_id, provider, purpose, target_type, target_id, input_scope_hash,
		       content_hash, status, source_document_id, error_message, created_at
		FROM enrichment_records
		WHERE tenant = ? AND target_type = ? AND target_id = ?
		ORDER BY created_at ASC, id ASC`, tenant, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("query enrichment_records: %w", err)
	}
	defer rows.Close()

	var out []*EnrichmentRecord
	for rows.Next() {
		rec, err := scanEnrichmentRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanEnrichmentRecord(row *sql.Row) (*EnrichmentRecord, error)      { return scanEnrichmentRecordFrom(row) }
func scanEnrichmentRecordRows(rows *sql.Rows) (*EnrichmentRecord, error) { return scanEnrichmentRecordFrom(rows) }

func scanEnrichmentRecordFrom(sc scannable) (*EnrichmentRecord, error) {
	var r EnrichmentRecord
	var createdAt string
	err := sc.Scan(&r.ID, &r.Tenant, &r.RunID, &r.Provider, &r.Purpose, &r.TargetType, &r.TargetID,
		&r.InputScopeHash, &r.ContentHash, &r.Status, &r.SourceDocumentID, &r.ErrorMessage, &createdAt)
	if err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateEnrichmentStatus transitions a ledger row after the provider call
// completes or fails.
func (s *Store) UpdateEnrichmentStatus(ctx context.Context, tenant, id, status string, contentHash sql.NullString, sourceDocumentID sql.NullString, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_records SET status = ?, content_hash = ?, source_document_id = ?, error_message = ?
		WHERE tenant = ? AND id = ?`,
		status, contentHash, sourceDocumentID, errMsg, tenant, id)
	if err != nil {
		return fmt.Errorf("update enrichment_record %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("enrichment_record %s not found", id)
	}
	return nil
}
