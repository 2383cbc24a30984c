package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExportPack records one generated deliverable (a run export or an
// evidence bundle) as a content-addressed blob pointer.
type ExportPack struct {
	ID             string
	Tenant         string
	RunID          string
	Kind           string // "run_export" or "evidence_bundle"
	StoragePointer string
	SHA256         string
	SizeBytes      int64
	CreatedAt      time.Time
}

// InsertExportPack records a newly generated pack.
func (s *Store) InsertExportPack(ctx context.Context, p *ExportPack) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	p.CreatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO export_packs (id, tenant, run_id, kind, storage_pointer, sha256, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Tenant, p.RunID, p.Kind, p.StoragePointer, p.SHA256, p.SizeBytes, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert export_pack: %w", err)
	}
	return nil
}

// GetExportPack loads a pack by id.
func (s *Store) GetExportPack(ctx context.Context, tenant, id string) (*ExportPack, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, kind, storage_pointer, sha256, size_bytes, created_at
		FROM export_packs WHERE tenant = ? AND id = ?`, tenant, id)
	return scanExportPack(row)
}

// ListExportPacksForRun returns every pack generated for a run, newest
// first — matching idx_export_packs_listing so pagination stays stable.
func (s *Store) ListExportPacksForRun(ctx context.Context, tenant, runID string) ([]*ExportPack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, run_id, kind, storage_pointer, sha256, size_bytes, created_at
		FROM export_packs WHERE tenant = ? AND run_id = ? ORDER BY created_at DESC, id DESC`,
		tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("query export_packs: %w", err)
	}
	defer rows.Close()

	var out []*ExportPack
	for rows.Next() {
		p, err := scanExportPackRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanExportPack(row *sql.Row) (*ExportPack, error)      { return scanExportPackFrom(row) }
func scanExportPackRows(rows *sql.Rows) (*ExportPack, error) { return scanExportPackFrom(rows) }

func scanExportPackFrom(sc scannable) (*ExportPack, error) {
	var p ExportPack
	var createdAt string
	err := sc.Scan(&p.ID, &p.Tenant, &p.RunID, &p.Kind, &p.StoragePointer, &p.SHA256, &p.SizeBytes, &createdAt)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
