package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses, per spec.md §3.
const (
	RunStatusPlanned   = "planned"
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run is the identity of a research exercise.
type Run struct {
	ID          string
	Tenant      string
	Mandate     string
	Sector      string
	RegionScope string
	ConfigJSON  string
	Status      string
	CreatedBy   string
	StartedAt   time.Time
	FinishedAt  time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateRun inserts a new run in "planned" status.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = RunStatusPlanned
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, tenant, mandate, sector, region_scope, config_json, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Tenant, r.Mandate, r.Sector, r.RegionScope, r.ConfigJSON, r.Status, r.CreatedBy,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun loads a run scoped to tenant.
func (s *Store) GetRun(ctx context.Context, tenant, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, mandate, sector, region_scope, config_json, status, created_by,
		       started_at, finished_at, last_error, created_at, updated_at
		FROM runs WHERE id = ? AND tenant = ?`, runID, tenant)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Tenant, &r.Mandate, &r.Sector, &r.RegionScope, &r.ConfigJSON,
		&r.Status, &r.CreatedBy, &startedAt, &finishedAt, &r.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRunStatus transitions a run's status and optionally records
// started_at/finished_at/last_error, stamping updated_at monotonically.
func (s *Store) UpdateRunStatus(ctx context.Context, tenant, runID, status, lastError string, started, finished bool) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	query := `UPDATE runs SET status = ?, last_error = ?, updated_at = ?`
	args := []any{status, lastError, formatTime(now)}
	if started {
		query += `, started_at = ?`
		args = append(args, formatTime(now))
	}
	if finished {
		query += `, finished_at = ?`
		args = append(args, formatTime(now))
	}
	query += ` WHERE id = ? AND tenant = ?`
	args = append(args, runID, tenant)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found for tenant %s", runID, tenant)
	}
	return nil
}
