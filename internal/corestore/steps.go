package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStep statuses, per spec.md §3.
const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// RunStep is one ordered item in a run's fixed plan.
type RunStep struct {
	ID           string
	Tenant       string
	RunID        string
	StepKey      string
	StepOrder    int
	Status       string
	AttemptCount int
	MaxAttempts  int
	NextRetryAt  time.Time
	InputHash    string
	InputJSON    string
	OutputJSON   string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateRunSteps inserts the fixed plan for a run in one transaction. Steps
// are inserted in order; (run_id, step_key) is unique so re-planning a run
// that already has steps fails loudly instead of silently duplicating.
func (s *Store) CreateRunSteps(ctx context.Context, steps []*RunStep) error {
	if len(steps) == 0 {
		return nil
	}
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_steps (id, tenant, run_id, step_key, step_order, status, max_attempts, input_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert run_steps: %w", err)
	}
	defer stmt.Close()

	for _, step := range steps {
		step.CreatedAt, step.UpdatedAt = now, now
		if step.Status == "" {
			step.Status = StepStatusPending
		}
		if step.MaxAttempts == 0 {
			step.MaxAttempts = 5
		}
		if step.InputJSON == "" {
			step.InputJSON = "{}"
		}
		_, err := stmt.ExecContext(ctx, step.ID, step.Tenant, step.RunID, step.StepKey, step.StepOrder,
			step.Status, step.MaxAttempts, step.InputJSON, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("insert run_step %s: %w", step.StepKey, err)
		}
	}
	return tx.Commit()
}

// ListRunSteps returns a run's plan ordered by step_order.
func (s *Store) ListRunSteps(ctx context.Context, tenant, runID string) ([]*RunStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, run_id, step_key, step_order, status, attempt_count, max_attempts,
		       next_retry_at, input_hash, input_json, output_json, last_error, created_at, updated_at
		FROM run_steps WHERE run_id = ? AND tenant = ? ORDER BY step_order ASC`, runID, tenant)
	if err != nil {
		return nil, fmt.Errorf("query run_steps: %w", err)
	}
	defer rows.Close()

	var out []*RunStep
	for rows.Next() {
		step, err := scanRunStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

// GetRunStep loads a single step by key.
func (s *Store) GetRunStep(ctx context.Context, tenant, runID, stepKey string) (*RunStep, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, step_key, step_order, status, attempt_count, max_attempts,
		       next_retry_at, input_hash, input_json, output_json, last_error, created_at, updated_at
		FROM run_steps WHERE run_id = ? AND tenant = ? AND step_key = ?`, runID, tenant, stepKey)
	return scanRunStepRow(row)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRunStep(rows *sql.Rows) (*RunStep, error) {
	return scanRunStepFrom(rows)
}

func scanRunStepRow(row *sql.Row) (*RunStep, error) {
	return scanRunStepFrom(row)
}

func scanRunStepFrom(sc scannable) (*RunStep, error) {
	var step RunStep
	var nextRetryAt sql.NullString
	var createdAt, updatedAt string
	err := sc.Scan(&step.ID, &step.Tenant, &step.RunID, &step.StepKey, &step.StepOrder, &step.Status,
		&step.AttemptCount, &step.MaxAttempts, &nextRetryAt, &step.InputHash, &step.InputJSON,
		&step.OutputJSON, &step.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if step.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
		return nil, err
	}
	if step.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if step.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &step, nil
}

// StepTransition describes a status update applied to a run step.
type StepTransition struct {
	Status      string
	AttemptInc  bool
	NextRetryAt *time.Time // nil leaves the column untouched; a zero time clears it to NULL
	InputHash   string
	OutputJSON  string
	LastError   string
}

// UpdateRunStep applies a transition and stamps updated_at monotonically.
func (s *Store) UpdateRunStep(ctx context.Context, tenant, runID, stepKey string, t StepTransition) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE run_steps SET status = ?, updated_at = ?`
	args := []any{t.Status, formatTime(now)}
	if t.AttemptInc {
		query += `, attempt_count = attempt_count + 1`
	}
	if t.NextRetryAt != nil {
		if t.NextRetryAt.IsZero() {
			query += `, next_retry_at = NULL`
		} else {
			query += `, next_retry_at = ?`
			args = append(args, formatTime(*t.NextRetryAt))
		}
	}
	if t.InputHash != "" {
		query += `, input_hash = ?`
		args = append(args, t.InputHash)
	}
	if t.OutputJSON != "" {
		query += `, output_json = ?`
		args = append(args, t.OutputJSON)
	}
	if t.LastError != "" {
		query += `, last_error = ?`
		args = append(args, t.LastError)
	}
	query += ` WHERE run_id = ? AND tenant = ? AND step_key = ?`
	args = append(args, runID, tenant, stepKey)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run_step %s: %w", stepKey, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run_step %s/%s not found", runID, stepKey)
	}
	return nil
}
