// Package jobqueue is a hand-rolled SQLite durable job queue. SQLite has no
// SELECT ... FOR UPDATE SKIP LOCKED, so claim runs in one transaction on the
// store's single connection (SetMaxOpenConns(1)), which serializes concurrent
// claimants within the process — grounded on the teacher's
// single-writer-connection, upsert-under-contention idiom from
// internal/store/store.go's UpsertClaimLease.
package jobqueue

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/google/uuid"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Reuse reasons returned by Enqueue when an inflight or recently succeeded
// job already satisfies the request.
const (
	ReuseInflight         = "inflight"
	ReuseDuplicateSucceed = "duplicate_succeeded"
)

// Job is one durable unit of work.
type Job struct {
	ID              string
	Tenant          string
	RunID           string
	JobType         string
	ParamsHash      string
	ParamsJSON      string
	Status          string
	AttemptCount    int
	MaxAttempts     int
	NextRetryAt     sql.NullString
	LockedAt        sql.NullString
	LockedBy        string
	CancelRequested bool
	ProgressJSON    string
	ErrorJSON       string
	CreatedAt       string
	UpdatedAt       string
}

// Queue wraps the shared single-writer *sql.DB.
type Queue struct {
	db *sql.DB
}

// Open wraps the shared connection. The jobs table and its indexes are part
// of corestore's schema (corestore.Store owns all persistence for a run), so
// Open assumes db was obtained from an already-initialized corestore.Store
// via Store.DB().
func Open(db *sql.DB) (*Queue, error) {
	return &Queue{db: db}, nil
}

// EnqueueResult is Enqueue's outcome.
type EnqueueResult struct {
	JobID       string
	ParamsHash  string
	Reused      bool
	ReuseReason string
}

// Enqueue computes params_hash and inserts a new queued job, unless an
// existing job in {queued, running, succeeded} with the same (tenant, run,
// type, params_hash) already exists — in which case it's reused.
func (q *Queue) Enqueue(ctx context.Context, tenant, runID, jobType string, params any, maxAttempts int) (*EnqueueResult, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}
	paramsHash := hashParams(paramsJSON)

	if existing, err := q.findActive(ctx, tenant, runID, jobType, paramsHash); err != nil {
		return nil, err
	} else if existing != nil {
		reason := ReuseInflight
		if existing.Status == StatusSucceeded {
			reason = ReuseDuplicateSucceed
		}
		return &EnqueueResult{JobID: existing.ID, ParamsHash: paramsHash, Reused: true, ReuseReason: reason}, nil
	}

	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, tenant, run_id, job_type, params_hash, params_json, status, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'), strftime('%Y-%m-%dT%H:%M:%fZ','now'))`,
		id, tenant, runID, jobType, paramsHash, string(paramsJSON), maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &EnqueueResult{JobID: id, ParamsHash: paramsHash, Reused: false}, nil
}

func (q *Queue) findActive(ctx context.Context, tenant, runID, jobType, paramsHash string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, job_type, params_hash, params_json, status, attempt_count, max_attempts,
		       next_retry_at, locked_at, locked_by, cancel_requested, progress_json, error_json, created_at, updated_at
		FROM jobs
		WHERE tenant = ? AND run_id = ? AND job_type = ? AND params_hash = ? AND status IN ('queued', 'running', 'succeeded')
		ORDER BY created_at DESC LIMIT 1`, tenant, runID, jobType, paramsHash)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// ClaimNext atomically claims the oldest queued job (or a running job whose
// lease has gone stale) of jobType. The store's *sql.DB is opened with
// SetMaxOpenConns(1), so a transaction already holds the only connection for
// its lifetime — the same single-writer serialization the teacher's store
// relies on instead of SELECT ... FOR UPDATE SKIP LOCKED.
func (q *Queue) ClaimNext(ctx context.Context, workerID, jobType string, staleAfter time.Duration) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id FROM jobs
		WHERE job_type = ?
		  AND (status = 'queued'
		       OR (status = 'running' AND locked_at < strftime('%Y-%m-%dT%H:%M:%fZ', 'now', ?)))
		ORDER BY created_at ASC LIMIT 1`, jobType, fmt.Sprintf("-%d seconds", int(staleAfter.Seconds())))

	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', locked_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'),
		       locked_by = ?, attempt_count = attempt_count + 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ? AND (status = 'queued' OR status = 'running')`, workerID, id)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// another writer won the race between select and update
		return nil, nil
	}

	row2 := tx.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, job_type, params_hash, params_json, status, attempt_count, max_attempts,
		       next_retry_at, locked_at, locked_by, cancel_requested, progress_json, error_json, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row2)
	if err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return job, nil
}

// Complete marks a job succeeded.
func (q *Queue) Complete(ctx context.Context, jobID string, progress any) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'succeeded', progress_json = ?,
		       updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, string(progressJSON), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail transitions a job: terminal failure if attempt_count >= max_attempts,
// otherwise back to queued with an exponential-backoff next_retry_at and a
// cleared lease.
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	job, err := q.get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	errJSON, _ := json.Marshal(map[string]string{"message": cause.Error()})

	if job.AttemptCount >= job.MaxAttempts {
		_, err = q.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'failed', error_json = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
			WHERE id = ?`, string(errJSON), jobID)
		return err
	}

	delay := fetcher.BackoffDelay(job.AttemptCount, 2*time.Second, 5*time.Minute)
	_, err = q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', error_json = ?, locked_at = NULL, locked_by = '',
		       next_retry_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now', ?),
		       updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, string(errJSON), fmt.Sprintf("+%d seconds", int(delay.Seconds())), jobID)
	return err
}

// Cancel requests cancellation. Terminal rows are a no-op, queued rows are
// cancelled immediately, running rows are flagged cancel_requested for the
// worker to observe cooperatively.
func (q *Queue) Cancel(ctx context.Context, jobID string) (string, error) {
	job, err := q.get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "not_found", nil
	}
	switch job.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return "noop_terminal", nil
	case StatusQueued:
		_, err = q.db.ExecContext(ctx, `UPDATE jobs SET status = 'cancelled', updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`, jobID)
		return "ok", err
	default: // running
		_, err = q.db.ExecContext(ctx, `UPDATE jobs SET cancel_requested = 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`, jobID)
		return "ok", err
	}
}

// Retry re-queues a failed or cancelled job. Only valid from those two
// terminal states.
func (q *Queue) Retry(ctx context.Context, jobID string, resetAttempts bool) error {
	job, err := q.get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != StatusFailed && job.Status != StatusCancelled {
		return fmt.Errorf("job %s is not in a retryable state (%s)", jobID, job.Status)
	}

	query := `UPDATE jobs SET status = 'queued', cancel_requested = 0, locked_at = NULL, locked_by = '',
	          updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`
	if resetAttempts {
		query += `, attempt_count = 0`
	}
	query += ` WHERE id = ?`
	_, err = q.db.ExecContext(ctx, query, jobID)
	return err
}

func (q *Queue) get(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant, run_id, job_type, params_hash, params_json, status, attempt_count, max_attempts,
		       next_retry_at, locked_at, locked_by, cancel_requested, progress_json, error_json, created_at, updated_at
		FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var cancelRequested int
	err := row.Scan(&j.ID, &j.Tenant, &j.RunID, &j.JobType, &j.ParamsHash, &j.ParamsJSON, &j.Status,
		&j.AttemptCount, &j.MaxAttempts, &j.NextRetryAt, &j.LockedAt, &j.LockedBy, &cancelRequested,
		&j.ProgressJSON, &j.ErrorJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.CancelRequested = cancelRequested != 0
	return &j, nil
}

func hashParams(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
