// Package worker runs the claim -> execute -> ack loop over a jobqueue.Queue,
// translating the original acquire_extract_async job runner's run_once/
// run_forever shape (poll, claim, execute, repeat; sleep only when idle)
// into a goroutine driven by a time.Ticker and a context.Context.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/antigravity-dev/prospector/internal/jobqueue"
	"github.com/google/uuid"
)

// Executor runs one claimed job's work. A non-nil error fails the job
// (triggering jobqueue's backoff/terminal-failure rule); the returned value
// is stored as the job's progress payload on success.
type Executor func(ctx context.Context, job *jobqueue.Job) (progress any, err error)

// Runner polls a single job type and executes claimed jobs one at a time.
type Runner struct {
	queue        *jobqueue.Queue
	jobType      string
	workerID     string
	pollInterval time.Duration
	staleAfter   time.Duration
	exec         Executor
	logger       *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkerID overrides the generated worker id (jobtype-hostname-pid by
// default, mirroring the original runner's "acq-extract-<host>-<pid>").
func WithWorkerID(id string) Option {
	return func(r *Runner) { r.workerID = id }
}

// WithPollInterval sets how long run_forever sleeps after an idle poll.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

// WithStaleAfter sets how long a running job's lease may go unrenewed before
// another worker is allowed to reclaim it.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Runner) { r.staleAfter = d }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New builds a Runner for jobType, executing claimed jobs with exec.
func New(queue *jobqueue.Queue, jobType string, exec Executor, opts ...Option) *Runner {
	hostname, _ := os.Hostname()
	r := &Runner{
		queue:        queue,
		jobType:      jobType,
		workerID:     fmt.Sprintf("%s-%s-%d", jobType, hostname, os.Getpid()),
		pollInterval: time.Second,
		staleAfter:   5 * time.Minute,
		exec:         exec,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce claims and executes a single job, if one is available. It reports
// whether a job was processed (claimed), regardless of whether execution
// succeeded.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.ClaimNext(ctx, r.workerID, r.jobType, r.staleAfter)
	if err != nil {
		return false, fmt.Errorf("claim next %s job: %w", r.jobType, err)
	}
	if job == nil {
		return false, nil
	}

	r.logger.Info("worker claimed job", "worker_id", r.workerID, "job_id", job.ID, "job_type", r.jobType, "attempt", job.AttemptCount)

	progress, execErr := r.exec(ctx, job)
	if execErr != nil {
		r.logger.Warn("job execution failed", "worker_id", r.workerID, "job_id", job.ID, "error", execErr)
		if failErr := r.queue.Fail(ctx, job.ID, execErr); failErr != nil {
			return true, fmt.Errorf("record job failure: %w", failErr)
		}
		return true, nil
	}

	if err := r.queue.Complete(ctx, job.ID, progress); err != nil {
		return true, fmt.Errorf("complete job: %w", err)
	}
	r.logger.Info("worker completed job", "worker_id", r.workerID, "job_id", job.ID)
	return true, nil
}

// RunForever polls indefinitely until ctx is cancelled, sleeping
// pollInterval only when idle (no job was claimed) so a backlog drains
// without waiting between claims.
func (r *Runner) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("worker iteration error", "worker_id", r.workerID, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			continue
		}
	}
}

// NewWorkerID builds a unique id for callers that want a fresh identity per
// runner instance instead of the hostname/pid default (e.g. several
// in-process runners for the same job type in tests).
func NewWorkerID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}
