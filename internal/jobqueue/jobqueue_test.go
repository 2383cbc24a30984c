package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/google/uuid"
)

func newTestQueue(t *testing.T) (*Queue, *corestore.Store) {
	t.Helper()
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	q, err := Open(store.DB())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return q, store
}

func seedRun(t *testing.T, store *corestore.Store) (tenant, runID string) {
	t.Helper()
	tenant = "acme"
	run := &corestore.Run{ID: uuid.NewString(), Tenant: tenant, Mandate: "test run"}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	return tenant, run.ID
}

func TestEnqueueDeduplicatesInflight(t *testing.T) {
	q, store := newTestQueue(t)
	tenant, runID := seedRun(t, store)
	ctx := context.Background()

	params := map[string]any{"url": "https://example.com"}
	first, err := q.Enqueue(ctx, tenant, runID, "fetch_url", params, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.Reused {
		t.Fatalf("expected a fresh job, got reused")
	}

	second, err := q.Enqueue(ctx, tenant, runID, "fetch_url", params, 3)
	if err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if !second.Reused || second.JobID != first.JobID {
		t.Fatalf("expected reuse of %s, got %+v", first.JobID, second)
	}
	if second.ReuseReason != ReuseInflight {
		t.Fatalf("expected inflight reuse reason, got %s", second.ReuseReason)
	}
}

func TestClaimNextThenComplete(t *testing.T) {
	q, store := newTestQueue(t)
	tenant, runID := seedRun(t, store)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, tenant, runID, "fetch_url", map[string]any{"url": "a"}, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.ClaimNext(ctx, "worker-1", "fetch_url", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	if job.Status != StatusRunning || job.LockedBy != "worker-1" {
		t.Fatalf("unexpected claimed job state: %+v", job)
	}

	again, err := q.ClaimNext(ctx, "worker-2", "fetch_url", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no claimable job left, got %+v", again)
	}

	if err := q.Complete(ctx, job.ID, map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	reloaded, err := q.get(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", reloaded.Status)
	}
}

func TestFailRetriesUntilMaxAttempts(t *testing.T) {
	q, store := newTestQueue(t)
	tenant, runID := seedRun(t, store)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, tenant, runID, "fetch_url", map[string]any{"url": "a"}, 2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.ClaimNext(ctx, "worker-1", "fetch_url", time.Minute)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}
	if job.AttemptCount != 1 {
		t.Fatalf("expected attempt_count 1 after first claim, got %d", job.AttemptCount)
	}

	if err := q.Fail(ctx, job.ID, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	afterFirstFail, err := q.get(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if afterFirstFail.Status != StatusQueued {
		t.Fatalf("expected requeue after first failure, got %s", afterFirstFail.Status)
	}

	job2, err := q.ClaimNext(ctx, "worker-1", "fetch_url", time.Minute)
	if err != nil || job2 == nil {
		t.Fatalf("second claim: job=%v err=%v", job2, err)
	}
	if job2.AttemptCount != 2 {
		t.Fatalf("expected attempt_count 2, got %d", job2.AttemptCount)
	}
	if err := q.Fail(ctx, job2.ID, errors.New("boom again")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	final, err := q.get(ctx, job2.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected terminal failure at max attempts, got %s", final.Status)
	}
}

func TestCancelQueuedVsRunning(t *testing.T) {
	q, store := newTestQueue(t)
	tenant, runID := seedRun(t, store)
	ctx := context.Background()

	queuedResult, err := q.Enqueue(ctx, tenant, runID, "fetch_url", map[string]any{"url": "q"}, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	status, err := q.Cancel(ctx, queuedResult.JobID)
	if err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	if status != "ok" {
		t.Fatalf("expected ok, got %s", status)
	}
	queuedJob, err := q.get(ctx, queuedResult.JobID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if queuedJob.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", queuedJob.Status)
	}

	runningResult, err := q.Enqueue(ctx, tenant, runID, "fetch_url", map[string]any{"url": "r"}, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	running, err := q.ClaimNext(ctx, "worker-1", "fetch_url", time.Minute)
	if err != nil || running == nil {
		t.Fatalf("claim: job=%v err=%v", running, err)
	}
	if running.ID != runningResult.JobID {
		t.Fatalf("claimed wrong job")
	}
	status, err = q.Cancel(ctx, running.ID)
	if err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	if status != "ok" {
		t.Fatalf("expected ok, got %s", status)
	}
	reloaded, err := q.get(ctx, running.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != StatusRunning || !reloaded.CancelRequested {
		t.Fatalf("expected running job flagged cancel_requested, got %+v", reloaded)
	}
}

func TestRetryRequiresTerminalState(t *testing.T) {
	q, store := newTestQueue(t)
	tenant, runID := seedRun(t, store)
	ctx := context.Background()

	result, err := q.Enqueue(ctx, tenant, runID, "fetch_url", map[string]any{"url": "x"}, 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Retry(ctx, result.JobID, false); err == nil {
		t.Fatal("expected error retrying a queued (non-terminal) job")
	}

	job, err := q.ClaimNext(ctx, "worker-1", "fetch_url", time.Minute)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}
	if err := q.Fail(ctx, job.ID, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	failed, err := q.get(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("expected terminal failure with max_attempts=1, got %s", failed.Status)
	}

	if err := q.Retry(ctx, job.ID, true); err != nil {
		t.Fatalf("retry: %v", err)
	}
	requeued, err := q.get(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if requeued.Status != StatusQueued || requeued.AttemptCount != 0 {
		t.Fatalf("expected reset queued job, got %+v", requeued)
	}
}
