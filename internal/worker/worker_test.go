package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
	"github.com/google/uuid"
)

func newTestQueue(t *testing.T) (*jobqueue.Queue, string, string) {
	t.Helper()
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	q, err := jobqueue.Open(store.DB())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	tenant := "acme"
	run := &corestore.Run{ID: uuid.NewString(), Tenant: tenant, Mandate: "test"}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return q, tenant, run.ID
}

func TestRunOnceExecutesAndCompletes(t *testing.T) {
	queue, tenant, runID := newTestQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, tenant, runID, "acquire_extract", map[string]any{"url": "a"}, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var executed int32
	r := New(queue, "acquire_extract", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		atomic.AddInt32(&executed, 1)
		return map[string]any{"ok": true}, nil
	})

	processed, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}
	if atomic.LoadInt32(&executed) != 1 {
		t.Fatalf("expected executor called once, got %d", executed)
	}

	again, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run once: %v", err)
	}
	if again {
		t.Fatal("expected no more claimable jobs")
	}
}

func TestRunOnceFailsJobOnExecutorError(t *testing.T) {
	queue, tenant, runID := newTestQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, tenant, runID, "acquire_extract", map[string]any{"url": "a"}, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := New(queue, "acquire_extract", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		return nil, errors.New("boom")
	})

	processed, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !processed {
		t.Fatal("expected job to be claimed despite failure")
	}
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	queue, _, _ := newTestQueue(t)
	r := New(queue, "acquire_extract", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		return nil, nil
	}, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.RunForever(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
