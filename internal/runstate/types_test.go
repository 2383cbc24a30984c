package runstate

import (
	"context"
	"testing"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/google/uuid"
)

func seedRunWithStep(t *testing.T, store *corestore.Store, stepKey string) (tenant, runID string) {
	t.Helper()
	tenant = "acme"
	run := &corestore.Run{ID: uuid.NewString(), Tenant: tenant, Mandate: "m"}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	steps := []*corestore.RunStep{{ID: uuid.NewString(), Tenant: tenant, RunID: run.ID, StepKey: stepKey, StepOrder: 1}}
	if err := store.CreateRunSteps(context.Background(), steps); err != nil {
		t.Fatalf("create steps: %v", err)
	}
	return tenant, run.ID
}

func TestHashStepInputDeterministic(t *testing.T) {
	h1, raw1, err := hashStepInput(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, raw2, err := hashStepInput(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 != h2 || raw1 != raw2 {
		t.Fatalf("expected identical input to hash and marshal identically, got %s/%s vs %s/%s", h1, raw1, h2, raw2)
	}
}

func TestBeginStepMarksRunningOnFirstEntry(t *testing.T) {
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	tenant, runID := seedRunWithStep(t, store, "acquire_urls")
	ctx := context.Background()

	hash, _, err := hashStepInput(map[string]any{"mandate": "m"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	reused, _, err := beginStep(ctx, store, tenant, runID, "acquire_urls", hash)
	if err != nil {
		t.Fatalf("begin step: %v", err)
	}
	if reused {
		t.Fatal("expected no reuse on first entry")
	}
	step, err := store.GetRunStep(ctx, tenant, runID, "acquire_urls")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if step.Status != corestore.StepStatusRunning || step.AttemptCount != 1 {
		t.Fatalf("expected running status with attempt_count 1, got %+v", step)
	}
}

func TestBeginStepReusesOutputOnMatchingHashAfterSuccess(t *testing.T) {
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	tenant, runID := seedRunWithStep(t, store, "acquire_urls")
	ctx := context.Background()

	hash, _, err := hashStepInput(map[string]any{"mandate": "m"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, _, err := beginStep(ctx, store, tenant, runID, "acquire_urls", hash); err != nil {
		t.Fatalf("begin step: %v", err)
	}
	if err := succeedStep(ctx, store, tenant, runID, "acquire_urls", map[string]any{"url_count": 3}); err != nil {
		t.Fatalf("succeed step: %v", err)
	}

	reused, priorOutput, err := beginStep(ctx, store, tenant, runID, "acquire_urls", hash)
	if err != nil {
		t.Fatalf("second begin step: %v", err)
	}
	if !reused {
		t.Fatal("expected a re-entry with the same input hash to short-circuit")
	}
	if priorOutput == "" {
		t.Fatal("expected the prior output to be returned on reuse")
	}
}

func TestBeginStepReRunsOnChangedInputHash(t *testing.T) {
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	tenant, runID := seedRunWithStep(t, store, "acquire_urls")
	ctx := context.Background()

	firstHash, _, err := hashStepInput(map[string]any{"mandate": "m"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, _, err := beginStep(ctx, store, tenant, runID, "acquire_urls", firstHash); err != nil {
		t.Fatalf("begin step: %v", err)
	}
	if err := succeedStep(ctx, store, tenant, runID, "acquire_urls", map[string]any{"url_count": 3}); err != nil {
		t.Fatalf("succeed step: %v", err)
	}

	secondHash, _, err := hashStepInput(map[string]any{"mandate": "different mandate"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	reused, _, err := beginStep(ctx, store, tenant, runID, "acquire_urls", secondHash)
	if err != nil {
		t.Fatalf("second begin step: %v", err)
	}
	if reused {
		t.Fatal("expected a changed input hash to force re-execution")
	}
}

func TestFailStepRecordsLastError(t *testing.T) {
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	tenant, runID := seedRunWithStep(t, store, "acquire_urls")
	ctx := context.Background()

	if err := failStep(ctx, store, tenant, runID, "acquire_urls", context.DeadlineExceeded); err != nil {
		t.Fatalf("fail step: %v", err)
	}
	step, err := store.GetRunStep(ctx, tenant, runID, "acquire_urls")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if step.Status != corestore.StepStatusFailed || step.LastError == "" {
		t.Fatalf("expected a failed step with last_error set, got %+v", step)
	}
}
