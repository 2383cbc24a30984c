package corestore

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "identify targets", Sector: "software"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != RunStatusPlanned {
		t.Fatalf("expected default status planned, got %s", run.Status)
	}

	loaded, err := store.GetRun(ctx, "acme", run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.Mandate != "identify targets" {
		t.Fatalf("expected mandate to round-trip, got %q", loaded.Mandate)
	}
}

func TestUpdateRunStatusStampsStartedAndFinished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "m"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := store.UpdateRunStatus(ctx, "acme", run.ID, RunStatusRunning, "", true, false); err != nil {
		t.Fatalf("update to running: %v", err)
	}
	running, err := store.GetRun(ctx, "acme", run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if running.Status != RunStatusRunning || running.StartedAt.IsZero() {
		t.Fatalf("expected running status with started_at set, got %+v", running)
	}

	if err := store.UpdateRunStatus(ctx, "acme", run.ID, RunStatusFailed, "boom", false, true); err != nil {
		t.Fatalf("update to failed: %v", err)
	}
	failed, err := store.GetRun(ctx, "acme", run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if failed.Status != RunStatusFailed || failed.LastError != "boom" || failed.FinishedAt.IsZero() {
		t.Fatalf("expected failed status with last_error and finished_at set, got %+v", failed)
	}
}

func TestUpdateRunStatusUnknownRunFails(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpdateRunStatus(context.Background(), "acme", "missing", RunStatusRunning, "", true, false); err == nil {
		t.Fatal("expected an error updating a run that doesn't exist")
	}
}

func TestCreateRunStepsRejectsDuplicateStepKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "m"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	steps := []*RunStep{
		{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, StepKey: "discover", StepOrder: 1},
		{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, StepKey: "discover", StepOrder: 2},
	}
	if err := store.CreateRunSteps(ctx, steps); err == nil {
		t.Fatal("expected duplicate step_key to fail the whole insert")
	}

	loaded, err := store.ListRunSteps(ctx, "acme", run.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected the transaction to roll back entirely, got %d steps", len(loaded))
	}
}

func TestUpdateRunStepTransitionsStatusAndAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "m"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	steps := []*RunStep{{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, StepKey: "discover", StepOrder: 1}}
	if err := store.CreateRunSteps(ctx, steps); err != nil {
		t.Fatalf("create steps: %v", err)
	}

	if err := store.UpdateRunStep(ctx, "acme", run.ID, "discover", StepTransition{Status: StepStatusRunning, AttemptInc: true}); err != nil {
		t.Fatalf("transition step: %v", err)
	}
	step, err := store.GetRunStep(ctx, "acme", run.ID, "discover")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if step.Status != StepStatusRunning || step.AttemptCount != 1 {
		t.Fatalf("expected running status with attempt_count 1, got %+v", step)
	}
}

func TestInsertAndListExecutivesForCompany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "m"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	prospect := &Prospect{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, NameRaw: "Acme Corp", NameNormalized: "acme"}
	if err := store.InsertProspect(ctx, prospect); err != nil {
		t.Fatalf("insert prospect: %v", err)
	}

	exec := &Executive{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, CompanyProspectID: prospect.ID, NameRaw: "Jane Doe", Title: "CEO"}
	if err := store.InsertExecutive(ctx, exec); err != nil {
		t.Fatalf("insert executive: %v", err)
	}

	list, err := store.ListExecutivesForCompany(ctx, "acme", prospect.ID)
	if err != nil {
		t.Fatalf("list executives: %v", err)
	}
	if len(list) != 1 || list[0].ID != exec.ID {
		t.Fatalf("expected to find the inserted executive, got %+v", list)
	}
}

func TestInsertAndListMergeDecisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), Tenant: "acme", Mandate: "m"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	prospect := &Prospect{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, NameRaw: "Acme Corp", NameNormalized: "acme"}
	if err := store.InsertProspect(ctx, prospect); err != nil {
		t.Fatalf("insert prospect: %v", err)
	}
	left := &Executive{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, CompanyProspectID: prospect.ID, NameRaw: "Jane Doe"}
	right := &Executive{ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, CompanyProspectID: prospect.ID, NameRaw: "J. Doe"}
	if err := store.InsertExecutive(ctx, left); err != nil {
		t.Fatalf("insert left: %v", err)
	}
	if err := store.InsertExecutive(ctx, right); err != nil {
		t.Fatalf("insert right: %v", err)
	}

	decision := &ExecutiveMergeDecision{
		ID: uuid.NewString(), Tenant: "acme", RunID: run.ID, CompanyProspectID: prospect.ID,
		LeftExecutiveID: left.ID, RightExecutiveID: right.ID, DecisionType: MergeDecisionMarkSame, CreatedBy: "analyst-1",
	}
	if err := store.InsertMergeDecision(ctx, decision); err != nil {
		t.Fatalf("insert decision: %v", err)
	}

	decisions, err := store.ListMergeDecisionsForRun(ctx, "acme", run.ID)
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decisions) != 1 || decisions[0].DecisionType != MergeDecisionMarkSame {
		t.Fatalf("expected the recorded decision to round-trip, got %+v", decisions)
	}
}
