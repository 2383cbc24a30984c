// Package runstate drives a run through its fixed plan as a Temporal
// workflow, grounded on internal/temporal/workflow.go's phase-based activity
// sequencing and internal/temporal/worker.go's registration pattern. Unlike
// the teacher's CortexAgentWorkflow, each activity here writes the
// authoritative RunStep row itself before returning, so external callers
// reading corestore directly see the same truth the workflow engine acted
// on instead of needing Temporal's own history API.
package runstate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/dedupe"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/enrichment"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
)

// PlanKeys is the fixed, ordered step sequence every run executes, verbatim
// from spec.md §4.I.
var PlanKeys = []string{
	"acquire_urls",
	"fetch_url_sources",
	"extract_sources",
	"dedupe_prospects",
	"enrich_companies",
	"exec_discovery",
	"finalize",
}

// RunRequest is the workflow input.
type RunRequest struct {
	Tenant string
	RunID  string
}

// Activities binds every downstream package a step needs. One instance is
// shared by all activity methods registered on the Temporal worker.
type Activities struct {
	Store      *corestore.Store
	Queue      *jobqueue.Queue
	Fetcher    *fetcher.Fetcher
	Dedupe     *dedupe.Resolver
	Enrichment *enrichment.Ledger
	Discovery  *discovery.Registry
}

// stepInput is hashed to decide whether a step's prior output can be reused
// verbatim (re-entry after a worker crash produces no duplicate effects).
func hashStepInput(v any) (string, string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal step input: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), string(b), nil
}

// beginStep loads the current RunStep, and if its last recorded InputHash
// matches newHash and it already succeeded, returns (true, priorOutput) so
// the caller can short-circuit without re-running side effects. Otherwise it
// marks the step running and returns (false, "").
func beginStep(ctx context.Context, store *corestore.Store, tenant, runID, stepKey, newHash string) (reused bool, priorOutput string, err error) {
	step, err := store.GetRunStep(ctx, tenant, runID, stepKey)
	if err != nil {
		return false, "", fmt.Errorf("load run_step %s: %w", stepKey, err)
	}
	if step.Status == corestore.StepStatusSucceeded && step.InputHash == newHash {
		return true, step.OutputJSON, nil
	}
	if err := store.UpdateRunStep(ctx, tenant, runID, stepKey, corestore.StepTransition{
		Status:     corestore.StepStatusRunning,
		AttemptInc: true,
		InputHash:  newHash,
	}); err != nil {
		return false, "", fmt.Errorf("mark run_step %s running: %w", stepKey, err)
	}
	return false, "", nil
}

func succeedStep(ctx context.Context, store *corestore.Store, tenant, runID, stepKey string, output any) error {
	outJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal step output: %w", err)
	}
	return store.UpdateRunStep(ctx, tenant, runID, stepKey, corestore.StepTransition{
		Status:     corestore.StepStatusSucceeded,
		OutputJSON: string(outJSON),
	})
}

func failStep(ctx context.Context, store *corestore.Store, tenant, runID, stepKey string, cause error) error {
	return store.UpdateRunStep(ctx, tenant, runID, stepKey, corestore.StepTransition{
		Status:    corestore.StepStatusFailed,
		LastError: cause.Error(),
	})
}
