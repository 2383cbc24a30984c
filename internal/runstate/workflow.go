package runstate

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RunWorkflow drives one run through its fixed plan:
//
//  1. acquire_urls       — confirm/queue every url-type source for fetch
//  2. fetch_url_sources  — drain the fetch queue
//  3. extract_sources    — run extraction strategies over fetched content
//  4. dedupe_prospects   — canonicalize and merge duplicate companies
//  5. enrich_companies   — run the configured enrichment provider
//  6. exec_discovery     — run executive discovery for enabled prospects
//  7. finalize           — roll the run to its terminal status
//
// Each step is a single activity call; the activity itself persists the
// authoritative RunStep row, so a caller reading corestore directly sees
// the same truth the workflow is acting on.
func RunWorkflow(ctx workflow.Context, req RunRequest) error {
	logger := workflow.GetLogger(ctx)

	defaultOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	fetchOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}

	var a *Activities

	logger.Info("run step starting", "step", "acquire_urls", "run_id", req.RunID)
	actx := workflow.WithActivityOptions(ctx, defaultOpts)
	var acquireOut AcquireURLsOutput
	if err := workflow.ExecuteActivity(actx, a.AcquireURLsActivity, AcquireURLsInput{Tenant: req.Tenant, RunID: req.RunID}).Get(ctx, &acquireOut); err != nil {
		return fmt.Errorf("acquire_urls: %w", err)
	}

	logger.Info("run step starting", "step", "fetch_url_sources", "run_id", req.RunID)
	fctx := workflow.WithActivityOptions(ctx, fetchOpts)
	var fetchOut FetchURLSourcesOutput
	if err := workflow.ExecuteActivity(fctx, a.FetchURLSourcesActivity, FetchURLSourcesInput{Tenant: req.Tenant, RunID: req.RunID}).Get(ctx, &fetchOut); err != nil {
		return fmt.Errorf("fetch_url_sources: %w", err)
	}

	logger.Info("run step starting", "step", "extract_sources", "run_id", req.RunID)
	ectx := workflow.WithActivityOptions(ctx, defaultOpts)
	var extractOut ExtractSourcesOutput
	if err := workflow.ExecuteActivity(ectx, a.ExtractSourcesActivity, ExtractSourcesInput{Tenant: req.Tenant, RunID: req.RunID}).Get(ctx, &extractOut); err != nil {
		return fmt.Errorf("extract_sources: %w", err)
	}

	logger.Info("run step starting", "step", "dedupe_prospects", "run_id", req.RunID)
	dctx := workflow.WithActivityOptions(ctx, defaultOpts)
	var dedupeOut DedupeProspectsOutput
	if err := workflow.ExecuteActivity(dctx, a.DedupeProspectsActivity, DedupeProspectsInput{Tenant: req.Tenant, RunID: req.RunID}).Get(ctx, &dedupeOut); err != nil {
		return fmt.Errorf("dedupe_prospects: %w", err)
	}

	logger.Info("run step starting", "step", "enrich_companies", "run_id", req.RunID)
	nctx := workflow.WithActivityOptions(ctx, fetchOpts)
	var enrichOut EnrichCompaniesOutput
	if err := workflow.ExecuteActivity(nctx, a.EnrichCompaniesActivity, EnrichCompaniesInput{
		Tenant: req.Tenant, RunID: req.RunID, ProviderKey: "deterministic",
	}).Get(ctx, &enrichOut); err != nil {
		return fmt.Errorf("enrich_companies: %w", err)
	}

	logger.Info("run step starting", "step", "exec_discovery", "run_id", req.RunID)
	xctx := workflow.WithActivityOptions(ctx, fetchOpts)
	var execOut ExecDiscoveryOutput
	if err := workflow.ExecuteActivity(xctx, a.ExecDiscoveryActivity, ExecDiscoveryInput{
		Tenant: req.Tenant, RunID: req.RunID, ProviderKey: "deterministic",
	}).Get(ctx, &execOut); err != nil {
		return fmt.Errorf("exec_discovery: %w", err)
	}

	logger.Info("run step starting", "step", "finalize", "run_id", req.RunID)
	zctx := workflow.WithActivityOptions(ctx, defaultOpts)
	var finalOut FinalizeOutput
	if err := workflow.ExecuteActivity(zctx, a.FinalizeActivity, FinalizeInput{Tenant: req.Tenant, RunID: req.RunID}).Get(ctx, &finalOut); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	logger.Info("run finished", "run_id", req.RunID, "status", finalOut.Status)
	return nil
}
