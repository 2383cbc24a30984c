// Package orchestrator binds every component package (A-K) behind the
// operations spec.md §4.L names, centralizing the tenant-scoping check every
// method needs.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/prospector/internal/corerrors"
	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/dedupe"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/enrichment"
	"github.com/antigravity-dev/prospector/internal/evidencebundle"
	"github.com/antigravity-dev/prospector/internal/exportpack"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/identitygraph"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
	"github.com/antigravity-dev/prospector/internal/runstate"
)

// Service binds every downstream dependency the orchestrated operations need.
type Service struct {
	Store      *corestore.Store
	Queue      *jobqueue.Queue
	Fetcher    *fetcher.Fetcher
	Dedupe     *dedupe.Resolver
	Enrichment *enrichment.Ledger
	Discovery  *discovery.Registry
	Temporal   client.Client // nil in tests that don't exercise StartRun

	runLocksMu sync.Mutex
	runLocks   map[string]*sync.Mutex
}

// lockRun returns the in-process advisory lock for a run, creating it on
// first use. Generalizes the teacher's single-process internal/health/flock.go
// lock (one process, one lock file) to one in-process mutex per run, guarding
// the identity-graph read-modify-write path against concurrent callers in
// this process. The path runs no enclosing transaction, so another process
// writing the same run is held off only by SQLite's file locking.
func (s *Service) lockRun(runID string) *sync.Mutex {
	s.runLocksMu.Lock()
	defer s.runLocksMu.Unlock()
	if s.runLocks == nil {
		s.runLocks = make(map[string]*sync.Mutex)
	}
	mu, ok := s.runLocks[runID]
	if !ok {
		mu = &sync.Mutex{}
		s.runLocks[runID] = mu
	}
	return mu
}

// requireTenant rejects a call whose caller tenant doesn't match the
// resource's owning tenant, checked once here instead of per method.
func requireTenant(callerTenant, resourceTenant string) error {
	if callerTenant == "" {
		return &corerrors.ValidationError{Field: "tenant", Message: "tenant is required"}
	}
	if callerTenant != resourceTenant {
		return &corerrors.AuthorizationError{Tenant: callerTenant, RequestedID: resourceTenant}
	}
	return nil
}

// CreateRun inserts a new run and its fixed plan steps in "planned" status.
func (s *Service) CreateRun(ctx context.Context, tenant, mandate, sector, regionScope, createdBy string) (*corestore.Run, error) {
	run := &corestore.Run{
		ID:      uuid.NewString(),
		Tenant:  tenant,
		Mandate: mandate,
		Sector:  sector,
		RegionScope: regionScope,
		CreatedBy:   createdBy,
	}
	if err := s.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	steps := make([]*corestore.RunStep, 0, len(runstate.PlanKeys))
	for i, key := range runstate.PlanKeys {
		steps = append(steps, &corestore.RunStep{
			ID:        uuid.NewString(),
			Tenant:    tenant,
			RunID:     run.ID,
			StepKey:   key,
			StepOrder: i,
		})
	}
	if err := s.Store.CreateRunSteps(ctx, steps); err != nil {
		return nil, fmt.Errorf("create run steps: %w", err)
	}
	return run, nil
}

// GetRun fetches a run, rejecting a cross-tenant read.
func (s *Service) GetRun(ctx context.Context, tenant, runID string) (*corestore.Run, error) {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return nil, err
	}
	return run, nil
}

// StartRun transitions a run to queued/running and starts its Temporal
// workflow execution.
func (s *Service) StartRun(ctx context.Context, tenant, runID string) error {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return err
	}

	if err := s.Store.UpdateRunStatus(ctx, tenant, runID, corestore.RunStatusRunning, "", true, false); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	if s.Temporal == nil {
		return nil
	}
	_, err = s.Temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "run-" + runID,
		TaskQueue: runstate.TaskQueue,
	}, runstate.RunWorkflow, runstate.RunRequest{Tenant: tenant, RunID: runID})
	if err != nil {
		return fmt.Errorf("start run workflow: %w", err)
	}
	return nil
}

// CancelRun requests cancellation of a running run.
func (s *Service) CancelRun(ctx context.Context, tenant, runID string) error {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return err
	}
	return s.Store.UpdateRunStatus(ctx, tenant, runID, corestore.RunStatusCancelled, "cancelled by caller", false, true)
}

// RetryRun requeues a failed run from its current step state.
func (s *Service) RetryRun(ctx context.Context, tenant, runID string) error {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return err
	}
	if run.Status != corestore.RunStatusFailed && run.Status != corestore.RunStatusCancelled {
		return &corerrors.ConflictError{Entity: "run", From: run.Status, To: corestore.RunStatusQueued, Reason: "only failed or cancelled runs may be retried"}
	}
	return s.Store.UpdateRunStatus(ctx, tenant, runID, corestore.RunStatusQueued, "", false, false)
}

// AddSource registers a new source document against a run.
func (s *Service) AddSource(ctx context.Context, tenant, runID, sourceType, urlRaw, mimeType string, contentBytes []byte) (*corestore.SourceDocument, error) {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return nil, err
	}

	doc := &corestore.SourceDocument{
		ID:           uuid.NewString(),
		Tenant:       tenant,
		RunID:        runID,
		SourceType:   sourceType,
		URLRaw:       urlRaw,
		MimeType:     mimeType,
		ContentBytes: contentBytes,
	}
	if err := s.Store.InsertSourceDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert source document: %w", err)
	}
	return doc, nil
}

// EnqueueAcquireExtract enqueues the acquire_extract_async job for a source.
func (s *Service) EnqueueAcquireExtract(ctx context.Context, tenant, runID, sourceDocumentID string) (*jobqueue.EnqueueResult, error) {
	return s.Queue.Enqueue(ctx, tenant, runID, "acquire_extract_async", map[string]any{"source_document_id": sourceDocumentID}, 5)
}

// AcquireExtract fetches and extracts a single source document synchronously
// (used by tests and small interactive flows; production traffic goes
// through EnqueueAcquireExtract + the worker pool).
func (s *Service) AcquireExtract(ctx context.Context, tenant, runID, sourceDocumentID string) error {
	doc, err := s.Store.GetSourceDocument(ctx, tenant, sourceDocumentID)
	if err != nil {
		return fmt.Errorf("get source document: %w", err)
	}
	if err := requireTenant(tenant, doc.Tenant); err != nil {
		return err
	}
	return s.ExecuteAcquireExtractJob(ctx, tenant, doc.ID, "inline")
}

// ClaimNextJob delegates to the job queue.
func (s *Service) ClaimNextJob(ctx context.Context, workerID, jobType string, staleAfter time.Duration) (*jobqueue.Job, error) {
	return s.Queue.ClaimNext(ctx, workerID, jobType, staleAfter)
}

// ExecuteAcquireExtractJob performs the fetch+extract side effect for a
// source document and records the result, independent of whether it was
// invoked by a queued job or synchronously.
func (s *Service) ExecuteAcquireExtractJob(ctx context.Context, tenant, sourceDocumentID, workerID string) error {
	doc, err := s.Store.GetSourceDocument(ctx, tenant, sourceDocumentID)
	if err != nil {
		return fmt.Errorf("get source document: %w", err)
	}

	if doc.SourceType == corestore.SourceTypeURL {
		result, err := s.Fetcher.Fetch(ctx, doc.URLRaw, true, fetcher.Options{RespectRobots: true})
		if err != nil {
			msg := err.Error()
			_ = s.Store.UpdateSourceDocument(ctx, tenant, doc.ID, corestore.DocumentUpdate{
				Status: corestore.DocStatusFailed, HTTPErrorMessage: &msg, AttemptInc: true,
			})
			return fmt.Errorf("fetch source %s: %w", doc.ID, err)
		}
		finalURL := result.FinalURL
		if err := s.Store.UpdateSourceDocument(ctx, tenant, doc.ID, corestore.DocumentUpdate{
			Status: corestore.DocStatusFetched, ContentBytes: result.Body,
			HTTPFinalURL: &finalURL, CanonicalFinalURL: &finalURL, AttemptInc: true,
		}); err != nil {
			return fmt.Errorf("update fetched source %s: %w", doc.ID, err)
		}
	}

	return s.Store.UpdateSourceDocument(ctx, tenant, doc.ID, corestore.DocumentUpdate{
		Status: corestore.DocStatusProcessed,
	})
}

// RunDiscoveryProvider runs the given company discovery provider directly,
// through the enrichment ledger's reuse logic, then projects every company
// the provider returned into a canonical prospect.
func (s *Service) RunDiscoveryProvider(ctx context.Context, tenant, runID, providerKey string, req discovery.Request, force bool) (*enrichment.RunResult, error) {
	p, err := s.Discovery.Get(providerKey)
	if err != nil {
		return nil, err
	}
	result, err := s.Enrichment.RunProvider(ctx, tenant, runID, p, req, "company_discovery", "run", runID, force)
	if err != nil {
		return nil, err
	}
	if !result.Skipped {
		if err := s.materializeCompanies(ctx, tenant, runID, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// materializeCompanies projects a discovery provider's company candidates
// into canonical prospects via Dedupe, attaching one ProspectEvidence row
// per source snippet the provider returned. A reused (skipped) provider
// call never reaches here: its prospects were already materialized on the
// original call.
func (s *Service) materializeCompanies(ctx context.Context, tenant, runID string, result *enrichment.RunResult) error {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	for _, c := range result.ProviderResult.Payload.Companies {
		prospect := &corestore.Prospect{
			ID:           uuid.NewString(),
			Tenant:       tenant,
			RunID:        runID,
			Mandate:      run.Mandate,
			NameRaw:      c.Name,
			WebsiteURL:   c.WebsiteURL,
			HQCountry:    c.HQCountry,
			HQCity:       c.HQCity,
			Sector:       c.Sector,
			Subsector:    c.Subsector,
			DiscoveredBy: corestore.DiscoveredInternal,
		}
		outcome, err := s.Dedupe.ResolveCompany(ctx, tenant, runID, prospect, c.Confidence)
		if err != nil {
			return fmt.Errorf("resolve discovered company %q: %w", c.Name, err)
		}
		for _, ev := range c.Evidence {
			evidence := &corestore.ProspectEvidence{
				ID:               uuid.NewString(),
				Tenant:           tenant,
				ProspectID:       outcome.ProspectID,
				SourceType:       result.ProviderResult.SourceType,
				SourceName:       ev.SourceName,
				SourceURL:        ev.SourceURL,
				SourceDocumentID: sql.NullString{String: result.SourceDocumentID, Valid: result.SourceDocumentID != ""},
				RawSnippet:       ev.Snippet,
				EvidenceWeight:   c.Confidence,
			}
			if err := s.Store.InsertProspectEvidence(ctx, evidence); err != nil {
				return fmt.Errorf("insert prospect evidence for %q: %w", c.Name, err)
			}
		}
	}
	return nil
}

// ExecutiveDiscoveryResult is the dual-engine coverage summary
// run_executive_discovery returns.
type ExecutiveDiscoveryResult struct {
	InternalAdded int
	ExternalAdded int
	Overlap       int
}

// executiveMatchKey is the same key buildIdentityGraph stores as each
// member's MatchKey: email when present, else normalized name scoped to the
// company prospect.
func executiveMatchKey(email, nameNormalized, companyProspectID string) string {
	if email != "" {
		return email
	}
	return nameNormalized + "|" + companyProspectID
}

// RunExecutiveDiscovery materializes a batch of executive candidates
// against a company prospect, enforcing the review gate (invariant #8):
// only a prospect with review_status=accepted and exec_search_enabled=true
// is eligible. An ineligible prospect is rejected with no side effects.
// Candidates already present under the same match key (email, else
// normalized-name+company) count toward Overlap instead of being
// reinserted.
func (s *Service) RunExecutiveDiscovery(ctx context.Context, tenant, runID string, payload discovery.ExecutiveDiscoveryV1, mode string) (*ExecutiveDiscoveryResult, error) {
	if mode != corestore.DiscoveredInternal && mode != corestore.DiscoveredExternal && mode != corestore.DiscoveredBoth {
		return nil, &corerrors.ValidationError{Field: "mode", Message: "must be internal, external, or both"}
	}

	prospect, err := s.Store.GetProspect(ctx, tenant, payload.CompanyProspectID)
	if err != nil {
		return nil, fmt.Errorf("get company prospect: %w", err)
	}
	if err := requireTenant(tenant, prospect.Tenant); err != nil {
		return nil, err
	}
	if prospect.ReviewStatus != corestore.ReviewStatusAccepted || !prospect.ExecSearchEnabled {
		return nil, &corerrors.ValidationError{
			Field:   "company_prospect_id",
			Message: "prospect is not eligible for executive discovery: review_status must be accepted and exec_search_enabled must be true",
		}
	}

	mu := s.lockRun(runID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.Store.ListExecutivesForCompany(ctx, tenant, payload.CompanyProspectID)
	if err != nil {
		return nil, fmt.Errorf("list existing executives: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[executiveMatchKey(e.Email, e.NameNormalized, e.CompanyProspectID)] = true
	}

	result := &ExecutiveDiscoveryResult{}
	for _, cand := range payload.Executives {
		discoveredBy := mode
		if mode == corestore.DiscoveredBoth {
			discoveredBy = cand.DiscoveredBy
			if discoveredBy != corestore.DiscoveredInternal && discoveredBy != corestore.DiscoveredExternal {
				return result, &corerrors.ValidationError{
					Field:   "executives[].discovered_by",
					Message: "must be internal or external when mode is both",
				}
			}
		}

		nameNorm := dedupe.NormalizeName(cand.Name)
		key := executiveMatchKey(cand.Email, nameNorm, payload.CompanyProspectID)
		if seen[key] {
			result.Overlap++
			continue
		}
		seen[key] = true

		exec := &corestore.Executive{
			ID:                uuid.NewString(),
			Tenant:            tenant,
			RunID:             runID,
			CompanyProspectID: payload.CompanyProspectID,
			NameRaw:           cand.Name,
			NameNormalized:    nameNorm,
			Title:             cand.Title,
			ProfileURL:        cand.ProfileURL,
			LinkedInURL:       cand.LinkedInURL,
			Email:             cand.Email,
			Confidence:        cand.Confidence,
			DiscoveredBy:      discoveredBy,
		}
		if err := s.Store.InsertExecutive(ctx, exec); err != nil {
			return result, fmt.Errorf("insert executive %q: %w", cand.Name, err)
		}
		for _, ev := range cand.Evidence {
			evidence := &corestore.ExecutiveEvidence{
				ID:             uuid.NewString(),
				Tenant:         tenant,
				ExecutiveID:    exec.ID,
				SourceType:     "discovery_payload",
				SourceName:     ev.SourceName,
				SourceURL:      ev.SourceURL,
				RawSnippet:     ev.Snippet,
				EvidenceWeight: cand.Confidence,
			}
			if err := s.Store.InsertExecutiveEvidence(ctx, evidence); err != nil {
				return result, fmt.Errorf("insert executive evidence for %q: %w", cand.Name, err)
			}
		}

		switch discoveredBy {
		case corestore.DiscoveredInternal:
			result.InternalAdded++
		case corestore.DiscoveredExternal:
			result.ExternalAdded++
		}
	}
	return result, nil
}

// ExecutiveCandidateMatch is one identity-graph component whose members
// span both discovery engines.
type ExecutiveCandidateMatch struct {
	CanonicalID string
	MemberIDs   []string
}

// ExecutiveCompareResult is the dual-engine coverage-counts view
// compare_executives returns.
type ExecutiveCompareResult struct {
	MatchedOrBoth    int
	InternalOnly     int
	ExternalOnly     int
	CandidateMatches []ExecutiveCandidateMatch
}

// CompareExecutives builds the identity graph for one company prospect's
// executives and reports dual-engine coverage: how many resolved
// components contain both an internal- and an external-discovered
// executive (matched_or_both), versus components covered by only one
// engine.
func (s *Service) CompareExecutives(ctx context.Context, tenant, runID, companyProspectID string) (*ExecutiveCompareResult, error) {
	mu := s.lockRun(runID)
	mu.Lock()
	defer mu.Unlock()

	execs, err := s.Store.ListExecutivesForCompany(ctx, tenant, companyProspectID)
	if err != nil {
		return nil, fmt.Errorf("list executives: %w", err)
	}

	g, err := s.buildIdentityGraph(ctx, tenant, runID, companyProspectID)
	if err != nil {
		return nil, err
	}

	engineByID := make(map[string]string, len(execs))
	for _, e := range execs {
		engineByID[e.ID] = e.DiscoveredBy
	}

	result := &ExecutiveCompareResult{}
	for _, res := range g.Resolve("executive", nil) {
		hasInternal, hasExternal := false, false
		for _, id := range res.MemberIDs {
			switch engineByID[id] {
			case corestore.DiscoveredInternal:
				hasInternal = true
			case corestore.DiscoveredExternal:
				hasExternal = true
			case corestore.DiscoveredBoth:
				hasInternal, hasExternal = true, true
			}
		}
		switch {
		case hasInternal && hasExternal:
			result.MatchedOrBoth++
			result.CandidateMatches = append(result.CandidateMatches, ExecutiveCandidateMatch{
				CanonicalID: res.CanonicalID, MemberIDs: res.MemberIDs,
			})
		case hasInternal:
			result.InternalOnly++
		case hasExternal:
			result.ExternalOnly++
		}
	}
	return result, nil
}

// RecordMergeDecision persists a mark_same/keep_separate decision. The
// identity graph is rebuilt from persisted decisions on next read — this
// call never mutates an in-memory graph directly.
func (s *Service) RecordMergeDecision(ctx context.Context, tenant, runID, companyProspectID, leftID, rightID, decisionType, createdBy, note string) error {
	if decisionType != corestore.MergeDecisionMarkSame && decisionType != corestore.MergeDecisionKeepSeparate {
		return &corerrors.ValidationError{Field: "decision_type", Message: "must be mark_same or keep_separate"}
	}

	mu := s.lockRun(runID)
	mu.Lock()
	defer mu.Unlock()

	if decisionType == corestore.MergeDecisionMarkSame {
		g, err := s.buildIdentityGraph(ctx, tenant, runID, companyProspectID)
		if err != nil {
			return err
		}
		if unionErr := g.Union(leftID, rightID); unionErr != nil {
			return unionErr
		}
	}

	d := &corestore.ExecutiveMergeDecision{
		ID:                uuid.NewString(),
		Tenant:            tenant,
		RunID:             runID,
		CompanyProspectID: companyProspectID,
		LeftExecutiveID:   leftID,
		RightExecutiveID:  rightID,
		DecisionType:      decisionType,
		CreatedBy:         createdBy,
		Note:              note,
	}
	return s.Store.InsertMergeDecision(ctx, d)
}

// PromotionOutcome is one executive's ATS-promotion result.
type PromotionOutcome struct {
	ExecutiveID         string
	ResolvedToCanonical string
	CandidateID         string
	ContactID           string
	AssignmentID        string
	Outcome             string // created or reused
	ReuseReason         string
}

// PromotionResult is promote_executive's {promoted_count, reused_count,
// results[...]}.
type PromotionResult struct {
	PromotedCount int
	ReusedCount   int
	Results       []PromotionOutcome
}

// PromoteExecutive raises an executive's verification status (rejecting any
// attempt to downgrade the component's current maximum) and resolves ATS
// identity (candidate_id/contact_id/assignment_id) to the component's
// canonical member per identitygraph.Canonical, minting new ids on first
// promotion and reusing the canonical's existing ids on every later call so
// the whole component eventually shares one ATS identity. The component's
// resulting maximum verification status is written to every member's row.
func (s *Service) PromoteExecutive(ctx context.Context, tenant, runID, executiveID, newStatus string) (*PromotionResult, error) {
	mu := s.lockRun(runID)
	mu.Lock()
	defer mu.Unlock()

	target, err := s.Store.GetExecutive(ctx, tenant, executiveID)
	if err != nil {
		return nil, fmt.Errorf("get executive: %w", err)
	}
	if err := requireTenant(tenant, target.Tenant); err != nil {
		return nil, err
	}

	g, err := s.buildIdentityGraph(ctx, tenant, runID, target.CompanyProspectID)
	if err != nil {
		return nil, err
	}
	if err := g.PromoteVerification(executiveID, newStatus); err != nil {
		return nil, err
	}
	resolved := g.VerificationStatus(executiveID)
	canonicalID := g.Canonical(executiveID)

	canonical := target
	if canonicalID != executiveID {
		canonical, err = s.Store.GetExecutive(ctx, tenant, canonicalID)
		if err != nil {
			return nil, fmt.Errorf("get canonical executive: %w", err)
		}
	}

	candidateID, contactID, assignmentID := canonical.CandidateID, canonical.ContactID, canonical.AssignmentID
	if candidateID == "" {
		candidateID, contactID, assignmentID = uuid.NewString(), uuid.NewString(), uuid.NewString()
		if canonicalID != executiveID {
			if err := s.Store.UpdateExecutive(ctx, tenant, canonicalID, corestore.ExecutiveUpdate{
				SetPromotion: true, CandidateID: candidateID, ContactID: contactID, AssignmentID: assignmentID,
			}); err != nil {
				return nil, fmt.Errorf("seed canonical ats identity: %w", err)
			}
		}
	}

	outcome, reuseReason := "created", ""
	if target.CandidateID == candidateID && target.CandidateID != "" {
		outcome, reuseReason = "reused", "executive already promoted to this canonical identity"
	}

	if err := s.Store.UpdateExecutive(ctx, tenant, executiveID, corestore.ExecutiveUpdate{
		SetVerification: true, VerificationStatus: resolved,
		SetPromotion: true, CandidateID: candidateID, ContactID: contactID, AssignmentID: assignmentID,
	}); err != nil {
		return nil, fmt.Errorf("update executive: %w", err)
	}
	for _, res := range g.Resolve("executive", nil) {
		if res.CanonicalID != canonicalID {
			continue
		}
		for _, mid := range res.MemberIDs {
			if mid == executiveID {
				continue
			}
			if err := s.Store.UpdateExecutive(ctx, tenant, mid, corestore.ExecutiveUpdate{
				SetVerification: true, VerificationStatus: resolved,
			}); err != nil {
				return nil, fmt.Errorf("propagate verification to %s: %w", mid, err)
			}
		}
	}

	result := &PromotionResult{
		Results: []PromotionOutcome{{
			ExecutiveID:         executiveID,
			ResolvedToCanonical: canonicalID,
			CandidateID:         candidateID,
			ContactID:           contactID,
			AssignmentID:        assignmentID,
			Outcome:             outcome,
			ReuseReason:         reuseReason,
		}},
	}
	if outcome == "reused" {
		result.ReusedCount = 1
	} else {
		result.PromotedCount = 1
	}
	return result, nil
}

// buildIdentityGraph rebuilds the in-memory union-find forest for one
// company prospect's executives from persisted merge decisions.
func (s *Service) buildIdentityGraph(ctx context.Context, tenant, runID, companyProspectID string) (*identitygraph.Graph, error) {
	execs, err := s.Store.ListExecutivesForCompany(ctx, tenant, companyProspectID)
	if err != nil {
		return nil, fmt.Errorf("list executives: %w", err)
	}
	g := identitygraph.New()
	for _, e := range execs {
		matchKey := e.Email
		if matchKey == "" {
			matchKey = e.NameNormalized + "|" + e.CompanyProspectID
		}
		g.AddMember(identitygraph.Member{
			ID:                 e.ID,
			CreatedAt:          e.CreatedAt.Format(time.RFC3339Nano),
			VerificationStatus: e.VerificationStatus,
			MatchKey:           matchKey,
		})
	}

	decisions, err := s.Store.ListMergeDecisionsForRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("list merge decisions: %w", err)
	}
	for _, d := range decisions {
		if d.CompanyProspectID != companyProspectID {
			continue
		}
		switch d.DecisionType {
		case corestore.MergeDecisionKeepSeparate:
			g.KeepSeparate(d.LeftExecutiveID, d.RightExecutiveID)
		case corestore.MergeDecisionMarkSame:
			_ = g.Union(d.LeftExecutiveID, d.RightExecutiveID)
		}
	}
	return g, nil
}

// ExportRunPack builds the deterministic export archive for a run.
func (s *Service) ExportRunPack(ctx context.Context, tenant, runID string) (*exportpack.Pack, error) {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return nil, err
	}
	return exportpack.Build(ctx, s.Store, tenant, runID)
}

// BuildEvidenceBundle builds the deterministic evidence archive for a run.
func (s *Service) BuildEvidenceBundle(ctx context.Context, tenant, runID string) (*evidencebundle.Bundle, error) {
	run, err := s.Store.GetRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := requireTenant(tenant, run.Tenant); err != nil {
		return nil, err
	}
	return evidencebundle.Build(ctx, s.Store, tenant, runID)
}
