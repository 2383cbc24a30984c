package runstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/extract"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/urlkey"
)

// AcquireURLsInput is the input to the acquire_urls step: the set of
// already-registered url-type source documents waiting to be fetched.
type AcquireURLsInput struct {
	Tenant string
	RunID  string
}

// AcquireURLsOutput reports how many url sources are pending fetch.
type AcquireURLsOutput struct {
	PendingURLCount int
}

// AcquireURLsActivity confirms every `url` source document registered via
// AddSource is in a fetchable state, enqueuing fetch_url_source jobs in the
// durable queue for the next step to drain.
func (a *Activities) AcquireURLsActivity(ctx context.Context, in AcquireURLsInput) (AcquireURLsOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return AcquireURLsOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "acquire_urls", hash); err != nil {
		return AcquireURLsOutput{}, err
	} else if reused {
		var out AcquireURLsOutput
		return out, decodeReused(prior, &out)
	}

	docs, err := a.Store.ListSourceDocumentsForRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "acquire_urls", err)
		return AcquireURLsOutput{}, err
	}

	pending := 0
	for _, d := range docs {
		if d.SourceType != corestore.SourceTypeURL || d.Status != corestore.DocStatusNew {
			continue
		}
		pending++
		if _, err := a.Queue.Enqueue(ctx, in.Tenant, in.RunID, "fetch_url_source",
			map[string]any{"source_document_id": d.ID}, d.MaxAttempts); err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "acquire_urls", err)
			return AcquireURLsOutput{}, fmt.Errorf("enqueue fetch for %s: %w", d.ID, err)
		}
	}

	out := AcquireURLsOutput{PendingURLCount: pending}
	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "acquire_urls", out)
}

// FetchURLSourcesInput is the input to the fetch_url_sources step.
type FetchURLSourcesInput struct {
	Tenant string
	RunID  string
}

// FetchURLSourcesOutput reports how many sources were fetched and how many
// failed terminally.
type FetchURLSourcesOutput struct {
	Fetched int
	Failed  int
}

// FetchURLSourcesActivity drains every queued fetch_url_source job, fetching
// each source document's URL and recording the result.
func (a *Activities) FetchURLSourcesActivity(ctx context.Context, in FetchURLSourcesInput) (FetchURLSourcesOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return FetchURLSourcesOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "fetch_url_sources", hash); err != nil {
		return FetchURLSourcesOutput{}, err
	} else if reused {
		var out FetchURLSourcesOutput
		return out, decodeReused(prior, &out)
	}

	var out FetchURLSourcesOutput
	for {
		job, err := a.Queue.ClaimNext(ctx, "runstate-fetch", "fetch_url_source", 5*time.Minute)
		if err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "fetch_url_sources", err)
			return out, err
		}
		if job == nil {
			break
		}

		var params struct {
			SourceDocumentID string `json:"source_document_id"`
		}
		if err := decodeReused(job.ParamsJSON, &params); err != nil {
			_ = a.Queue.Fail(ctx, job.ID, err)
			out.Failed++
			continue
		}

		doc, err := a.Store.GetSourceDocument(ctx, in.Tenant, params.SourceDocumentID)
		if err != nil {
			_ = a.Queue.Fail(ctx, job.ID, err)
			out.Failed++
			continue
		}

		result, fetchErr := a.Fetcher.Fetch(ctx, doc.URLRaw, true, fetcher.Options{RespectRobots: true})
		if fetchErr != nil {
			status := corestore.DocStatusFailed
			msg := fetchErr.Error()
			_ = a.Store.UpdateSourceDocument(ctx, in.Tenant, doc.ID, corestore.DocumentUpdate{
				Status: status, HTTPErrorMessage: &msg, AttemptInc: true,
			})
			_ = a.Queue.Fail(ctx, job.ID, fetchErr)
			out.Failed++
			continue
		}

		finalURL := result.FinalURL
		status := corestore.DocStatusFetched
		if err := a.Store.UpdateSourceDocument(ctx, in.Tenant, doc.ID, corestore.DocumentUpdate{
			Status:            status,
			ContentBytes:      result.Body,
			HTTPFinalURL:      &finalURL,
			CanonicalFinalURL: &finalURL,
			AttemptInc:        true,
		}); err != nil {
			_ = a.Queue.Fail(ctx, job.ID, err)
			out.Failed++
			continue
		}

		if err := a.Queue.Complete(ctx, job.ID, map[string]any{"status_code": result.StatusCode}); err != nil {
			return out, err
		}
		out.Fetched++
	}

	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "fetch_url_sources", out)
}

// ExtractSourcesInput is the input to the extract_sources step.
type ExtractSourcesInput struct {
	Tenant string
	RunID  string
}

// ExtractSourcesOutput reports how many candidate names were produced.
type ExtractSourcesOutput struct {
	CandidatesExtracted int
}

// ExtractSourcesActivity runs the extraction strategy over every fetched
// document's content and marks it processed.
func (a *Activities) ExtractSourcesActivity(ctx context.Context, in ExtractSourcesInput) (ExtractSourcesOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return ExtractSourcesOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", hash); err != nil {
		return ExtractSourcesOutput{}, err
	} else if reused {
		var out ExtractSourcesOutput
		return out, decodeReused(prior, &out)
	}

	run, err := a.Store.GetRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", err)
		return ExtractSourcesOutput{}, err
	}

	docs, err := a.Store.ListSourceDocumentsForRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", err)
		return ExtractSourcesOutput{}, err
	}

	total := 0
	for _, d := range docs {
		if d.Status != corestore.DocStatusFetched {
			continue
		}
		host := hostOf(d)
		candidates := extract.Extract(d.MimeType, host, d.ContentBytes)
		for _, c := range candidates {
			prospect := &corestore.Prospect{
				ID:           uuid.NewString(),
				Tenant:       in.Tenant,
				RunID:        in.RunID,
				Mandate:      run.Mandate,
				NameRaw:      c.Name,
				DiscoveredBy: corestore.DiscoveredInternal,
			}
			outcome, err := a.Dedupe.ResolveCompany(ctx, in.Tenant, in.RunID, prospect, c.Confidence)
			if err != nil {
				_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", err)
				return ExtractSourcesOutput{}, fmt.Errorf("resolve extracted candidate %q: %w", c.Name, err)
			}
			evidence := &corestore.ProspectEvidence{
				ID:               uuid.NewString(),
				Tenant:           in.Tenant,
				ProspectID:       outcome.ProspectID,
				SourceType:       c.Strategy,
				SourceName:       host,
				SourceDocumentID: sql.NullString{String: d.ID, Valid: true},
				RawSnippet:       c.Snippet,
				EvidenceWeight:   c.Confidence,
			}
			if err := a.Store.InsertProspectEvidence(ctx, evidence); err != nil {
				_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", err)
				return ExtractSourcesOutput{}, fmt.Errorf("insert prospect evidence for %q: %w", c.Name, err)
			}
		}
		total += len(candidates)
		if err := a.Store.UpdateSourceDocument(ctx, in.Tenant, d.ID, corestore.DocumentUpdate{
			Status: corestore.DocStatusProcessed,
		}); err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", err)
			return ExtractSourcesOutput{}, err
		}
	}

	out := ExtractSourcesOutput{CandidatesExtracted: total}
	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "extract_sources", out)
}

// DedupeProspectsInput is the input to the dedupe_prospects step.
type DedupeProspectsInput struct {
	Tenant string
	RunID  string
}

// DedupeProspectsOutput reports the canonical prospect count after merging.
type DedupeProspectsOutput struct {
	CanonicalCount int
}

// DedupeProspectsActivity re-resolves every prospect in the run against the
// canonicalizer, merging duplicates and raising evidence scores.
func (a *Activities) DedupeProspectsActivity(ctx context.Context, in DedupeProspectsInput) (DedupeProspectsOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return DedupeProspectsOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "dedupe_prospects", hash); err != nil {
		return DedupeProspectsOutput{}, err
	} else if reused {
		var out DedupeProspectsOutput
		return out, decodeReused(prior, &out)
	}

	prospects, err := a.Store.ListProspectsForRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "dedupe_prospects", err)
		return DedupeProspectsOutput{}, err
	}

	merged := make(map[string]bool)
	for _, p := range prospects {
		outcome, err := a.Dedupe.ResolveCompany(ctx, in.Tenant, in.RunID, p, p.EvidenceScore)
		if err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "dedupe_prospects", err)
			return DedupeProspectsOutput{}, err
		}
		merged[outcome.ProspectID] = true
	}

	out := DedupeProspectsOutput{CanonicalCount: len(merged)}
	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "dedupe_prospects", out)
}

// EnrichCompaniesInput is the input to the enrich_companies step.
type EnrichCompaniesInput struct {
	Tenant        string
	RunID         string
	ProviderKey   string
	EnrichRequest discovery.Request
}

// EnrichCompaniesOutput reports how many enrichment calls ran vs. were reused.
type EnrichCompaniesOutput struct {
	Ran    int
	Reused int
}

// EnrichCompaniesActivity calls the configured enrichment provider once per
// canonical prospect, through the ledger's reuse/TTL logic.
func (a *Activities) EnrichCompaniesActivity(ctx context.Context, in EnrichCompaniesInput) (EnrichCompaniesOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return EnrichCompaniesOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "enrich_companies", hash); err != nil {
		return EnrichCompaniesOutput{}, err
	} else if reused {
		var out EnrichCompaniesOutput
		return out, decodeReused(prior, &out)
	}

	provider, err := a.Discovery.Get(in.ProviderKey)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "enrich_companies", err)
		return EnrichCompaniesOutput{}, err
	}

	prospects, err := a.Store.ListProspectsForRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "enrich_companies", err)
		return EnrichCompaniesOutput{}, err
	}

	var out EnrichCompaniesOutput
	for _, p := range prospects {
		result, err := a.Enrichment.RunProvider(ctx, in.Tenant, in.RunID, provider, in.EnrichRequest,
			"company_enrichment", "prospect", p.ID, false)
		if err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "enrich_companies", err)
			return out, err
		}
		if result.Skipped {
			out.Reused++
		} else {
			out.Ran++
		}
	}

	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "enrich_companies", out)
}

// ExecDiscoveryInput is the input to the exec_discovery step.
type ExecDiscoveryInput struct {
	Tenant      string
	RunID       string
	ProviderKey string
	Request     discovery.Request
}

// ExecDiscoveryOutput reports executive discovery coverage.
type ExecDiscoveryOutput struct {
	CompaniesSearched int
}

// ExecDiscoveryActivity runs executive discovery for every company prospect
// lacking it.
func (a *Activities) ExecDiscoveryActivity(ctx context.Context, in ExecDiscoveryInput) (ExecDiscoveryOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return ExecDiscoveryOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "exec_discovery", hash); err != nil {
		return ExecDiscoveryOutput{}, err
	} else if reused {
		var out ExecDiscoveryOutput
		return out, decodeReused(prior, &out)
	}

	provider, err := a.Discovery.Get(in.ProviderKey)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "exec_discovery", err)
		return ExecDiscoveryOutput{}, err
	}

	prospects, err := a.Store.ListProspectsForRun(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "exec_discovery", err)
		return ExecDiscoveryOutput{}, err
	}

	out := ExecDiscoveryOutput{}
	for _, p := range prospects {
		if !p.ExecSearchEnabled || p.ReviewStatus != corestore.ReviewStatusAccepted {
			continue
		}
		if _, err := a.Enrichment.RunProvider(ctx, in.Tenant, in.RunID, provider, in.Request,
			"executive_discovery", "prospect", p.ID, false); err != nil {
			_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "exec_discovery", err)
			return out, err
		}
		out.CompaniesSearched++
	}

	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "exec_discovery", out)
}

// FinalizeInput is the input to the finalize step.
type FinalizeInput struct {
	Tenant string
	RunID  string
}

// FinalizeOutput reports the run's terminal state.
type FinalizeOutput struct {
	Status string
}

// FinalizeActivity transitions the run to its terminal status once every
// step has run.
func (a *Activities) FinalizeActivity(ctx context.Context, in FinalizeInput) (FinalizeOutput, error) {
	hash, _, err := hashStepInput(in)
	if err != nil {
		return FinalizeOutput{}, err
	}
	if reused, prior, err := beginStep(ctx, a.Store, in.Tenant, in.RunID, "finalize", hash); err != nil {
		return FinalizeOutput{}, err
	} else if reused {
		var out FinalizeOutput
		return out, decodeReused(prior, &out)
	}

	steps, err := a.Store.ListRunSteps(ctx, in.Tenant, in.RunID)
	if err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "finalize", err)
		return FinalizeOutput{}, err
	}

	status := corestore.RunStatusSucceeded
	for _, s := range steps {
		if s.StepKey == "finalize" {
			continue
		}
		if s.Status == corestore.StepStatusFailed {
			status = corestore.RunStatusFailed
			break
		}
	}

	if err := a.Store.UpdateRunStatus(ctx, in.Tenant, in.RunID, status, "", false, true); err != nil {
		_ = failStep(ctx, a.Store, in.Tenant, in.RunID, "finalize", err)
		return FinalizeOutput{}, err
	}

	out := FinalizeOutput{Status: status}
	return out, succeedStep(ctx, a.Store, in.Tenant, in.RunID, "finalize", out)
}

func hostOf(d *corestore.SourceDocument) string {
	if d.CanonicalFinalURL == "" {
		return ""
	}
	return urlkey.Host(d.CanonicalFinalURL)
}

func decodeReused(jsonStr string, out any) error {
	if jsonStr == "" {
		return nil
	}
	return json.Unmarshal([]byte(jsonStr), out)
}
