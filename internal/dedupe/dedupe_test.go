package dedupe

import (
	"context"
	"database/sql"
	"testing"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/google/uuid"
)

func newTestResolver(t *testing.T) (*Resolver, *corestore.Store) {
	t.Helper()
	store, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
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

func TestNormalizeNameStripsLegalSuffixAndWhitespace(t *testing.T) {
	cases := map[string]string{
		"  Acme   Corp  ": "acme",
		"Acme Inc.":       "acme",
		"Widgets GmbH":    "widgets",
		"Plain Name":      "plain name",
	}
	for input, want := range cases {
		if got := NormalizeName(input); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeWebsiteEmptyIsNoop(t *testing.T) {
	canonical, host, err := NormalizeWebsite("")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if canonical != "" || host != "" {
		t.Fatalf("expected empty canonical/host for empty input, got %q/%q", canonical, host)
	}
}

func TestResolveCompanyInsertsNewCanonicalProspect(t *testing.T) {
	r, store := newTestResolver(t)
	tenant, runID := seedRun(t, store)

	p := &corestore.Prospect{ID: uuid.NewString(), Tenant: tenant, RunID: runID, NameRaw: "Acme Corp", WebsiteURL: "https://acme.com"}
	outcome, err := r.ResolveCompany(context.Background(), tenant, runID, p, 0.5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected a newly created prospect, got %+v", outcome)
	}
	if p.NameNormalized != "acme" {
		t.Fatalf("expected normalized name acme, got %q", p.NameNormalized)
	}
}

func TestResolveCompanyMergesOnMatchingName(t *testing.T) {
	r, store := newTestResolver(t)
	tenant, runID := seedRun(t, store)

	first := &corestore.Prospect{ID: uuid.NewString(), Tenant: tenant, RunID: runID, NameRaw: "Acme Corp", WebsiteURL: "https://acme.com"}
	if _, err := r.ResolveCompany(context.Background(), tenant, runID, first, 0.4); err != nil {
		t.Fatalf("resolve first: %v", err)
	}

	second := &corestore.Prospect{ID: uuid.NewString(), Tenant: tenant, RunID: runID, NameRaw: "ACME Corp", WebsiteURL: "https://acme.com/other"}
	outcome, err := r.ResolveCompany(context.Background(), tenant, runID, second, 0.9)
	if err != nil {
		t.Fatalf("resolve second: %v", err)
	}
	if outcome.Created {
		t.Fatalf("expected a merge into the existing prospect, got %+v", outcome)
	}
	if outcome.ProspectID != first.ID {
		t.Fatalf("expected merge into %s, got %s", first.ID, outcome.ProspectID)
	}

	merged, err := store.GetProspect(context.Background(), tenant, first.ID)
	if err != nil {
		t.Fatalf("get merged: %v", err)
	}
	if merged.EvidenceScore != 0.9 {
		t.Fatalf("expected evidence_score raised to max(0.4, 0.9)=0.9, got %v", merged.EvidenceScore)
	}
}

func TestDedupeAndMarkDuplicateSourceDocument(t *testing.T) {
	r, store := newTestResolver(t)
	tenant, runID := seedRun(t, store)

	canonical := &corestore.SourceDocument{
		ID: uuid.NewString(), Tenant: tenant, RunID: runID, SourceType: corestore.SourceTypeURL,
		URLRaw: "https://acme.com/about", ContentHash: sql.NullString{String: "deadbeef", Valid: true},
	}
	if err := store.InsertSourceDocument(context.Background(), canonical); err != nil {
		t.Fatalf("insert canonical doc: %v", err)
	}

	found, err := r.DedupeSourceDocument(context.Background(), tenant, runID, "deadbeef")
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if found == nil || found.ID != canonical.ID {
		t.Fatalf("expected to find canonical doc by content hash, got %+v", found)
	}

	dup := &corestore.SourceDocument{ID: uuid.NewString(), Tenant: tenant, RunID: runID, SourceType: corestore.SourceTypeURL, URLRaw: "https://acme.com/about?ref=1"}
	if err := store.InsertSourceDocument(context.Background(), dup); err != nil {
		t.Fatalf("insert dup doc: %v", err)
	}
	if err := r.MarkDuplicate(context.Background(), tenant, dup.ID, canonical.ID); err != nil {
		t.Fatalf("mark duplicate: %v", err)
	}

	reloaded, err := store.GetSourceDocument(context.Background(), tenant, dup.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != corestore.DocStatusProcessed {
		t.Fatalf("expected processed status, got %s", reloaded.Status)
	}
	if !reloaded.CanonicalSourceID.Valid || reloaded.CanonicalSourceID.String != canonical.ID {
		t.Fatalf("expected canonical_source_id %s, got %+v", canonical.ID, reloaded.CanonicalSourceID)
	}
}
