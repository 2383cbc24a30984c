package discovery

import (
	"context"
	"testing"
)

func TestCanonicalHashStableUnderFieldReordering(t *testing.T) {
	req1 := Request{Mandate: " Find SaaS targets ", Sector: "Software", RegionScope: "US", Extra: map[string]any{"b": 2, "a": 1}}
	req2 := Request{Mandate: "Find SaaS targets", Sector: "software", RegionScope: "us", Extra: map[string]any{"a": 1, "b": 2}}

	h1, err := CanonicalHash("seed_list", req1)
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := CanonicalHash("seed_list", req2)
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected whitespace/case-insensitive normalization to hash identically, got %s vs %s", h1, h2)
	}
}

func TestCanonicalHashDiffersAcrossProviders(t *testing.T) {
	req := Request{Mandate: "m"}
	h1, err := CanonicalHash("seed_list", req)
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := CanonicalHash("deterministic", req)
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected different provider keys to hash differently for the same request")
	}
}

func TestRegistryGetUnknownProvider(t *testing.T) {
	r := NewRegistry(&Gate{MockExternal: true})
	if _, err := r.Get("nonexistent"); err == nil {
		t.Fatal("expected an error resolving an unregistered provider")
	}
}

func TestRegistryGetBlocksUngatedCredentialsWhenNotMocked(t *testing.T) {
	r := NewRegistry(&Gate{MockExternal: false, ExternalEnabled: true})
	r.Register(&SearchAPIProvider{})
	if _, err := r.Get("search_api"); err == nil {
		t.Fatal("expected missing credentials to block the real search_api provider")
	}
}

func TestRegistryGetAllowsSeedListWithoutGating(t *testing.T) {
	r := NewRegistry(&Gate{MockExternal: false, ExternalEnabled: false})
	r.Register(&SeedListProvider{})
	if _, err := r.Get("seed_list"); err != nil {
		t.Fatalf("expected seed_list to bypass the external gate, got %v", err)
	}
}

func TestSeedListProviderParsesCSVAndSortsCompanies(t *testing.T) {
	p := &SeedListProvider{}
	req := Request{SeedCSV: "name,website_url,confidence\nZeta Inc,https://zeta.com,0.9\nAcme Corp,https://acme.com,\n"}
	result, err := p.Run(context.Background(), "acme", "run-1", req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Payload.Companies) != 2 {
		t.Fatalf("expected 2 companies, got %d", len(result.Payload.Companies))
	}
	if result.Payload.Companies[0].Name != "Acme Corp" {
		t.Fatalf("expected case-insensitive sort to put Acme first, got %s", result.Payload.Companies[0].Name)
	}
	if result.Payload.Companies[1].Confidence != 0.9 {
		t.Fatalf("expected parsed confidence 0.9, got %v", result.Payload.Companies[1].Confidence)
	}
}

func TestSeedListProviderEmptyCSVYieldsNoCompanies(t *testing.T) {
	p := &SeedListProvider{}
	result, err := p.Run(context.Background(), "acme", "run-1", Request{SeedCSV: ""})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Payload.Companies) != 0 {
		t.Fatalf("expected no companies from an empty seed csv, got %d", len(result.Payload.Companies))
	}
}
