package discovery

import "context"

// DeterministicProvider returns a fixed payload regardless of request
// content. Used by proofs and fast local runs where external calls would
// make test output nondeterministic.
type DeterministicProvider struct {
	Fixture CompanyDiscoveryV1
}

// NewDeterministicProvider builds a provider returning a small, stable
// fixture of plausible companies for the given mandate.
func NewDeterministicProvider() *DeterministicProvider {
	return &DeterministicProvider{
		Fixture: CompanyDiscoveryV1{
			Provider: "deterministic",
			Model:    "fixture-v1",
			Companies: []CompanyCandidate{
				{
					Name:        "Northbridge Materials Group",
					WebsiteURL:  "https://northbridgematerials.example",
					HQCountry:   "US",
					HQCity:      "Pittsburgh",
					Sector:      "industrials",
					Subsector:   "specialty materials",
					Description: "Mid-cap specialty materials manufacturer.",
					Confidence:  0.9,
					Evidence:    []EvidenceItem{{SourceName: "deterministic_fixture"}},
				},
				{
					Name:        "Meridian Process Controls",
					WebsiteURL:  "https://meridianprocess.example",
					HQCountry:   "US",
					HQCity:      "Cleveland",
					Sector:      "industrials",
					Subsector:   "process automation",
					Description: "Process control instrumentation vendor.",
					Confidence:  0.85,
					Evidence:    []EvidenceItem{{SourceName: "deterministic_fixture"}},
				},
			},
		},
	}
}

func (p *DeterministicProvider) Key() string { return "deterministic" }

func (p *DeterministicProvider) ValidateConfig(allowMock bool) error { return nil }

func (p *DeterministicProvider) Run(ctx context.Context, tenant, runID string, req Request) (Result, error) {
	payload := p.Fixture
	payload.RunContext = map[string]any{"tenant": tenant, "run_id": runID, "mandate": req.Mandate}
	SortCompanies(payload.Companies)
	return Result{
		Payload:    payload,
		Provider:   p.Key(),
		Model:      payload.Model,
		Version:    "v1",
		SourceType: "provider_json",
	}, nil
}
