package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// SearchAPIProvider calls an external company-search API, authenticated via
// OAuth2 client-credentials flow — the one concrete place in the module an
// OAuth2-gated external API call happens.
type SearchAPIProvider struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

func (p *SearchAPIProvider) Key() string { return "search_api" }

func (p *SearchAPIProvider) ValidateConfig(allowMock bool) error {
	if allowMock {
		return nil
	}
	return nil // the Gate is the single source of truth; this provider has no extra checks beyond credential presence
}

func (p *SearchAPIProvider) Run(ctx context.Context, tenant, runID string, req Request) (Result, error) {
	cfg := clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		TokenURL:     p.TokenURL,
	}
	httpClient := cfg.Client(ctx)

	query := buildSearchQuery(req)
	url := fmt.Sprintf("%s/v1/companies/search?q=%s&limit=%d", strings.TrimRight(p.BaseURL, "/"), query, clampMaxResults(req.MaxResults))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build search request: %w", err)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("search api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read search api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("search api returned %d: %s", resp.StatusCode, string(body))
	}

	var raw searchAPIResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("decode search api response: %w", err)
	}

	companies := make([]CompanyCandidate, 0, len(raw.Results))
	for _, r := range raw.Results {
		companies = append(companies, CompanyCandidate{
			Name:        r.Name,
			WebsiteURL:  r.Website,
			HQCountry:   r.Country,
			HQCity:      r.City,
			Sector:      r.Industry,
			Description: r.Summary,
			Confidence:  0.6,
			Evidence:    []EvidenceItem{{SourceName: "search_api", SourceURL: r.Website}},
		})
	}
	SortCompanies(companies)

	payload := CompanyDiscoveryV1{
		Provider:   p.Key(),
		RunContext: map[string]any{"tenant": tenant, "run_id": runID, "query": query},
		Companies:  companies,
	}
	return Result{
		Payload:      payload,
		Provider:     p.Key(),
		Version:      "v1",
		SourceType:   "provider_json",
		Envelope:     body,
	}, nil
}

func buildSearchQuery(req Request) string {
	parts := []string{req.Mandate}
	if req.Sector != "" {
		parts = append(parts, req.Sector)
	}
	if req.RegionScope != "" {
		parts = append(parts, req.RegionScope)
	}
	return strings.Join(parts, " ")
}

type searchAPIResponse struct {
	Results []struct {
		Name     string `json:"name"`
		Website  string `json:"website"`
		Country  string `json:"country"`
		City     string `json:"city"`
		Industry string `json:"industry"`
		Summary  string `json:"summary"`
	} `json:"results"`
}
