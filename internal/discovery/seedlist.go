package discovery

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/antigravity-dev/prospector/internal/urlkey"
)

// SeedListProvider parses a user-pasted or uploaded CSV of companies. Ported
// from the original SeedListProvider._parse_csv behavior: columns are
// name, website_url, hq_country, hq_city, sector, subsector, confidence
// (header row required; confidence defaults to 0.5 when absent/unparseable).
type SeedListProvider struct{}

func (p *SeedListProvider) Key() string { return "seed_list" }

func (p *SeedListProvider) ValidateConfig(allowMock bool) error { return nil }

func (p *SeedListProvider) Run(ctx context.Context, tenant, runID string, req Request) (Result, error) {
	companies, err := parseSeedCSV(req.SeedCSV)
	if err != nil {
		return Result{}, fmt.Errorf("parse seed csv: %w", err)
	}
	SortCompanies(companies)

	payload := CompanyDiscoveryV1{
		Provider:   p.Key(),
		RunContext: map[string]any{"tenant": tenant, "run_id": runID},
		Companies:  companies,
	}
	return Result{
		Payload:      payload,
		Provider:     p.Key(),
		Version:      "v1",
		SourceType:   "provider_json",
		RawInputText: req.SeedCSV,
	}, nil
}

func parseSeedCSV(raw string) ([]CompanyCandidate, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}

	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []CompanyCandidate
	for _, row := range rows[1:] {
		name := get(row, "name")
		if name == "" {
			continue
		}
		confidence := 0.5
		if c := get(row, "confidence"); c != "" {
			if parsed, err := strconv.ParseFloat(c, 64); err == nil {
				confidence = parsed
			}
		}
		website := get(row, "website_url")
		if website != "" {
			if canon, err := urlkey.Canonicalize(website, "https"); err == nil {
				website = canon
			}
		}
		out = append(out, CompanyCandidate{
			Name:       name,
			WebsiteURL: website,
			HQCountry:  get(row, "hq_country"),
			HQCity:     get(row, "hq_city"),
			Sector:     get(row, "sector"),
			Subsector:  get(row, "subsector"),
			Confidence: confidence,
			Evidence:   []EvidenceItem{{SourceName: "seed_list_csv"}},
		})
	}
	return out, nil
}
