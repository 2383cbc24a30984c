// Package discovery implements the provider registry that fetches company
// and executive candidates from external or deterministic sources, all
// behind a single gate so nothing ever reaches the outside world by
// accident.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/prospector/internal/corerrors"
)

// EvidenceItem is one provenance snippet backing a discovered candidate.
type EvidenceItem struct {
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// CompanyCandidate is one company surfaced by a provider.
type CompanyCandidate struct {
	Name        string         `json:"name"`
	WebsiteURL  string         `json:"website_url,omitempty"`
	HQCountry   string         `json:"hq_country,omitempty"`
	HQCity      string         `json:"hq_city,omitempty"`
	Sector      string         `json:"sector,omitempty"`
	Subsector   string         `json:"subsector,omitempty"`
	Description string         `json:"description,omitempty"`
	Confidence  float64        `json:"confidence"`
	Evidence    []EvidenceItem `json:"evidence,omitempty"`
}

// CompanyDiscoveryV1 is the fixed payload schema every provider returns.
type CompanyDiscoveryV1 struct {
	Provider   string              `json:"provider"`
	Model      string              `json:"model,omitempty"`
	RunContext map[string]any      `json:"run_context,omitempty"`
	Companies  []CompanyCandidate  `json:"companies"`
}

// ExecutiveCandidate is one executive surfaced for a company prospect,
// tagged with the engine that found it so dual-engine callers (internal
// directory search vs. external provider search) can be merged downstream
// by the identity graph.
type ExecutiveCandidate struct {
	Name         string         `json:"name"`
	Title        string         `json:"title,omitempty"`
	ProfileURL   string         `json:"profile_url,omitempty"`
	LinkedInURL  string         `json:"linkedin_url,omitempty"`
	Email        string         `json:"email,omitempty"`
	Confidence   float64        `json:"confidence"`
	DiscoveredBy string         `json:"discovered_by,omitempty"` // internal or external; required when the enclosing payload mode is "both"
	Evidence     []EvidenceItem `json:"evidence,omitempty"`
}

// ExecutiveDiscoveryV1 is the payload shape run_executive_discovery accepts:
// a batch of executive candidates for one company prospect, scoped to a
// single engine (internal or external) unless Mode is "both", in which case
// every candidate must carry its own DiscoveredBy tag.
type ExecutiveDiscoveryV1 struct {
	CompanyProspectID string                `json:"company_prospect_id"`
	Mode              string                `json:"mode"` // internal, external, or both
	Executives        []ExecutiveCandidate  `json:"executives"`
}

// SortExecutives sorts candidates case-insensitively by name, mirroring
// SortCompanies so identical inputs always hash identically.
func SortExecutives(executives []ExecutiveCandidate) {
	sort.SliceStable(executives, func(i, j int) bool {
		return strings.ToLower(executives[i].Name) < strings.ToLower(executives[j].Name)
	})
}

// Request parameterizes a provider run; canonical hashing happens over
// this structure after normalization.
type Request struct {
	Mandate     string         `json:"mandate"`
	Sector      string         `json:"sector,omitempty"`
	RegionScope string         `json:"region_scope,omitempty"`
	MaxResults  int            `json:"max_results,omitempty"`
	SeedCSV     string         `json:"seed_csv,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Result mirrors the original DiscoveryProviderResult/LlmDiscoveryPayload
// envelope shape exactly so the orchestrator can store it unchanged.
type Result struct {
	Payload      CompanyDiscoveryV1
	Provider     string
	Model        string
	Version      string
	SourceType   string
	RawInputText string
	RawInputMeta map[string]any
	Envelope     []byte
	Error        error
}

// Provider is the contract every discovery source implements.
type Provider interface {
	Key() string
	ValidateConfig(allowMock bool) error
	Run(ctx context.Context, tenant, runID string, req Request) (Result, error)
}

// Registry resolves provider keys to concrete implementations.
type Registry struct {
	providers map[string]Provider
	gate      *Gate
}

// NewRegistry builds a registry gated by g.
func NewRegistry(g *Gate) *Registry {
	return &Registry{providers: make(map[string]Provider), gate: g}
}

// Register adds a provider, keyed by its own Key().
func (r *Registry) Register(p Provider) {
	r.providers[p.Key()] = p
}

// Get resolves a provider by key, checking the gate first.
func (r *Registry) Get(providerKey string) (Provider, error) {
	p, ok := r.providers[providerKey]
	if !ok {
		return nil, &corerrors.NotFoundError{Kind: "discovery_provider", ID: providerKey}
	}
	if err := r.gate.CanCall(providerKey); err != nil {
		return nil, err
	}
	if err := p.ValidateConfig(r.gate.MockExternal); err != nil {
		return nil, err
	}
	return p, nil
}

// CanonicalHash computes the content_hash of a canonicalized request: the
// provider key, the trimmed mandate, lower-cased sector and region scope,
// clamped max_results, and Extra flattened into key-sorted pairs, marshaled
// via encoding/json with deterministic field order.
func CanonicalHash(providerKey string, req Request) (string, error) {
	norm := normalizeRequest(providerKey, req)
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("marshal canonical request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalRequest is a deterministically ordered projection of Request
// suitable for stable JSON marshaling (Go map iteration order is random,
// so Extra is flattened into sorted key/value pairs).
type canonicalRequest struct {
	Provider    string              `json:"provider"`
	Mandate     string              `json:"mandate"`
	Sector      string              `json:"sector"`
	RegionScope string              `json:"region_scope"`
	MaxResults  int                 `json:"max_results"`
	SeedCSV     string              `json:"seed_csv"`
	Extra       []canonicalKV       `json:"extra"`
}

type canonicalKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func normalizeRequest(providerKey string, req Request) canonicalRequest {
	keys := make([]string, 0, len(req.Extra))
	for k := range req.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]canonicalKV, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, canonicalKV{Key: k, Value: fmt.Sprintf("%v", req.Extra[k])})
	}

	return canonicalRequest{
		Provider:    providerKey,
		Mandate:     strings.TrimSpace(req.Mandate),
		Sector:      strings.ToLower(strings.TrimSpace(req.Sector)),
		RegionScope: strings.ToLower(strings.TrimSpace(req.RegionScope)),
		MaxResults:  clampMaxResults(req.MaxResults),
		SeedCSV:     req.SeedCSV,
		Extra:       kvs,
	}
}

func clampMaxResults(n int) int {
	if n <= 0 {
		return 25
	}
	if n > 500 {
		return 500
	}
	return n
}

// SortCompanies sorts candidates case-insensitively by name, the rule every
// provider applies before hashing so identical inputs always hash
// identically.
func SortCompanies(companies []CompanyCandidate) {
	sort.SliceStable(companies, func(i, j int) bool {
		return strings.ToLower(companies[i].Name) < strings.ToLower(companies[j].Name)
	})
}
