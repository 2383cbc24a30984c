// Package dedupe implements name/URL canonicalization and the merge rule
// that keeps exactly one canonical prospect per distinct company within a
// run.
package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/urlkey"
)

// legalSuffixes are stripped from the end of a normalized name, longest
// first so multi-word suffixes (e.g. "co") don't clip inside another token.
var legalSuffixes = []string{"gmbh", "corp", "llc", "ltd", "plc", "inc", "bv", "sa", "ag", "co"}

// NormalizeName lower-cases, strips a trailing legal-entity suffix, and
// collapses whitespace.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".")
	for _, suffix := range legalSuffixes {
		s = strings.TrimSuffix(s, " "+suffix)
		s = strings.TrimSuffix(s, "."+suffix)
	}
	return strings.TrimSpace(s)
}

// NormalizeWebsite canonicalizes a website URL via urlkey and returns its
// host, used for cross-prospect host matching.
func NormalizeWebsite(raw string) (canonical, host string, err error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", nil
	}
	canonical, err = urlkey.Canonicalize(raw, "https")
	if err != nil {
		return "", "", err
	}
	return canonical, urlkey.Host(canonical), nil
}

// Resolver finds or merges canonical prospects for a run.
type Resolver struct {
	store *corestore.Store
}

// New builds a Resolver over store.
func New(store *corestore.Store) *Resolver {
	return &Resolver{store: store}
}

// MergeOutcome describes whether a candidate became a new canonical
// prospect or merged into an existing one.
type MergeOutcome struct {
	ProspectID string
	Created    bool
	MergedInto string // non-empty when Created is false
}

// ResolveCompany finds an existing canonical prospect by normalized name or
// canonical host; if found, merges evidence and monotonically raises
// evidence_score without touching manual fields. If not found, inserts a
// new canonical prospect.
func (r *Resolver) ResolveCompany(ctx context.Context, tenant, runID string, p *corestore.Prospect, newEvidenceScore float64) (*MergeOutcome, error) {
	nameNorm := NormalizeName(p.NameRaw)
	p.NameNormalized = nameNorm

	canonicalURL, host, err := NormalizeWebsite(p.WebsiteURL)
	if err != nil {
		return nil, fmt.Errorf("normalize website: %w", err)
	}
	p.WebsiteURL = canonicalURL

	existing, err := r.store.FindProspectByName(ctx, tenant, runID, nameNorm)
	if err != nil {
		return nil, fmt.Errorf("find prospect by name: %w", err)
	}
	if existing == nil && host != "" {
		existing, err = r.store.FindProspectByHost(ctx, tenant, runID, host)
		if err != nil {
			return nil, fmt.Errorf("find prospect by host: %w", err)
		}
	}

	if existing == nil {
		p.ID = p.ID // caller-assigned id
		p.NameNormalized = nameNorm
		p.EvidenceScore = newEvidenceScore
		if err := r.store.InsertProspect(ctx, p); err != nil {
			return nil, fmt.Errorf("insert canonical prospect: %w", err)
		}
		return &MergeOutcome{ProspectID: p.ID, Created: true}, nil
	}

	merged := math.Max(existing.EvidenceScore, newEvidenceScore)
	update := corestore.ProspectUpdate{EvidenceScore: &merged}
	if err := r.store.UpdateProspect(ctx, tenant, existing.ID, update); err != nil {
		return nil, fmt.Errorf("update merged prospect: %w", err)
	}
	return &MergeOutcome{ProspectID: existing.ID, Created: false, MergedInto: existing.ID}, nil
}

// DedupeSourceDocument checks whether a freshly computed content_hash
// already has a canonical document in this run. If so, the caller should
// persist the new row as a non-canonical duplicate: processed,
// meta.deduped=true, content_hash left NULL, CanonicalSourceID set.
func (r *Resolver) DedupeSourceDocument(ctx context.Context, tenant, runID, contentHash string) (*corestore.SourceDocument, error) {
	return r.store.FindByContentHash(ctx, tenant, runID, contentHash)
}

// MarkDuplicate applies the duplicate-row shape described in DedupeSourceDocument.
func (r *Resolver) MarkDuplicate(ctx context.Context, tenant, docID, canonicalID string) error {
	meta := `{"fetch_info":{"deduped":true}}`
	clearedHash := &sql.NullString{}
	canonical := sql.NullString{String: canonicalID, Valid: true}
	u := corestore.DocumentUpdate{
		Status:            corestore.DocStatusProcessed,
		ContentHash:       clearedHash,
		CanonicalSourceID: &canonical,
		MetaJSON:          &meta,
	}
	if err := r.store.UpdateSourceDocument(ctx, tenant, docID, u); err != nil {
		return fmt.Errorf("mark duplicate document: %w", err)
	}
	return nil
}
