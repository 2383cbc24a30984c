// Package extract turns acquired source bytes into (candidate_name, snippet)
// pairs. Strategy is dispatched by mime type and known host: a structural
// strategy for Wikipedia-like sources, a generic HTML heuristic otherwise,
// plain-text extraction for PDFs, and a pass-through schema validator for
// provider/LLM JSON envelopes.
package extract

import (
	"strings"
)

// Candidate is one extracted (name, snippet) pair with its originating
// strategy recorded for evidence provenance.
type Candidate struct {
	Name       string
	Snippet    string
	Strategy   string
	Confidence float64
}

// Extract dispatches on mimeType and host and never panics or errors on
// malformed/empty input — it produces zero candidates instead.
func Extract(mimeType, host string, raw []byte) []Candidate {
	normalized := normalizeText(raw)
	if len(normalized) == 0 {
		return nil
	}

	switch {
	case isWikiHost(host):
		return extractWiki(normalized)
	case mimeType == "application/pdf":
		return extractPDFText(normalized)
	case strings.HasPrefix(mimeType, "text/html"), mimeType == "":
		return extractGenericHTML(normalized)
	case mimeType == "application/json":
		// provider_json/llm_json: no structural extraction, evidence
		// projection happens directly against the validated payload in
		// the discovery package. Extract is a no-op here by contract.
		return nil
	default:
		return extractGenericHTML(normalized)
	}
}

// normalizeText trims and canonicalizes line endings so downstream
// strategies operate on consistent input regardless of source OS.
func normalizeText(raw []byte) string {
	s := strings.ReplaceAll(string(raw), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

func isWikiHost(host string) bool {
	h := strings.ToLower(host)
	return strings.Contains(h, "wikipedia.org") || strings.Contains(h, "wikidata.org")
}
