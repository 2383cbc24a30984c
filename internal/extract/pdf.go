package extract

import (
	"strings"
)

// extractPDFText handles the already-decoded plain text of a PDF (decoding
// itself happens upstream — via the sandboxed extractor for untrusted PDFs,
// or a direct text layer read for trusted uploads) and extracts one
// candidate per non-empty line, deterministically and without relying on
// layout heuristics that vary across PDF producers.
func extractPDFText(normalized string) []Candidate {
	lines := strings.Split(normalized, "\n")
	var out []Candidate
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if acceptCandidate(line, "") {
			out = append(out, Candidate{Name: line, Snippet: line, Strategy: "pdf_text_line"})
		}
	}
	return out
}
