package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// extractWiki uses a structural strategy for Wikipedia-like sources:
// wikitables first, then section-specific lists, falling back to every
// <ul> list in the document.
func extractWiki(normalized string) []Candidate {
	doc, err := html.Parse(strings.NewReader(normalized))
	if err != nil {
		return nil
	}

	if tables := wikitables(doc); len(tables) > 0 {
		return tables
	}
	if sectioned := sectionLists(doc); len(sectioned) > 0 {
		return sectioned
	}
	return mainContentLists(doc)
}

func wikitables(doc *html.Node) []Candidate {
	var out []Candidate
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" && hasClass(n, "wikitable") {
			out = append(out, extractTableFirstColumn(n)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return relabel(out, "wiki_table")
}

// sectionLists looks for lists immediately following headings whose text
// hints at a roster (e.g. "Notable people", "Executives", "Leadership").
var rosterHeadingHints = []string{"notable", "executive", "leadership", "board", "management", "people", "officers"}

func sectionLists(doc *html.Node) []Candidate {
	var out []Candidate
	var headingIsRoster bool

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isHeading(n.Data) {
			text := strings.ToLower(textContent(n))
			headingIsRoster = containsAny(text, rosterHeadingHints)
		}
		if n.Type == html.ElementNode && n.Data == "ul" && headingIsRoster {
			out = append(out, listItemCandidates(n, "wiki_section_list")...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func mainContentLists(doc *html.Node) []Candidate {
	var out []Candidate
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "ul" {
			out = append(out, listItemCandidates(n, "wiki_fallback_list")...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func listItemCandidates(ul *html.Node, strategy string) []Candidate {
	var out []Candidate
	for c := ul.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			text := textContent(c)
			if acceptCandidate(text, "") {
				out = append(out, Candidate{Name: strings.TrimSpace(text), Snippet: strings.TrimSpace(text), Strategy: strategy})
			}
		}
	}
	return out
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4":
		return true
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, class) {
			return true
		}
	}
	return false
}

func relabel(cands []Candidate, strategy string) []Candidate {
	for i := range cands {
		cands[i].Strategy = strategy
	}
	return cands
}
