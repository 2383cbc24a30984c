package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// skipTags are never traversed for candidate text: navigation chrome,
// scripts, and styling never contain prospect names.
var skipTags = map[string]bool{
	"nav": true, "footer": true, "header": true, "script": true, "style": true,
	"noscript": true, "svg": true, "button": true, "form": true, "aside": true,
}

var financialTokenRe = regexp.MustCompile(`(?i)^\$?\d[\d,.]*\s*(million|billion|m|bn|%|usd|eur|gbp)?$`)
var iconTokenRe = regexp.MustCompile(`^[^\w\s]{1,3}$`)

const (
	maxCandidateLen = 120
	minCandidateLen = 2
)

// extractGenericHTML strips chrome, then prefers table first-column cells
// and list items as candidate sources, rejecting navigation text, icon
// tokens, financial-value tokens, page titles, and overlong strings.
func extractGenericHTML(normalized string) []Candidate {
	doc, err := html.Parse(strings.NewReader(normalized))
	if err != nil {
		return nil
	}

	pageTitle := extractTitle(doc)
	var out []Candidate

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.ElementNode && n.Data == "table" {
			out = append(out, extractTableFirstColumn(n)...)
			return // table contents already consumed
		}
		if n.Type == html.ElementNode && n.Data == "li" {
			if text := textContent(n); acceptCandidate(text, pageTitle) {
				out = append(out, Candidate{Name: strings.TrimSpace(text), Snippet: strings.TrimSpace(text), Strategy: "generic_html_list"})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func extractTableFirstColumn(table *html.Node) []Candidate {
	var out []Candidate
	var walkRows func(n *html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					text := textContent(c)
					if acceptCandidate(text, "") {
						out = append(out, Candidate{Name: strings.TrimSpace(text), Snippet: strings.TrimSpace(text), Strategy: "generic_html_table"})
					}
					break // first column only
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return out
}

func extractTitle(doc *html.Node) string {
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(collapseSpaces(sb.String()))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func acceptCandidate(text, pageTitle string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minCandidateLen || len(text) > maxCandidateLen {
		return false
	}
	if pageTitle != "" && strings.EqualFold(text, pageTitle) {
		return false
	}
	if financialTokenRe.MatchString(text) {
		return false
	}
	if iconTokenRe.MatchString(text) {
		return false
	}
	if !containsLetter(text) {
		return false
	}
	return true
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
