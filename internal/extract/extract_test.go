package extract

import "testing"

func TestExtractEmptyInputYieldsNoCandidates(t *testing.T) {
	if got := Extract("text/html", "example.com", nil); got != nil {
		t.Fatalf("expected nil candidates for empty input, got %v", got)
	}
}

func TestExtractGenericHTMLPrefersTableAndListCandidates(t *testing.T) {
	html := `<html><head><title>Directory</title></head><body>
		<nav>skip this nav link</nav>
		<table><tr><td>Acme Corp</td><td>$4.2 million</td></tr></table>
		<ul><li>Meridian Process Controls</li></ul>
		<script>var x = 1;</script>
	</body></html>`

	candidates := Extract("text/html", "example.com", []byte(html))
	names := make(map[string]bool)
	for _, c := range candidates {
		names[c.Name] = true
	}
	if !names["Acme Corp"] {
		t.Errorf("expected to extract the table's first column, got %+v", candidates)
	}
	if !names["Meridian Process Controls"] {
		t.Errorf("expected to extract the list item, got %+v", candidates)
	}
	if names["$4.2 million"] {
		t.Errorf("expected a financial token to be rejected, got %+v", candidates)
	}
	if names["skip this nav link"] {
		t.Errorf("expected nav text to be skipped entirely, got %+v", candidates)
	}
}

func TestExtractJSONMimeTypeIsNoOp(t *testing.T) {
	candidates := Extract("application/json", "example.com", []byte(`{"companies":[{"name":"Acme"}]}`))
	if candidates != nil {
		t.Fatalf("expected no structural extraction for provider/llm json, got %v", candidates)
	}
}

func TestExtractDispatchesToWikiStrategyByHost(t *testing.T) {
	candidates := Extract("text/html", "en.wikipedia.org", []byte(`<html><body><ul><li>Acme Corp</li></ul></body></html>`))
	if len(candidates) == 0 {
		t.Fatal("expected the wiki fallback list strategy to extract the list item")
	}
	for _, c := range candidates {
		if c.Strategy != "wiki_fallback_list" {
			t.Errorf("expected a wiki strategy for a wikipedia host, got %q", c.Strategy)
		}
	}
}

func TestAcceptCandidateRejectsIconAndOverlongText(t *testing.T) {
	if acceptCandidate("»", "") {
		t.Error("expected an icon token to be rejected")
	}
	long := make([]byte, maxCandidateLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if acceptCandidate(string(long), "") {
		t.Error("expected an overlong candidate to be rejected")
	}
}
