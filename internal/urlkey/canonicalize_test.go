package urlkey

import "testing"

func TestCanonicalize_EquivalentForms(t *testing.T) {
	t.Parallel()

	want := "https://example.com/about"
	forms := []string{
		"HTTPS://EXAMPLE.COM/about",
		"https://example.com:443/about",
		"https://example.com/about/",
		"https://example.com//about",
		"https://example.com/about?utm_source=x",
		"  https://example.com/about  ",
	}

	for _, raw := range forms {
		got, err := Canonicalize(raw, "https")
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", raw, err)
		}
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCanonicalize_BareHost(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("example.com/path", "http")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "http://example.com/path"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalize_Root(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("http://example.com", "http")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "http://example.com/"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalize_NonDefaultPortKept(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("http://example.com:8080/x", "http")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "http://example.com:8080/x"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalize_Empty(t *testing.T) {
	t.Parallel()

	_, err := Canonicalize("   ", "http")
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	var invalid *ErrInvalidURL
	if !asInvalidURL(err, &invalid) {
		t.Fatalf("expected *ErrInvalidURL, got %T", err)
	}
	if invalid.Reason != "empty_url" {
		t.Errorf("reason = %q, want empty_url", invalid.Reason)
	}
}

func TestCanonicalize_InvalidHost(t *testing.T) {
	t.Parallel()

	_, err := Canonicalize("http:///path", "http")
	if err == nil {
		t.Fatal("expected error for missing host")
	}
}

func asInvalidURL(err error, target **ErrInvalidURL) bool {
	e, ok := err.(*ErrInvalidURL)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestHost(t *testing.T) {
	t.Parallel()

	key, err := Canonicalize("https://Example.com/about", "https")
	if err != nil {
		t.Fatal(err)
	}
	if got := Host(key); got != "example.com" {
		t.Errorf("Host(%q) = %q, want example.com", key, got)
	}
}
