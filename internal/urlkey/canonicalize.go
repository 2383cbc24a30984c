// Package urlkey normalizes URLs to a stable deduping key.
package urlkey

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL wraps the reason a URL could not be canonicalized.
type ErrInvalidURL struct {
	Reason string
	Raw    string
}

func (e *ErrInvalidURL) Error() string {
	return fmt.Sprintf("invalid_url: %s (%q)", e.Reason, e.Raw)
}

var repeatedSlashes = regexp.MustCompile(`/+`)

// Canonicalize normalizes raw into a deterministic deduping key:
//   - strips whitespace
//   - infers scheme/host for bare "host/path" input using defaultScheme
//   - lower-cases scheme and host
//   - drops query, params, and fragment
//   - drops default ports (80 for http, 443 for https)
//   - collapses repeated slashes
//   - strips a trailing slash, except for the root path "/"
func Canonicalize(raw, defaultScheme string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ErrInvalidURL{Reason: "empty_url", Raw: raw}
	}
	if defaultScheme == "" {
		defaultScheme = "http"
	}

	parsed, err := url.Parse(text)
	if err != nil {
		return "", &ErrInvalidURL{Reason: "parse_error: " + err.Error(), Raw: raw}
	}

	// Bare host/path input ("example.com/about") has neither scheme nor host;
	// url.Parse treats the whole thing as an opaque path in that case.
	if parsed.Scheme == "" && parsed.Host == "" && parsed.Path != "" {
		parsed, err = url.Parse(defaultScheme + "://" + text)
		if err != nil {
			return "", &ErrInvalidURL{Reason: "parse_error: " + err.Error(), Raw: raw}
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = defaultScheme
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", &ErrInvalidURL{Reason: "invalid_host", Raw: raw}
	}

	netloc := host
	if port := parsed.Port(); port != "" {
		if !((scheme == "http" && port == "80") || (scheme == "https" && port == "443")) {
			netloc = host + ":" + port
		}
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	path = repeatedSlashes.ReplaceAllString(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	out := url.URL{Scheme: scheme, Host: netloc, Path: path}
	return out.String(), nil
}

// Host returns the lower-cased host component of a canonical key, used by
// the canonicalizer (module G) to match prospects on shared domain.
func Host(canonicalKey string) string {
	parsed, err := url.Parse(canonicalKey)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
