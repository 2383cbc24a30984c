package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher() *Fetcher {
	return New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestFetchSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, false, Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, false, Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected a retry to succeed on the second attempt, got %d attempts", res.Attempts)
	}
}

func TestFetchDoesNotRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL, false, Options{MaxAttempts: 3})
	if err == nil {
		t.Fatal("expected a terminal error for 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable status, got %d", calls)
	}
}

func TestFetchEnforcesMaxBodyBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL, false, Options{MaxBodyBytes: 100, MaxAttempts: 1})
	if err == nil {
		t.Fatal("expected an error when the response exceeds max_body_bytes")
	}
}

func TestFetchHonorsRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL+"/private", true, Options{RespectRobots: true, MaxAttempts: 1})
	if err == nil {
		t.Fatal("expected robots.txt disallow to block the fetch")
	}
}

func TestBackoffDelayGrowsExponentiallyAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	max := 40 * time.Millisecond

	d1 := BackoffDelay(1, base, max)
	d2 := BackoffDelay(2, base, max)
	d3 := BackoffDelay(10, base, max)

	if d1 < base || d1 > base*2 {
		t.Fatalf("expected first delay near base, got %v", d1)
	}
	if d2 <= d1 {
		t.Fatalf("expected exponential growth, got %v then %v", d1, d2)
	}
	if d3 > max+max/10+time.Millisecond {
		t.Fatalf("expected the delay to be capped near max, got %v", d3)
	}
}

func TestShouldRetryStatus(t *testing.T) {
	cases := map[int]bool{0: true, 500: true, 503: true, 408: true, 429: true, 404: false, 401: false, 200: false}
	for status, want := range cases {
		if got := ShouldRetryStatus(status); got != want {
			t.Errorf("ShouldRetryStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
