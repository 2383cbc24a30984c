package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/prospector/internal/config"
	"github.com/antigravity-dev/prospector/internal/contentstore"
	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/dedupe"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/enrichment"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/health"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
	"github.com/antigravity-dev/prospector/internal/orchestrator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := corestore.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	content, err := contentstore.Open(store.DB())
	if err != nil {
		t.Fatalf("open content store: %v", err)
	}
	queue, err := jobqueue.Open(store.DB())
	if err != nil {
		t.Fatalf("open job queue: %v", err)
	}

	svc := &orchestrator.Service{
		Store:      store,
		Queue:      queue,
		Fetcher:    fetcher.New(slog.New(slog.NewTextHandler(os.Stderr, nil))),
		Dedupe:     dedupe.New(store),
		Enrichment: enrichment.New(store, content, 24*time.Hour),
		Discovery:  discovery.NewRegistry(&discovery.Gate{MockExternal: true}),
	}

	cfg := &config.Config{
		API: config.API{
			Bind: "127.0.0.1:0",
			Security: config.APISecurity{
				Enabled: false,
			},
		},
	}

	mon := health.NewMonitor(store, 1)
	srv, err := NewServer(cfg, svc, mon, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.handleHealthz(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var status health.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.DBReachable {
		t.Error("expected db_reachable true")
	}
}

func TestCreateAndGetRun(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(mustJSON(t, createRunRequest{
		Mandate: "identify mid-market SaaS targets", Sector: "software", RegionScope: "us", CreatedBy: "analyst-1",
	})))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w := httptest.NewRecorder()
	srv.routeRuns(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var run corestore.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected a generated run id")
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w = httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetRunCrossTenantRejected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(mustJSON(t, createRunRequest{Mandate: "m"})))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w := httptest.NewRecorder()
	srv.routeRuns(w, req)
	var run corestore.Run
	json.Unmarshal(w.Body.Bytes(), &run)

	req = httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil)
	req.Header.Set("X-Tenant-ID", "tenant-b")
	w = httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestRunLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(mustJSON(t, createRunRequest{Mandate: "m"})))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w := httptest.NewRecorder()
	srv.routeRuns(w, req)
	var run corestore.Run
	json.Unmarshal(w.Body.Bytes(), &run)

	req = httptest.NewRequest(http.MethodPost, "/runs/"+run.ID+"/cancel", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w = httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/runs/"+run.ID+"/retry", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w = httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleAddSource(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(mustJSON(t, createRunRequest{Mandate: "m"})))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w := httptest.NewRecorder()
	srv.routeRuns(w, req)
	var run corestore.Run
	json.Unmarshal(w.Body.Bytes(), &run)

	req = httptest.NewRequest(http.MethodPost, "/runs/"+run.ID+"/sources", bytes.NewReader(mustJSON(t, addSourceRequest{
		SourceType: corestore.SourceTypeURL, URLRaw: "https://example.com/about",
	})))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w = httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("add source status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRouteRunDetailUnknownSubResource(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/runs/some-id/nonsense", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	w := httptest.NewRecorder()
	srv.routeRunDetail(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
