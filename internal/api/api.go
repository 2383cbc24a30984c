// Package api exposes the HTTP control surface over orchestrator.Service:
// run lifecycle, source ingestion, discovery, executive identity-merge
// decisions, and export/evidence downloads, plus the /healthz liveness
// endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/antigravity-dev/prospector/internal/config"
	"github.com/antigravity-dev/prospector/internal/corerrors"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/health"
	"github.com/antigravity-dev/prospector/internal/orchestrator"
)

// Server is the HTTP API server.
type Server struct {
	cfg            *config.Config
	svc            *orchestrator.Service
	health         *health.Monitor
	logger         *slog.Logger
	startTime      time.Time
	httpServer     *http.Server
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server bound to the orchestrator service and
// health monitor the caller constructed.
func NewServer(cfg *config.Config, svc *orchestrator.Service, mon *health.Monitor, logger *slog.Logger) (*Server, error) {
	authMiddleware, err := NewAuthMiddleware(&cfg.API.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth middleware: %w", err)
	}

	return &Server{
		cfg:            cfg,
		svc:            svc,
		health:         mon,
		logger:         logger,
		startTime:      time.Now(),
		authMiddleware: authMiddleware,
	}, nil
}

// Close closes the server and cleans up resources.
func (s *Server) Close() error {
	if s.authMiddleware != nil {
		return s.authMiddleware.Close()
	}
	return nil
}

// Start begins listening on the configured bind address. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/runs", s.authMiddleware.RequireAuth(s.routeRuns))
	mux.HandleFunc("/runs/", s.authMiddleware.RequireAuth(s.routeRunDetail))

	s.httpServer = &http.Server{
		Addr:        s.cfg.API.Bind,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", s.cfg.API.Bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeServiceError maps a corerrors kind to an HTTP status, the one place
// that translation happens rather than scattering status-code choices
// across every handler.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *corerrors.ValidationError
	var auth *corerrors.AuthorizationError
	var notFound *corerrors.NotFoundError
	var providerCfg *corerrors.ExternalProviderConfigError
	var upstream *corerrors.UpstreamError
	var conflict *corerrors.ConflictError
	var limit *corerrors.LimitExceededError
	var transient *corerrors.TransientError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &auth):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &providerCfg):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &upstream):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &limit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &transient):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// tenantFromRequest reads the calling tenant, carried as a header rather
// than a query parameter so it can't be logged into URL-based access logs
// alongside the bearer token.
func tenantFromRequest(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}

// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.health.Check(r.Context()))
}

// routeRuns dispatches /runs.
func (s *Server) routeRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// routeRunDetail dispatches every /runs/{id}/... path.
func (s *Server) routeRunDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/runs/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "run id required")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	runID := parts[0]
	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			s.handleGetRun(w, r, runID)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "start":
		s.handleStartRun(w, r, runID)
	case "cancel":
		s.handleCancelRun(w, r, runID)
	case "retry":
		s.handleRetryRun(w, r, runID)
	case "sources":
		s.handleAddSource(w, r, runID)
	case "executives/compare":
		s.handleCompareExecutives(w, r, runID)
	case "executives/discover":
		s.handleRunExecutiveDiscovery(w, r, runID)
	case "merge-decisions":
		s.handleRecordMergeDecision(w, r, runID)
	case "promote":
		s.handlePromoteExecutive(w, r, runID)
	case "discovery":
		s.handleRunDiscoveryProvider(w, r, runID)
	case "export":
		s.handleExportRunPack(w, r, runID)
	case "evidence":
		s.handleBuildEvidenceBundle(w, r, runID)
	default:
		writeError(w, http.StatusNotFound, "unknown run sub-resource")
	}
}

type createRunRequest struct {
	Mandate     string `json:"mandate"`
	Sector      string `json:"sector"`
	RegionScope string `json:"region_scope"`
	CreatedBy   string `json:"created_by"`
}

// POST /runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	run, err := s.svc.CreateRun(r.Context(), tenantFromRequest(r), req.Mandate, req.Sector, req.RegionScope, req.CreatedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, run)
}

// GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.svc.GetRun(r.Context(), tenantFromRequest(r), runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, run)
}

// POST /runs/{id}/start
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request, runID string) {
	if err := s.svc.StartRun(r.Context(), tenantFromRequest(r), runID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

// POST /runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, runID string) {
	if err := s.svc.CancelRun(r.Context(), tenantFromRequest(r), runID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// POST /runs/{id}/retry
func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request, runID string) {
	if err := s.svc.RetryRun(r.Context(), tenantFromRequest(r), runID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "queued"})
}

type addSourceRequest struct {
	SourceType   string `json:"source_type"`
	URLRaw       string `json:"url_raw"`
	MimeType     string `json:"mime_type"`
	ContentBytes []byte `json:"content_bytes"` // base64 over the wire via encoding/json
}

// POST /runs/{id}/sources
func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request, runID string) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenant := tenantFromRequest(r)
	doc, err := s.svc.AddSource(r.Context(), tenant, runID, req.SourceType, req.URLRaw, req.MimeType, req.ContentBytes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if doc.SourceType == "url" {
		if _, err := s.svc.EnqueueAcquireExtract(r.Context(), tenant, runID, doc.ID); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, doc)
}

type discoveryRequest struct {
	ProviderKey string            `json:"provider_key"`
	Force       bool              `json:"force"`
	Request     discovery.Request `json:"request"`
}

// POST /runs/{id}/discovery
func (s *Server) handleRunDiscoveryProvider(w http.ResponseWriter, r *http.Request, runID string) {
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.svc.RunDiscoveryProvider(r.Context(), tenantFromRequest(r), runID, req.ProviderKey, req.Request, req.Force)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, &discoveryResultEnvelope{
		EnrichmentID: result.EnrichmentID, SourceDocumentID: result.SourceDocumentID,
		ContentHash: result.ContentHash, Skipped: result.Skipped,
	})
}

// discoveryResultEnvelope flattens enrichment.RunResult to a stable wire
// shape rather than exposing the internal struct directly.
type discoveryResultEnvelope struct {
	EnrichmentID     string `json:"enrichment_id"`
	SourceDocumentID string `json:"source_document_id"`
	ContentHash      string `json:"content_hash"`
	Skipped          bool   `json:"skipped"`
}

type executiveDiscoveryRequest struct {
	Payload discovery.ExecutiveDiscoveryV1 `json:"payload"`
	Mode    string                         `json:"mode"`
}

// POST /runs/{id}/executives/discover
func (s *Server) handleRunExecutiveDiscovery(w http.ResponseWriter, r *http.Request, runID string) {
	var req executiveDiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.svc.RunExecutiveDiscovery(r.Context(), tenantFromRequest(r), runID, req.Payload, req.Mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, result)
}

type compareExecutivesRequest struct {
	CompanyProspectID string `json:"company_prospect_id"`
}

// POST /runs/{id}/executives/compare
func (s *Server) handleCompareExecutives(w http.ResponseWriter, r *http.Request, runID string) {
	var req compareExecutivesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.svc.CompareExecutives(r.Context(), tenantFromRequest(r), runID, req.CompanyProspectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, result)
}

type mergeDecisionRequest struct {
	CompanyProspectID string `json:"company_prospect_id"`
	LeftExecutiveID   string `json:"left_executive_id"`
	RightExecutiveID  string `json:"right_executive_id"`
	DecisionType      string `json:"decision_type"`
	CreatedBy         string `json:"created_by"`
	Note              string `json:"note"`
}

// POST /runs/{id}/merge-decisions
func (s *Server) handleRecordMergeDecision(w http.ResponseWriter, r *http.Request, runID string) {
	var req mergeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.svc.RecordMergeDecision(r.Context(), tenantFromRequest(r), runID,
		req.CompanyProspectID, req.LeftExecutiveID, req.RightExecutiveID, req.DecisionType, req.CreatedBy, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "recorded"})
}

type promoteExecutiveRequest struct {
	ExecutiveID string `json:"executive_id"`
	NewStatus   string `json:"new_status"`
}

// POST /runs/{id}/promote
func (s *Server) handlePromoteExecutive(w http.ResponseWriter, r *http.Request, runID string) {
	var req promoteExecutiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.svc.PromoteExecutive(r.Context(), tenantFromRequest(r), runID, req.ExecutiveID, req.NewStatus)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, result)
}

// GET /runs/{id}/export
func (s *Server) handleExportRunPack(w http.ResponseWriter, r *http.Request, runID string) {
	pack, err := s.svc.ExportRunPack(r.Context(), tenantFromRequest(r), runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	serveArchive(w, pack.ArchiveName, pack.Bytes)
}

// GET /runs/{id}/evidence
func (s *Server) handleBuildEvidenceBundle(w http.ResponseWriter, r *http.Request, runID string) {
	bundle, err := s.svc.BuildEvidenceBundle(r.Context(), tenantFromRequest(r), runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	serveArchive(w, bundle.ArchiveName, bundle.Bytes)
}

func serveArchive(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}
