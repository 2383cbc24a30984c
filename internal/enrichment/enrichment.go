// Package enrichment implements the ledger that tracks external provider
// calls so repeated requests with the same effective input can be skipped
// instead of re-spending credits.
package enrichment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antigravity-dev/prospector/internal/contentstore"
	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/google/uuid"
)

// Ledger binds the corestore enrichment table and the content store
// together behind RunProvider.
type Ledger struct {
	store   *corestore.Store
	content *contentstore.Store
	ttl     time.Duration
}

// New builds a Ledger with the given reuse TTL (how long a prior successful
// call may be reused without re-calling the provider).
func New(store *corestore.Store, content *contentstore.Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Ledger{store: store, content: content, ttl: ttl}
}

// RunResult is the outcome of RunProvider.
type RunResult struct {
	EnrichmentID     string
	SourceDocumentID string
	ContentHash      string
	Skipped          bool
	ProviderResult   discovery.Result
}

// RunProvider calls p.Run unless a matching ledger entry inside the TTL
// already exists, in which case it returns skipped=true reusing the prior
// source_document_id/enrichment_id. force=true bypasses the TTL lookup but
// an exact content_hash match still short-circuits — this keeps
// "force a fresh call" from ever duplicating identical content.
func (l *Ledger) RunProvider(ctx context.Context, tenant, runID string, p discovery.Provider, req discovery.Request, purpose, targetType, targetID string, force bool) (*RunResult, error) {
	inputScopeHash, err := discovery.CanonicalHash(p.Key(), req)
	if err != nil {
		return nil, fmt.Errorf("hash discovery request: %w", err)
	}

	if !force {
		if existing, err := l.lookupWithinTTL(ctx, tenant, runID, p.Key(), purpose, targetType, targetID, inputScopeHash); err != nil {
			return nil, err
		} else if existing != nil {
			return l.reuse(existing), nil
		}
	}

	result, err := p.Run(ctx, tenant, runID, req)
	if err != nil {
		l.recordFailure(ctx, tenant, runID, p.Key(), purpose, targetType, targetID, inputScopeHash, err)
		return nil, err
	}

	payloadBytes, err := marshalPayload(result)
	if err != nil {
		return nil, err
	}
	contentHash := contentstore.Hash(payloadBytes)

	// Exact content_hash match still short-circuits, even under force=true:
	// determinism survives forcing a fresh call.
	if existing, err := l.findByContentHash(ctx, tenant, runID, p.Key(), purpose, targetType, targetID, contentHash); err != nil {
		return nil, err
	} else if existing != nil {
		return l.reuse(existing), nil
	}

	blobID := uuid.NewString()
	storedID, _, _, err := l.content.Put(ctx, blobID, payloadBytes, "application/json", result.RawInputText)
	if err != nil {
		return nil, fmt.Errorf("store enrichment payload: %w", err)
	}

	docID := uuid.NewString()
	doc := &corestore.SourceDocument{
		ID:          docID,
		Tenant:      tenant,
		RunID:       runID,
		SourceType:  result.SourceType,
		ContentHash: sql.NullString{String: contentHash, Valid: true},
		MimeType:    "application/json",
		Status:      corestore.DocStatusProcessed,
	}
	if err := l.store.InsertSourceDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert source document for enrichment: %w", err)
	}

	recID := uuid.NewString()
	rec := &corestore.EnrichmentRecord{
		ID:               recID,
		Tenant:           tenant,
		RunID:            runID,
		Provider:         p.Key(),
		Purpose:          purpose,
		TargetType:       targetType,
		TargetID:         targetID,
		InputScopeHash:   inputScopeHash,
		ContentHash:      sql.NullString{String: contentHash, Valid: true},
		Status:           corestore.EnrichmentStatusSucceeded,
		SourceDocumentID: sql.NullString{String: docID, Valid: true},
	}
	if err := l.store.InsertEnrichmentRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert enrichment record: %w", err)
	}

	_ = storedID
	return &RunResult{
		EnrichmentID:     recID,
		SourceDocumentID: docID,
		ContentHash:      contentHash,
		Skipped:          false,
		ProviderResult:   result,
	}, nil
}

func (l *Ledger) recordFailure(ctx context.Context, tenant, runID, provider, purpose, targetType, targetID, inputScopeHash string, cause error) {
	rec := &corestore.EnrichmentRecord{
		ID:             uuid.NewString(),
		Tenant:         tenant,
		RunID:          runID,
		Provider:       provider,
		Purpose:        purpose,
		TargetType:     targetType,
		TargetID:       targetID,
		InputScopeHash: inputScopeHash,
		Status:         corestore.EnrichmentStatusFailed,
		ErrorMessage:   cause.Error(),
	}
	_ = l.store.InsertEnrichmentRecord(ctx, rec)
}

func (l *Ledger) lookupWithinTTL(ctx context.Context, tenant, runID, provider, purpose, targetType, targetID, inputScopeHash string) (*corestore.EnrichmentRecord, error) {
	rec, err := l.store.FindEnrichmentRecord(ctx, tenant, runID, provider, purpose, targetType, targetID, inputScopeHash)
	if err != nil {
		return nil, fmt.Errorf("lookup enrichment record: %w", err)
	}
	if rec == nil || rec.Status != corestore.EnrichmentStatusSucceeded {
		return nil, nil
	}
	now, err := l.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	if now.Sub(rec.CreatedAt) > l.ttl {
		return nil, nil
	}
	return rec, nil
}

func (l *Ledger) findByContentHash(ctx context.Context, tenant, runID, provider, purpose, targetType, targetID, contentHash string) (*corestore.EnrichmentRecord, error) {
	recs, err := l.store.ListEnrichmentRecordsForTarget(ctx, tenant, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup enrichment by content hash: %w", err)
	}
	for _, rec := range recs {
		if rec.RunID == runID && rec.Provider == provider && rec.Purpose == purpose &&
			rec.Status == corestore.EnrichmentStatusSucceeded &&
			rec.ContentHash.Valid && rec.ContentHash.String == contentHash {
			return rec, nil
		}
	}
	return nil, nil
}

func (l *Ledger) reuse(rec *corestore.EnrichmentRecord) *RunResult {
	return &RunResult{
		EnrichmentID:     rec.ID,
		SourceDocumentID: rec.SourceDocumentID.String,
		ContentHash:      rec.ContentHash.String,
		Skipped:          true,
	}
}

func marshalPayload(result discovery.Result) ([]byte, error) {
	if len(result.Envelope) > 0 {
		return result.Envelope, nil
	}
	return json.Marshal(result.Payload)
}
