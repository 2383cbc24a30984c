package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/antigravity-dev/prospector/internal/urlkey"
)

// Prospect review statuses and discovery sources, per spec.md §3.
const (
	ReviewStatusNew      = "new"
	ReviewStatusAccepted = "accepted"
	ReviewStatusHold     = "hold"
	ReviewStatusRejected = "rejected"

	DiscoveredInternal = "internal"
	DiscoveredExternal = "external"
	DiscoveredBoth      = "both"

	VerificationUnverified = "unverified"
	VerificationPartial    = "partial"
	VerificationVerified   = "verified"
)

// Prospect is a normalized company candidate scoped to a run.
type Prospect struct {
	ID                string
	Tenant            string
	RunID             string
	Mandate           string
	NameRaw           string
	NameNormalized    string
	WebsiteURL        string
	HQCountry         string
	HQCity            string
	Sector            string
	Subsector         string
	RelevanceScore    float64
	EvidenceScore     float64
	ConfidenceScore   float64
	DiscoveredBy      string
	ReviewStatus      string
	ExecSearchEnabled bool
	ManualPriority    int
	IsPinned          bool
	VerificationStatus string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FindProspectByName returns the canonical prospect with this normalized
// name within a run, if any.
func (s *Store) FindProspectByName(ctx context.Context, tenant, runID, nameNormalized string) (*Prospect, error) {
	row := s.db.QueryRowContext(ctx, prospectSelect+` WHERE tenant = ? AND run_id = ? AND name_normalized = ?`,
		tenant, runID, nameNormalized)
	p, err := scanProspect(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// FindProspectByHost returns a prospect in the run whose website_url
// canonicalizes to the given host, if any. host must already be lower-cased.
func (s *Store) FindProspectByHost(ctx context.Context, tenant, runID, host string) (*Prospect, error) {
	rows, err := s.db.QueryContext(ctx, prospectSelect+` WHERE tenant = ? AND run_id = ? AND website_url LIKE ?`,
		tenant, runID, "%"+host+"%")
	if err != nil {
		return nil, fmt.Errorf("query prospects by host: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProspectRows(rows)
		if err != nil {
			return nil, err
		}
		if urlkey.Host(p.WebsiteURL) == host {
			return p, nil
		}
	}
	return nil, rows.Err()
}

// InsertProspect creates a new canonical prospect row.
func (s *Store) InsertProspect(ctx context.Context, p *Prospect) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = now, now
	if p.ReviewStatus == "" {
		p.ReviewStatus = ReviewStatusNew
	}
	if p.VerificationStatus == "" {
		p.VerificationStatus = VerificationUnverified
	}
	if p.DiscoveredBy == "" {
		p.DiscoveredBy = DiscoveredInternal
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prospects (
			id, tenant, run_id, mandate, name_raw, name_normalized, website_url, hq_country, hq_city,
			sector, subsector, relevance_score, evidence_score, confidence_score, discovered_by,
			review_status, exec_search_enabled, manual_priority, is_pinned, verification_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Tenant, p.RunID, p.Mandate, p.NameRaw, p.NameNormalized, p.WebsiteURL, p.HQCountry,
		p.HQCity, p.Sector, p.Subsector, p.RelevanceScore, p.EvidenceScore, p.ConfidenceScore,
		p.DiscoveredBy, p.ReviewStatus, boolToInt(p.ExecSearchEnabled), p.ManualPriority,
		boolToInt(p.IsPinned), p.VerificationStatus, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert prospect: %w", err)
	}
	return nil
}

// GetProspect loads a prospect by id.
func (s *Store) GetProspect(ctx context.Context, tenant, id string) (*Prospect, error) {
	row := s.db.QueryRowContext(ctx, prospectSelect+` WHERE tenant = ? AND id = ?`, tenant, id)
	return scanProspect(row)
}

// ListProspectsForRun returns every prospect in a run, ordered by (id).
func (s *Store) ListProspectsForRun(ctx context.Context, tenant, runID string) ([]*Prospect, error) {
	rows, err := s.db.QueryContext(ctx, prospectSelect+` WHERE tenant = ? AND run_id = ? ORDER BY id ASC`, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("query prospects: %w", err)
	}
	defer rows.Close()

	var out []*Prospect
	for rows.Next() {
		p, err := scanProspectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const prospectSelect = `
	SELECT id, tenant, run_id, mandate, name_raw, name_normalized, website_url, hq_country, hq_city,
	       sector, subsector, relevance_score, evidence_score, confidence_score, discovered_by,
	       review_status, exec_search_enabled, manual_priority, is_pinned, verification_status,
	       created_at, updated_at
	FROM prospects`

func scanProspect(row *sql.Row) (*Prospect, error) { return scanProspectFrom(row) }
func scanProspectRows(rows *sql.Rows) (*Prospect, error) { return scanProspectFrom(rows) }

func scanProspectFrom(sc scannable) (*Prospect, error) {
	var p Prospect
	var execEnabled, pinned int
	var createdAt, updatedAt string
	err := sc.Scan(&p.ID, &p.Tenant, &p.RunID, &p.Mandate, &p.NameRaw, &p.NameNormalized,
		&p.WebsiteURL, &p.HQCountry, &p.HQCity, &p.Sector, &p.Subsector, &p.RelevanceScore,
		&p.EvidenceScore, &p.ConfidenceScore, &p.DiscoveredBy, &p.ReviewStatus, &execEnabled,
		&p.ManualPriority, &pinned, &p.VerificationStatus, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.ExecSearchEnabled = execEnabled != 0
	p.IsPinned = pinned != 0
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProspectUpdate describes a merge/review mutation. Manual fields
// (ManualPriority, IsPinned, ReviewStatus) are only applied when the
// corresponding Set* flag is true, so automatic merges never clobber a
// human decision (module G invariant).
type ProspectUpdate struct {
	EvidenceScore      *float64 // raised monotonically by the caller before calling
	ConfidenceScore    *float64
	RelevanceScore     *float64
	DiscoveredBy       string
	SetReviewStatus    bool
	ReviewStatus       string
	SetExecSearch      bool
	ExecSearchEnabled  bool
	SetManualPriority  bool
	ManualPriority     int
	SetPinned          bool
	IsPinned           bool
	SetVerification    bool
	VerificationStatus string
}

// UpdateProspect applies a partial update.
func (s *Store) UpdateProspect(ctx context.Context, tenant, id string, u ProspectUpdate) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE prospects SET updated_at = ?`
	args := []any{formatTime(now)}
	if u.EvidenceScore != nil {
		query += `, evidence_score = ?`
		args = append(args, *u.EvidenceScore)
	}
	if u.ConfidenceScore != nil {
		query += `, confidence_score = ?`
		args = append(args, *u.ConfidenceScore)
	}
	if u.RelevanceScore != nil {
		query += `, relevance_score = ?`
		args = append(args, *u.RelevanceScore)
	}
	if u.DiscoveredBy != "" {
		query += `, discovered_by = ?`
		args = append(args, u.DiscoveredBy)
	}
	if u.SetReviewStatus {
		query += `, review_status = ?`
		args = append(args, u.ReviewStatus)
	}
	if u.SetExecSearch {
		query += `, exec_search_enabled = ?`
		args = append(args, boolToInt(u.ExecSearchEnabled))
	}
	if u.SetManualPriority {
		query += `, manual_priority = ?`
		args = append(args, u.ManualPriority)
	}
	if u.SetPinned {
		query += `, is_pinned = ?`
		args = append(args, boolToInt(u.IsPinned))
	}
	if u.SetVerification {
		query += `, verification_status = ?`
		args = append(args, u.VerificationStatus)
	}
	query += ` WHERE tenant = ? AND id = ?`
	args = append(args, tenant, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update prospect %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("prospect %s not found", id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ProspectEvidence is one provenance record linking a prospect to a source.
type ProspectEvidence struct {
	ID                string
	Tenant            string
	ProspectID        string
	SourceType        string
	SourceName        string
	SourceURL         string
	SourceDocumentID  sql.NullString
	SourceContentHash string
	RawSnippet        string
	EvidenceWeight    float64
	CreatedAt         time.Time
}

// InsertProspectEvidence adds one evidence row.
func (s *Store) InsertProspectEvidence(ctx context.Context, e *ProspectEvidence) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	e.CreatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prospect_evidence (
			id, tenant, prospect_id, source_type, source_name, source_url, source_document_id,
			source_content_hash, raw_snippet, evidence_weight, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tenant, e.ProspectID, e.SourceType, e.SourceName, e.SourceURL, e.SourceDocumentID,
		e.SourceContentHash, e.RawSnippet, e.EvidenceWeight, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert prospect_evidence: %w", err)
	}
	return nil
}

// ListProspectEvidence returns every evidence row for a prospect.
func (s *Store) ListProspectEvidence(ctx context.Context, tenant, prospectID string) ([]*ProspectEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, prospect_id, source_type, source_name, source_url, source_document_id,
		       source_content_hash, raw_snippet, evidence_weight, created_at
		FROM prospect_evidence WHERE tenant = ? AND prospect_id = ? ORDER BY id ASC`, tenant, prospectID)
	if err != nil {
		return nil, fmt.Errorf("query prospect_evidence: %w", err)
	}
	defer rows.Close()

	var out []*ProspectEvidence
	for rows.Next() {
		var e ProspectEvidence
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Tenant, &e.ProspectID, &e.SourceType, &e.SourceName, &e.SourceURL,
			&e.SourceDocumentID, &e.SourceContentHash, &e.RawSnippet, &e.EvidenceWeight, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
