package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Executive is a candidate person within a company prospect.
type Executive struct {
	ID                 string
	Tenant             string
	RunID              string
	CompanyProspectID  string
	NameRaw            string
	NameNormalized     string
	Title              string
	ProfileURL         string
	LinkedInURL        string
	Email              string
	Confidence         float64
	DiscoveredBy       string
	ReviewStatus       string
	VerificationStatus string
	SourceLabel        string
	SourceDocumentID   sql.NullString
	CandidateID        string
	ContactID          string
	AssignmentID       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InsertExecutive creates a new executive prospect row.
func (s *Store) InsertExecutive(ctx context.Context, e *Executive) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	e.CreatedAt, e.UpdatedAt = now, now
	if e.ReviewStatus == "" {
		e.ReviewStatus = ReviewStatusNew
	}
	if e.VerificationStatus == "" {
		e.VerificationStatus = VerificationUnverified
	}
	if e.DiscoveredBy == "" {
		e.DiscoveredBy = DiscoveredInternal
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executives (
			id, tenant, run_id, company_prospect_id, name_raw, name_normalized, title, profile_url,
			linkedin_url, email, confidence, discovered_by, review_status, verification_status,
			source_label, source_document_id, candidate_id, contact_id, assignment_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tenant, e.RunID, e.CompanyProspectID, e.NameRaw, e.NameNormalized, e.Title,
		e.ProfileURL, e.LinkedInURL, e.Email, e.Confidence, e.DiscoveredBy, e.ReviewStatus,
		e.VerificationStatus, e.SourceLabel, e.SourceDocumentID, e.CandidateID, e.ContactID,
		e.AssignmentID, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert executive: %w", err)
	}
	return nil
}

// GetExecutive loads an executive by id.
func (s *Store) GetExecutive(ctx context.Context, tenant, id string) (*Executive, error) {
	row := s.db.QueryRowContext(ctx, executiveSelect+` WHERE tenant = ? AND id = ?`, tenant, id)
	return scanExecutive(row)
}

// ListExecutivesForCompany returns every executive under a company
// prospect, ordered by (created_at, id) — the order the identity graph's
// canonical-selection rule and deterministic-processing invariant require.
func (s *Store) ListExecutivesForCompany(ctx context.Context, tenant, companyProspectID string) ([]*Executive, error) {
	rows, err := s.db.QueryContext(ctx, executiveSelect+` WHERE tenant = ? AND company_prospect_id = ? ORDER BY created_at ASC, id ASC`,
		tenant, companyProspectID)
	if err != nil {
		return nil, fmt.Errorf("query executives: %w", err)
	}
	defer rows.Close()

	var out []*Executive
	for rows.Next() {
		e, err := scanExecutiveRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListExecutivesForRun returns every executive in a run ordered by
// (created_at, id).
func (s *Store) ListExecutivesForRun(ctx context.Context, tenant, runID string) ([]*Executive, error) {
	rows, err := s.db.QueryContext(ctx, executiveSelect+` WHERE tenant = ? AND run_id = ? ORDER BY created_at ASC, id ASC`,
		tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("query executives for run: %w", err)
	}
	defer rows.Close()

	var out []*Executive
	for rows.Next() {
		e, err := scanExecutiveRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const executiveSelect = `
	SELECT id, tenant, run_id, company_prospect_id, name_raw, name_normalized, title, profile_url,
	       linkedin_url, email, confidence, discovered_by, review_status, verification_status,
	       source_label, source_document_id, candidate_id, contact_id, assignment_id,
	       created_at, updated_at
	FROM executives`

func scanExecutive(row *sql.Row) (*Executive, error)      { return scanExecutiveFrom(row) }
func scanExecutiveRows(rows *sql.Rows) (*Executive, error) { return scanExecutiveFrom(rows) }

func scanExecutiveFrom(sc scannable) (*Executive, error) {
	var e Executive
	var createdAt, updatedAt string
	err := sc.Scan(&e.ID, &e.Tenant, &e.RunID, &e.CompanyProspectID, &e.NameRaw, &e.NameNormalized,
		&e.Title, &e.ProfileURL, &e.LinkedInURL, &e.Email, &e.Confidence, &e.DiscoveredBy,
		&e.ReviewStatus, &e.VerificationStatus, &e.SourceLabel, &e.SourceDocumentID, &e.CandidateID,
		&e.ContactID, &e.AssignmentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// ExecutiveUpdate describes a mutation to an executive row.
type ExecutiveUpdate struct {
	SetVerification    bool
	VerificationStatus string
	SetReviewStatus    bool
	ReviewStatus       string
	SetPromotion       bool
	CandidateID        string
	ContactID          string
	AssignmentID       string
}

// UpdateExecutive applies a partial update.
func (s *Store) UpdateExecutive(ctx context.Context, tenant, id string, u ExecutiveUpdate) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE executives SET updated_at = ?`
	args := []any{formatTime(now)}
	if u.SetVerification {
		query += `, verification_status = ?`
		args = append(args, u.VerificationStatus)
	}
	if u.SetReviewStatus {
		query += `, review_status = ?`
		args = append(args, u.ReviewStatus)
	}
	if u.SetPromotion {
		query += `, candidate_id = ?, contact_id = ?, assignment_id = ?`
		args = append(args, u.CandidateID, u.ContactID, u.AssignmentID)
	}
	query += ` WHERE tenant = ? AND id = ?`
	args = append(args, tenant, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update executive %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("executive %s not found", id)
	}
	return nil
}

// ExecutiveEvidence mirrors ProspectEvidence for executives.
type ExecutiveEvidence struct {
	ID                string
	Tenant            string
	ExecutiveID       string
	SourceType        string
	SourceName        string
	SourceURL         string
	SourceDocumentID  sql.NullString
	SourceContentHash string
	RawSnippet        string
	EvidenceWeight    float64
	CreatedAt         time.Time
}

// InsertExecutiveEvidence adds one evidence row.
func (s *Store) InsertExecutiveEvidence(ctx context.Context, e *ExecutiveEvidence) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	e.CreatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executive_evidence (
			id, tenant, executive_id, source_type, source_name, source_url, source_document_id,
			source_content_hash, raw_snippet, evidence_weight, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tenant, e.ExecutiveID, e.SourceType, e.SourceName, e.SourceURL, e.SourceDocumentID,
		e.SourceContentHash, e.RawSnippet, e.EvidenceWeight, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert executive_evidence: %w", err)
	}
	return nil
}

// ListExecutiveEvidence returns every evidence row for an executive.
func (s *Store) ListExecutiveEvidence(ctx context.Context, tenant, executiveID string) ([]*ExecutiveEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, executive_id, source_type, source_name, source_url, source_document_id,
		       source_content_hash, raw_snippet, evidence_weight, created_at
		FROM executive_evidence WHERE tenant = ? AND executive_id = ? ORDER BY id ASC`, tenant, executiveID)
	if err != nil {
		return nil, fmt.Errorf("query executive_evidence: %w", err)
	}
	defer rows.Close()

	var out []*ExecutiveEvidence
	for rows.Next() {
		var e ExecutiveEvidence
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Tenant, &e.ExecutiveID, &e.SourceType, &e.SourceName, &e.SourceURL,
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

// ExecutiveMergeDecision is a user/decision record inducing an edge in the
// executive identity graph.
const (
	MergeDecisionMarkSame      = "mark_same"
	MergeDecisionKeepSeparate  = "keep_separate"
)

type ExecutiveMergeDecision struct {
	ID                string
	Tenant            string
	RunID             string
	CompanyProspectID string
	LeftExecutiveID   string
	RightExecutiveID  string
	DecisionType      string
	EvidenceRefsJSON  string
	ResolutionHash    string
	CreatedBy         string
	Note              string
	CreatedAt         time.Time
}

// InsertMergeDecision records a decision.
func (s *Store) InsertMergeDecision(ctx context.Context, d *ExecutiveMergeDecision) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	d.CreatedAt = now
	if d.EvidenceRefsJSON == "" {
		d.EvidenceRefsJSON = "[]"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executive_merge_decisions (
			id, tenant, run_id, company_prospect_id, left_executive_id, right_executive_id,
			decision_type, evidence_refs_json, resolution_hash, created_by, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Tenant, d.RunID, d.CompanyProspectID, d.LeftExecutiveID, d.RightExecutiveID,
		d.DecisionType, d.EvidenceRefsJSON, d.ResolutionHash, d.CreatedBy, d.Note, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert merge decision: %w", err)
	}
	return nil
}

// ListMergeDecisionsForRun returns all merge decisions in a run, ordered by
// creation so union-find rebuilds are deterministic.
func (s *Store) ListMergeDecisionsForRun(ctx context.Context, tenant, runID string) ([]*ExecutiveMergeDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, run_id, company_prospect_id, left_executive_id, right_executive_id,
		       decision_type, evidence_refs_json, resolution_hash, created_by, note, created_at
		FROM executive_merge_decisions WHERE tenant = ? AND run_id = ? ORDER BY created_at ASC, id ASC`,
		tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("query merge decisions: %w", err)
	}
	defer rows.Close()

	var out []*ExecutiveMergeDecision
	for rows.Next() {
		var d ExecutiveMergeDecision
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Tenant, &d.RunID, &d.CompanyProspectID, &d.LeftExecutiveID,
			&d.RightExecutiveID, &d.DecisionType, &d.EvidenceRefsJSON, &d.ResolutionHash,
			&d.CreatedBy, &d.Note, &createdAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
