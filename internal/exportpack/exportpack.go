// Package exportpack builds the deterministic run deliverable: a ZIP
// containing run metadata and a fixed set of CSV reports. Grounded on the
// teacher's archive-building care in internal/beads (path safety) and
// internal/health (single-process lock pattern for the surrounding
// orchestrator), generalized here to a snapshot-then-render pipeline with no
// teacher precedent of its own.
package exportpack

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/antigravity-dev/prospector/internal/corerrors"
	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/identitygraph"
)

// sentinelGeneratedAt is substituted for the real generation time before
// hashing, so two builds of unchanged run state produce byte-identical
// archives; the caller's returned copy carries the real timestamp.
const sentinelGeneratedAt = "1970-01-01T00:00:00Z"

// DefaultMaxZipBytes bounds archive size absent an explicit Options value.
const DefaultMaxZipBytes = 64 << 20

// Options configures a single Build call.
type Options struct {
	MaxZipBytes int64
}

// Pack is a generated deliverable: its bytes, hash, and the ExportPack row
// it was recorded as.
type Pack struct {
	Record      *corestore.ExportPack
	ArchiveName string
	Bytes       []byte
}

// Build reads a run's current prospects, executives, and merge decisions,
// renders the fixed report set, and packs it into a deterministic ZIP. The
// reads are separate queries, not one transaction, so a write that lands
// between them can appear in some reports and not in others. A build whose
// archive hash is already registered reuses that ExportPack row.
func Build(ctx context.Context, store *corestore.Store, tenant, runID string, opts ...Options) (*Pack, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxZipBytes <= 0 {
		o.MaxZipBytes = DefaultMaxZipBytes
	}

	run, err := store.GetRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	prospects, err := store.ListProspectsForRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}
	var executives []*corestore.Executive
	for _, p := range prospects {
		execs, err := store.ListExecutivesForCompany(ctx, tenant, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list executives for %s: %w", p.ID, err)
		}
		executives = append(executives, execs...)
	}
	decisions, err := store.ListMergeDecisionsForRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("list merge decisions: %w", err)
	}

	graph := buildIdentityGraph(executives, decisions)
	resolutions := graph.Resolve("executive", matchKeys(executives))

	files := map[string][]byte{}

	runPackJSON, err := renderRunPack(run, sentinelGeneratedAt)
	if err != nil {
		return nil, err
	}
	files["run_pack.json"] = runPackJSON
	files["companies.csv"], err = renderCompaniesCSV(prospects)
	if err != nil {
		return nil, err
	}
	files["executives.csv"], err = renderExecutivesCSV(executives)
	if err != nil {
		return nil, err
	}
	files["canonical_executives.csv"], err = renderCanonicalExecutivesCSV(resolutions)
	if err != nil {
		return nil, err
	}
	files["executive_resolution_map.csv"], err = renderResolutionMapCSV(resolutions)
	if err != nil {
		return nil, err
	}
	files["merge_decisions.csv"], err = renderMergeDecisionsCSV(decisions)
	if err != nil {
		return nil, err
	}
	files["executive_decisions.csv"], err = renderExecutiveDecisionsCSV(executives)
	if err != nil {
		return nil, err
	}
	files["audit_summary.csv"], err = renderAuditSummaryCSV(prospects, executives, resolutions, decisions)
	if err != nil {
		return nil, err
	}

	archive, err := packZip(files)
	if err != nil {
		return nil, err
	}
	if int64(len(archive)) > o.MaxZipBytes {
		return nil, &corerrors.LimitExceededError{
			Code:    "EXPORT_ZIP_TOO_LARGE",
			Details: map[string]any{"max_zip_bytes": o.MaxZipBytes},
		}
	}

	sum := sha256.Sum256(archive)
	hash := hex.EncodeToString(sum[:])

	// Re-render run_pack.json with the real timestamp for the copy handed
	// back to the caller; the hashed/stored archive bytes always carry the
	// sentinel.
	now, err := store.Now(ctx)
	if err != nil {
		return nil, err
	}
	cosmeticJSON, err := renderRunPack(run, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	cosmeticFiles := make(map[string][]byte, len(files))
	for k, v := range files {
		cosmeticFiles[k] = v
	}
	cosmeticFiles["run_pack.json"] = cosmeticJSON
	cosmeticArchive, err := packZip(cosmeticFiles)
	if err != nil {
		return nil, err
	}

	id := hash[:32]
	storagePointer := fmt.Sprintf("company_research/%s/runs/%s/%s.zip", tenant, runID, id)
	rec := &corestore.ExportPack{
		ID:             id,
		Tenant:         tenant,
		RunID:          runID,
		Kind:           "run_export",
		StoragePointer: storagePointer,
		SHA256:         hash,
		SizeBytes:      int64(len(archive)),
	}
	if existing, getErr := store.GetExportPack(ctx, tenant, id); getErr == nil {
		rec = existing
	} else if err := store.InsertExportPack(ctx, rec); err != nil {
		return nil, fmt.Errorf("record export pack: %w", err)
	}

	return &Pack{Record: rec, ArchiveName: id + ".zip", Bytes: cosmeticArchive}, nil
}

func buildIdentityGraph(executives []*corestore.Executive, decisions []*corestore.ExecutiveMergeDecision) *identitygraph.Graph {
	g := identitygraph.New()
	for _, e := range executives {
		matchKey := e.Email
		if matchKey == "" {
			matchKey = e.NameNormalized + "|" + e.CompanyProspectID
		}
		g.AddMember(identitygraph.Member{
			ID:                 e.ID,
			CreatedAt:          e.CreatedAt.Format(time.RFC3339Nano),
			VerificationStatus: e.VerificationStatus,
			MatchKey:           matchKey,
		})
	}
	for _, d := range decisions {
		switch d.DecisionType {
		case corestore.MergeDecisionKeepSeparate:
			g.KeepSeparate(d.LeftExecutiveID, d.RightExecutiveID)
		case corestore.MergeDecisionMarkSame:
			_ = g.Union(d.LeftExecutiveID, d.RightExecutiveID)
		}
	}
	return g
}

func matchKeys(executives []*corestore.Executive) map[string]string {
	out := make(map[string]string, len(executives))
	for _, e := range executives {
		if e.Email != "" {
			out[e.ID] = e.Email
		} else {
			out[e.ID] = e.NameNormalized + "|" + e.CompanyProspectID
		}
	}
	return out
}

func renderRunPack(run *corestore.Run, generatedAt string) ([]byte, error) {
	payload := map[string]any{
		"run_id":       run.ID,
		"tenant":       run.Tenant,
		"mandate":      run.Mandate,
		"sector":       run.Sector,
		"region_scope": run.RegionScope,
		"status":       run.Status,
		"created_at":   run.CreatedAt.UTC().Format(time.RFC3339),
		"generated_at": generatedAt,
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run_pack.json: %w", err)
	}
	return append(b, '\n'), nil
}

func renderCompaniesCSV(prospects []*corestore.Prospect) ([]byte, error) {
	sorted := append([]*corestore.Prospect(nil), prospects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return writeCSV([]string{
		"id", "name_raw", "name_normalized", "website_url", "sector", "subsector",
		"hq_country", "hq_city", "relevance_score", "evidence_score", "confidence_score",
		"discovered_by", "review_status", "verification_status", "exec_search_enabled",
		"is_pinned", "manual_priority",
	}, func(w *csv.Writer) error {
		for _, p := range sorted {
			if err := w.Write([]string{
				p.ID, p.NameRaw, p.NameNormalized, p.WebsiteURL, p.Sector, p.Subsector,
				p.HQCountry, p.HQCity, f64(p.RelevanceScore), f64(p.EvidenceScore), f64(p.ConfidenceScore),
				p.DiscoveredBy, p.ReviewStatus, p.VerificationStatus, boolStr(p.ExecSearchEnabled),
				boolStr(p.IsPinned), itoa(p.ManualPriority),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderExecutivesCSV(executives []*corestore.Executive) ([]byte, error) {
	sorted := sortExecutives(executives)
	return writeCSV([]string{
		"id", "company_prospect_id", "name_raw", "name_normalized", "title", "email",
		"linkedin_url", "confidence", "discovered_by", "review_status", "verification_status",
		"source_label",
	}, func(w *csv.Writer) error {
		for _, e := range sorted {
			if err := w.Write([]string{
				e.ID, e.CompanyProspectID, e.NameRaw, e.NameNormalized, e.Title, e.Email,
				e.LinkedInURL, f64(e.Confidence), e.DiscoveredBy, e.ReviewStatus, e.VerificationStatus,
				e.SourceLabel,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderCanonicalExecutivesCSV(resolutions []identitygraph.ComponentResolution) ([]byte, error) {
	return writeCSV([]string{"canonical_id", "member_count", "member_ids", "resolution_hash"}, func(w *csv.Writer) error {
		for _, r := range resolutions {
			members := append([]string(nil), r.MemberIDs...)
			sort.Strings(members)
			if err := w.Write([]string{r.CanonicalID, itoa(len(members)), joinSemicolon(members), r.Hash}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderResolutionMapCSV(resolutions []identitygraph.ComponentResolution) ([]byte, error) {
	type row struct{ requestedID, canonicalID string }
	var rows []row
	for _, r := range resolutions {
		for _, m := range r.MemberIDs {
			rows = append(rows, row{requestedID: m, canonicalID: r.CanonicalID})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].requestedID < rows[j].requestedID })

	return writeCSV([]string{"requested_id", "canonical_id"}, func(w *csv.Writer) error {
		for _, r := range rows {
			if err := w.Write([]string{r.requestedID, r.canonicalID}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderMergeDecisionsCSV(decisions []*corestore.ExecutiveMergeDecision) ([]byte, error) {
	sorted := append([]*corestore.ExecutiveMergeDecision(nil), decisions...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CompanyProspectID != sorted[j].CompanyProspectID {
			return sorted[i].CompanyProspectID < sorted[j].CompanyProspectID
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	return writeCSV([]string{
		"id", "company_prospect_id", "left_executive_id", "right_executive_id",
		"decision_type", "created_by", "note", "created_at",
	}, func(w *csv.Writer) error {
		for _, d := range sorted {
			if err := w.Write([]string{
				d.ID, d.CompanyProspectID, d.LeftExecutiveID, d.RightExecutiveID,
				d.DecisionType, d.CreatedBy, d.Note, d.CreatedAt.UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderExecutiveDecisionsCSV(executives []*corestore.Executive) ([]byte, error) {
	sorted := sortExecutives(executives)
	return writeCSV([]string{
		"executive_id", "company_prospect_id", "review_status", "verification_status",
		"candidate_id", "contact_id", "assignment_id",
	}, func(w *csv.Writer) error {
		for _, e := range sorted {
			if err := w.Write([]string{
				e.ID, e.CompanyProspectID, e.ReviewStatus, e.VerificationStatus,
				e.CandidateID, e.ContactID, e.AssignmentID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderAuditSummaryCSV(prospects []*corestore.Prospect, executives []*corestore.Executive, resolutions []identitygraph.ComponentResolution, decisions []*corestore.ExecutiveMergeDecision) ([]byte, error) {
	accepted := 0
	for _, p := range prospects {
		if p.ReviewStatus == corestore.ReviewStatusAccepted {
			accepted++
		}
	}
	return writeCSV([]string{"metric", "value"}, func(w *csv.Writer) error {
		rows := [][2]string{
			{"companies_total", itoa(len(prospects))},
			{"companies_accepted", itoa(accepted)},
			{"executives_total", itoa(len(executives))},
			{"canonical_executives_total", itoa(len(resolutions))},
			{"merge_decisions_total", itoa(len(decisions))},
		}
		for _, r := range rows {
			if err := w.Write(r[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

func sortExecutives(executives []*corestore.Executive) []*corestore.Executive {
	sorted := append([]*corestore.Executive(nil), executives...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CompanyProspectID != sorted[j].CompanyProspectID {
			return sorted[i].CompanyProspectID < sorted[j].CompanyProspectID
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func writeCSV(header []string, body func(*csv.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = false
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := body(w); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// packZip writes files into a ZIP in alphabetical name order with every
// entry's Modified time zeroed, so repeated builds of identical content
// produce byte-identical archives.
func packZip(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func f64(v float64) string { return fmt.Sprintf("%g", v) }
func itoa(v int) string    { return fmt.Sprintf("%d", v) }
func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
func joinSemicolon(ss []string) string {
	var buf bytes.Buffer
	for i, s := range ss {
		if i > 0 {
			buf.WriteByte(';')
		}
		buf.WriteString(s)
	}
	return buf.String()
}
