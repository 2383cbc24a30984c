// Package evidencebundle builds the deterministic provenance archive for a
// run: every SourceDocument linked to it, plus a manifest proving each
// file's integrity. Shares exportpack's ZIP-determinism rules (zeroed
// timestamps, alphabetical entry order, deflate) — no teacher precedent for
// either package; both are built to spec.md §4.M/§4.N's explicit rules.
package evidencebundle

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/antigravity-dev/prospector/internal/corerrors"
	"github.com/antigravity-dev/prospector/internal/corestore"
)

// DefaultMaxZipBytes bounds archive size absent an explicit Options value.
const DefaultMaxZipBytes = 128 << 20

// Options configures a single Build call.
type Options struct {
	MaxZipBytes int64
}

// ManifestEntry describes one packed source document.
type ManifestEntry struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
	SHA256      string `json:"sha256"`
}

// Bundle is a generated evidence archive and its registry row.
type Bundle struct {
	Record      *corestore.ExportPack
	ArchiveName string
	Bytes       []byte
}

// Build packs every SourceDocument linked to a run (all source types,
// including provider_json/llm_json envelopes) plus MANIFEST.json and
// MANIFEST.sha256, sorted by file_name for deterministic output.
func Build(ctx context.Context, store *corestore.Store, tenant, runID string, opts ...Options) (*Bundle, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxZipBytes <= 0 {
		o.MaxZipBytes = DefaultMaxZipBytes
	}

	docs, err := store.ListSourceDocumentsForRun(ctx, tenant, runID)
	if err != nil {
		return nil, fmt.Errorf("list source documents: %w", err)
	}

	type packed struct {
		name    string
		content []byte
	}
	var packedFiles []packed
	var manifest []ManifestEntry
	usedNames := make(map[string]int)

	for _, d := range docs {
		content := documentBytes(d)
		name := fileNameFor(d, usedNames)
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])

		packedFiles = append(packedFiles, packed{name: name, content: content})
		manifest = append(manifest, ManifestEntry{
			FileName:    name,
			ContentType: contentTypeFor(d),
			SizeBytes:   len(content),
			SHA256:      hash,
		})
	}

	sort.Slice(manifest, func(i, j int) bool { return manifest[i].FileName < manifest[j].FileName })
	sort.Slice(packedFiles, func(i, j int) bool { return packedFiles[i].name < packedFiles[j].name })

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal MANIFEST.json: %w", err)
	}
	manifestJSON = append(manifestJSON, '\n')

	manifestSum := sha256.Sum256(manifestJSON)
	manifestSHA := []byte(fmt.Sprintf("SHA256(MANIFEST.json)=%s\n", hex.EncodeToString(manifestSum[:])))

	files := map[string][]byte{
		"MANIFEST.json":   manifestJSON,
		"MANIFEST.sha256": manifestSHA,
	}
	for _, p := range packedFiles {
		files["sources/"+p.name] = p.content
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
	id := hash[:32]
	storagePointer := fmt.Sprintf("company_research/%s/runs/%s/%s.zip", tenant, runID, id)
	rec := &corestore.ExportPack{
		ID:             id,
		Tenant:         tenant,
		RunID:          runID,
		Kind:           "evidence_bundle",
		StoragePointer: storagePointer,
		SHA256:         hash,
		SizeBytes:      int64(len(archive)),
	}
	if err := store.InsertExportPack(ctx, rec); err != nil {
		return nil, fmt.Errorf("record evidence bundle: %w", err)
	}

	return &Bundle{Record: rec, ArchiveName: id + ".zip", Bytes: archive}, nil
}

func documentBytes(d *corestore.SourceDocument) []byte {
	if len(d.ContentBytes) > 0 {
		return d.ContentBytes
	}
	return []byte(d.ContentText)
}

func contentTypeFor(d *corestore.SourceDocument) string {
	if d.MimeType != "" {
		return d.MimeType
	}
	return "application/octet-stream"
}

// fileNameFor derives a stable, collision-free file name for a document.
// The base name favors the document id (stable, unique) over the source
// type alone, with a numeric suffix only in the (practically unreachable,
// since ids are unique) case of a collision.
func fileNameFor(d *corestore.SourceDocument, used map[string]int) string {
	ext := extensionFor(d)
	base := fmt.Sprintf("%s_%s", d.SourceType, d.ID)
	name := base + ext
	n := used[name]
	used[name]++
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}

func extensionFor(d *corestore.SourceDocument) string {
	switch d.SourceType {
	case corestore.SourceTypePDF:
		return ".pdf"
	case corestore.SourceTypeProviderJSON, corestore.SourceTypeLLMJSON:
		return ".json"
	case corestore.SourceTypeText:
		return ".txt"
	default:
		return ".html"
	}
}

// packZip mirrors exportpack's determinism rules: alphabetical entry order,
// deflate, zeroed Modified time.
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
