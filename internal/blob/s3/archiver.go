package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// OpportunityArchiveSource is the slice of the opportunity store the
// archiver needs. The Postgres store satisfies it implicitly.
type OpportunityArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ScanArchiveSource is the slice of the scan store the archiver needs.
type ScanArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ScanReport, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiverDeps bundles the archiver's collaborators. Audit is optional.
type ArchiverDeps struct {
	Writer        domain.BlobWriter
	Reader        domain.BlobReader
	Opportunities OpportunityArchiveSource
	ScanRuns      ScanArchiveSource
	Audit         domain.AuditStore
	Logger        *slog.Logger
}

// ArchiverConfig tunes a sweep. BatchSize caps rows moved per call (zero
// means unbounded); Prefix is prepended to every object key.
type ArchiverConfig struct {
	BatchSize int
	Prefix    string
}

// Archiver implements domain.Archiver. Each sweep reads rows older than the
// cutoff in timestamp order, uploads them as one JSONL object, verifies the
// object landed, and only then prunes the archived rows from the database.
// A failed upload or verification leaves the rows in place for the next
// sweep.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	opps   OpportunityArchiveSource
	scans  ScanArchiveSource
	audit  domain.AuditStore
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(deps ArchiverDeps, cfg ArchiverConfig) *Archiver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer: deps.Writer,
		reader: deps.Reader,
		opps:   deps.Opportunities,
		scans:  deps.ScanRuns,
		audit:  deps.Audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities moves opportunity rows detected before the cutoff to
// object storage and returns the number of rows pruned.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Rows arrive oldest first, so capping the batch keeps the archived set
	// a contiguous prefix. The prune cutoff then moves back to the first
	// unarchived row's timestamp; rows sharing that timestamp are archived
	// again next sweep rather than lost.
	pruneBefore := before
	if a.cfg.BatchSize > 0 && len(rows) > a.cfg.BatchSize {
		pruneBefore = rows[a.cfg.BatchSize].DetectedAt
		rows = rows[:a.cfg.BatchSize]
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := a.archivePath("opportunities", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, err
	}

	pruned, err := a.opps.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities prune: %w", err)
	}

	a.logArchive(ctx, "archive.opportunities", path, pruned, before)
	return pruned, nil
}

// ArchiveScanRuns moves scan run summaries started before the cutoff to
// object storage and returns the number of rows pruned. Opportunity rows
// referencing the runs are archived separately and keep their scan id.
func (a *Archiver) ArchiveScanRuns(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.scans.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	pruneBefore := before
	if a.cfg.BatchSize > 0 && len(rows) > a.cfg.BatchSize {
		pruneBefore = rows[a.cfg.BatchSize].StartedAt
		rows = rows[:a.cfg.BatchSize]
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs marshal: %w", err)
	}

	path := a.archivePath("scan_runs", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, err
	}

	pruned, err := a.scans.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs prune: %w", err)
	}

	a.logArchive(ctx, "archive.scan_runs", path, pruned, before)
	return pruned, nil
}

// upload writes the object and verifies it exists before the caller is
// allowed to prune.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	var err error
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive verify %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("s3blob: archive verify %s: object missing after upload", path)
	}
	return nil
}

// archivePath builds a per-sweep object key, e.g.
//
//	archive/opportunities/2024-03/01T040000Z.jsonl
//
// Keys embed the full cutoff timestamp because archived rows are pruned:
// reusing a month-level key would overwrite earlier sweeps.
func (a *Archiver) archivePath(kind string, before time.Time) string {
	ts := before.UTC()
	key := fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, ts.Format("2006-01"), ts.Format("02T150405Z"))
	if a.cfg.Prefix != "" {
		key = strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + key
	}
	return key
}

// logArchive records the sweep in the audit log when one is wired. Audit
// failures do not fail the sweep.
func (a *Archiver) logArchive(ctx context.Context, event, path string, count int64, before time.Time) {
	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.String("event", event),
		slog.String("path", path),
		slog.Int64("rows", count),
	)
	if a.audit == nil {
		return
	}
	if err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "archive audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// marshalJSONL serializes a slice as newline-delimited JSON, one compact
// record per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
