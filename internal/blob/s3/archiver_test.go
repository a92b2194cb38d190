package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellen-dev/dexscan/internal/domain"
)

type memWriter struct {
	objects        map[string][]byte
	multipartCalls int
	failPut        bool
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}}
}

func (w *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.failPut {
		return errors.New("put failed")
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	w.multipartCalls++
	return w.Put(ctx, path, data, "application/octet-stream")
}

type memReader struct {
	writer     *memWriter
	failExists bool
	neverThere bool
}

func (r *memReader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	buf, ok := r.writer.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (r *memReader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (r *memReader) Exists(ctx context.Context, path string) (bool, error) {
	if r.failExists {
		return false, errors.New("head failed")
	}
	if r.neverThere {
		return false, nil
	}
	_, ok := r.writer.objects[path]
	return ok, nil
}

type fakeOppSource struct {
	rows        []domain.Opportunity
	listErr     error
	deleteErr   error
	deleteCalls int
	deletedAt   time.Time
}

func (s *fakeOppSource) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Opportunity
	for _, row := range s.rows {
		if row.DetectedAt.Before(before) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeOppSource) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deleteCalls++
	s.deletedAt = before
	var n int64
	for _, row := range s.rows {
		if row.DetectedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type fakeScanSource struct {
	rows        []domain.ScanReport
	deleteCalls int
	deletedAt   time.Time
}

func (s *fakeScanSource) ListBefore(ctx context.Context, before time.Time) ([]domain.ScanReport, error) {
	var out []domain.ScanReport
	for _, row := range s.rows {
		if row.StartedAt.Before(before) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeScanSource) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	s.deleteCalls++
	s.deletedAt = before
	var n int64
	for _, row := range s.rows {
		if row.StartedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type memAudit struct {
	events  []string
	failLog bool
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	if a.failLog {
		return errors.New("audit down")
	}
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func oppAt(id string, at time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		BuyVenue:   "uniswap",
		SellVenue:  "sushiswap",
		NetProfit:  0.4,
		DetectedAt: at,
	}
}

func newTestArchiver(writer *memWriter, reader *memReader, opps *fakeOppSource, scans *fakeScanSource, audit *memAudit, cfg ArchiverConfig) *Archiver {
	return NewArchiver(ArchiverDeps{
		Writer:        writer,
		Reader:        reader,
		Opportunities: opps,
		ScanRuns:      scans,
		Audit:         audit,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)
}

func TestArchiveOpportunities(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	opps := &fakeOppSource{rows: []domain.Opportunity{
		oppAt("opp-1", base),
		oppAt("opp-2", base.Add(time.Hour)),
		oppAt("opp-3", base.AddDate(0, 2, 0)),
	}}
	writer := newMemWriter()
	reader := &memReader{writer: writer}
	audit := &memAudit{}
	arch := newTestArchiver(writer, reader, opps, &fakeScanSource{}, audit, ArchiverConfig{})

	cutoff := time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveOpportunities(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	wantPath := "archive/opportunities/2024-04/01T060000Z.jsonl"
	require.Contains(t, writer.objects, wantPath)

	lines := bytes.Split(bytes.TrimSpace(writer.objects[wantPath]), []byte("\n"))
	require.Len(t, lines, 2)
	var first domain.Opportunity
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "opp-1", first.ID)
	assert.Equal(t, "uniswap", first.BuyVenue)

	assert.Equal(t, 1, opps.deleteCalls)
	assert.Equal(t, cutoff, opps.deletedAt)
	assert.Equal(t, []string{"archive.opportunities"}, audit.events)
}

func TestArchiveOpportunitiesNothingToDo(t *testing.T) {
	writer := newMemWriter()
	opps := &fakeOppSource{}
	arch := newTestArchiver(writer, &memReader{writer: writer}, opps, &fakeScanSource{}, nil, ArchiverConfig{})

	count, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.objects)
	assert.Zero(t, opps.deleteCalls)
}

func TestArchiveBatchCapMovesPruneCutoff(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	opps := &fakeOppSource{rows: []domain.Opportunity{
		oppAt("opp-1", base),
		oppAt("opp-2", base.Add(1*time.Hour)),
		oppAt("opp-3", base.Add(2*time.Hour)),
	}}
	writer := newMemWriter()
	arch := newTestArchiver(writer, &memReader{writer: writer}, opps, &fakeScanSource{}, nil, ArchiverConfig{BatchSize: 2})

	count, err := arch.ArchiveOpportunities(context.Background(), base.AddDate(0, 1, 0))
	require.NoError(t, err)

	// Only the two oldest rows are archived and pruned; the cutoff retreats
	// to the first unarchived row so it survives for the next sweep.
	assert.EqualValues(t, 2, count)
	assert.Equal(t, base.Add(2*time.Hour), opps.deletedAt)

	require.Len(t, writer.objects, 1)
	for _, buf := range writer.objects {
		assert.Len(t, bytes.Split(bytes.TrimSpace(buf), []byte("\n")), 2)
	}
}

func TestArchiveUploadFailureLeavesRows(t *testing.T) {
	opps := &fakeOppSource{rows: []domain.Opportunity{
		oppAt("opp-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}}
	writer := newMemWriter()
	writer.failPut = true
	arch := newTestArchiver(writer, &memReader{writer: writer}, opps, &fakeScanSource{}, nil, ArchiverConfig{})

	_, err := arch.ArchiveOpportunities(context.Background(), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive upload")
	assert.Zero(t, opps.deleteCalls)
}

func TestArchiveVerifyFailureLeavesRows(t *testing.T) {
	opps := &fakeOppSource{rows: []domain.Opportunity{
		oppAt("opp-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}}
	writer := newMemWriter()
	reader := &memReader{writer: writer, neverThere: true}
	arch := newTestArchiver(writer, reader, opps, &fakeScanSource{}, nil, ArchiverConfig{})

	_, err := arch.ArchiveOpportunities(context.Background(), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object missing after upload")
	assert.Zero(t, opps.deleteCalls)
}

func TestArchiveScanRuns(t *testing.T) {
	scans := &fakeScanSource{rows: []domain.ScanReport{
		{ID: "scan-1", StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), PairsScanned: 5},
		{ID: "scan-2", StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), PairsScanned: 6},
	}}
	writer := newMemWriter()
	audit := &memAudit{}
	arch := newTestArchiver(writer, &memReader{writer: writer}, &fakeOppSource{}, scans, audit, ArchiverConfig{Prefix: "dexscan"})

	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveScanRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	wantPath := "dexscan/archive/scan_runs/2024-04/01T000000Z.jsonl"
	require.Contains(t, writer.objects, wantPath)

	var report domain.ScanReport
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(writer.objects[wantPath]), &report))
	assert.Equal(t, "scan-1", report.ID)
	assert.Equal(t, 5, report.PairsScanned)
	assert.Equal(t, []string{"archive.scan_runs"}, audit.events)
}

func TestArchiveAuditFailureIsSoft(t *testing.T) {
	opps := &fakeOppSource{rows: []domain.Opportunity{
		oppAt("opp-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}}
	writer := newMemWriter()
	audit := &memAudit{failLog: true}
	arch := newTestArchiver(writer, &memReader{writer: writer}, opps, &fakeScanSource{}, audit, ArchiverConfig{})

	count, err := arch.ArchiveOpportunities(context.Background(), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
