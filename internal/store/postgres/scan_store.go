package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ScanStore implements domain.ScanStore using PostgreSQL. Only the run
// summary lives in scan_runs; the opportunities themselves are rows in the
// opportunities table keyed by scan_id, and GetByID stitches them back in.
type ScanStore struct {
	pool *pgxpool.Pool
}

// NewScanStore creates a new ScanStore backed by the given connection pool.
func NewScanStore(pool *pgxpool.Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

var _ domain.ScanStore = (*ScanStore)(nil)

const scanCols = `id, started_at, finished_at, duration_ms,
	pairs_scanned, pairs_skipped, evaluated, found, top_net_profit`

// Insert stores a scan run summary. Opportunities on the report are not
// written here; persist those through the opportunity store.
func (s *ScanStore) Insert(ctx context.Context, report domain.ScanReport) error {
	const query = `
		INSERT INTO scan_runs (
			id, started_at, finished_at, duration_ms,
			pairs_scanned, pairs_skipped, evaluated, found, top_net_profit
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		report.ID, report.StartedAt, report.FinishedAt, report.Duration.Milliseconds(),
		report.PairsScanned, report.PairsSkipped, report.Evaluated, report.Found, report.TopNetProfit,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert scan run %s: %w", report.ID, err)
	}
	return nil
}

func scanReport(row pgx.Row) (domain.ScanReport, error) {
	var (
		report     domain.ScanReport
		durationMs int64
	)
	err := row.Scan(
		&report.ID, &report.StartedAt, &report.FinishedAt, &durationMs,
		&report.PairsScanned, &report.PairsSkipped, &report.Evaluated, &report.Found, &report.TopNetProfit,
	)
	if err != nil {
		return domain.ScanReport{}, err
	}
	report.Duration = time.Duration(durationMs) * time.Millisecond
	return report, nil
}

// GetByID retrieves a scan run with its opportunities, best first.
func (s *ScanStore) GetByID(ctx context.Context, id string) (domain.ScanReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scanCols+` FROM scan_runs WHERE id = $1`, id)

	report, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanReport{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("postgres: get scan run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+oppCols+` FROM opportunities WHERE scan_id = $1 ORDER BY net_profit DESC`, id)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("postgres: scan run %s opportunities: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return domain.ScanReport{}, fmt.Errorf("postgres: scan run opportunity: %w", err)
		}
		report.Opportunities = append(report.Opportunities, opp)
	}
	if err := rows.Err(); err != nil {
		return domain.ScanReport{}, fmt.Errorf("postgres: scan run opportunities rows: %w", err)
	}
	return report, nil
}

func (s *ScanStore) queryReports(ctx context.Context, query string, args ...any) ([]domain.ScanReport, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query scan runs: %w", err)
	}
	defer rows.Close()

	var reports []domain.ScanReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan runs rows: %w", err)
	}
	return reports, nil
}

// ListRecent returns the latest scan run summaries, newest first.
// Opportunities are left nil to keep list responses small.
func (s *ScanStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanReport, error) {
	query := `SELECT ` + scanCols + ` FROM scan_runs ORDER BY started_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.queryReports(ctx, query, args...)
}

// ListBefore returns scan run summaries started strictly before the cutoff,
// oldest first.
func (s *ScanStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ScanReport, error) {
	query := `SELECT ` + scanCols + ` FROM scan_runs WHERE started_at < $1 ORDER BY started_at ASC`
	return s.queryReports(ctx, query, before)
}

// DeleteBefore removes scan runs started strictly before the cutoff and
// reports how many rows were deleted.
func (s *ScanStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scan_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete scan runs before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
