package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

const oppCols = `id, scan_id, pair, buy_venue, sell_venue,
	trade_amount, buy_price, sell_price, tokens_out,
	gross_profit, gas_cost, net_profit,
	buy_impact, sell_impact, confidence, block_number, detected_at`

const oppInsert = `
	INSERT INTO opportunities (
		id, scan_id, pair_key, pair, buy_venue, sell_venue,
		trade_amount, buy_price, sell_price, tokens_out,
		gross_profit, gas_cost, net_profit,
		buy_impact, sell_impact, confidence, block_number, detected_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13,
		$14, $15, $16, $17, $18
	)`

func oppInsertArgs(opp domain.Opportunity) ([]any, error) {
	pairJSON, err := json.Marshal(opp.Pair)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal opportunity pair: %w", err)
	}
	return []any{
		opp.ID, opp.ScanID, opp.Pair.Key(), pairJSON, opp.BuyVenue, opp.SellVenue,
		opp.TradeAmount, opp.BuyPrice, opp.SellPrice, opp.TokensOut,
		opp.GrossProfit, opp.GasCost, opp.NetProfit,
		opp.BuyImpact, opp.SellImpact, opp.Confidence, int64(opp.BlockNumber), opp.DetectedAt,
	}, nil
}

// Insert stores a single evaluated opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	args, err := oppInsertArgs(opp)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, oppInsert, args...); err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// InsertBatch stores multiple opportunities in a single batch round trip.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, opp := range opps {
		args, err := oppInsertArgs(opp)
		if err != nil {
			return err
		}
		batch.Queue(oppInsert, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		opp      domain.Opportunity
		pairJSON []byte
		block    int64
	)
	err := row.Scan(
		&opp.ID, &opp.ScanID, &pairJSON, &opp.BuyVenue, &opp.SellVenue,
		&opp.TradeAmount, &opp.BuyPrice, &opp.SellPrice, &opp.TokensOut,
		&opp.GrossProfit, &opp.GasCost, &opp.NetProfit,
		&opp.BuyImpact, &opp.SellImpact, &opp.Confidence, &block, &opp.DetectedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := json.Unmarshal(pairJSON, &opp.Pair); err != nil {
		return domain.Opportunity{}, fmt.Errorf("unmarshal pair: %w", err)
	}
	opp.BlockNumber = uint64(block)
	return opp, nil
}

// GetByID retrieves an opportunity by its primary key.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+oppCols+` FROM opportunities WHERE id = $1`, id)

	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

func (s *OpportunityStore) queryOpportunities(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunities rows: %w", err)
	}
	return opps, nil
}

// ListRecent returns the most recently detected opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.queryOpportunities(ctx, query, args...)
}

// ListByPair returns opportunities for one pair with pagination and optional
// time filtering.
func (s *OpportunityStore) ListByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppCols + ` FROM opportunities WHERE pair_key = $1`
	args := []any{pairKey}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND detected_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY detected_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryOpportunities(ctx, query, args...)
}

// ListBefore returns opportunities detected strictly before the cutoff,
// oldest first. The archiver reads batches in this order so a partial sweep
// still archives a contiguous prefix.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`
	return s.queryOpportunities(ctx, query, before)
}

// DeleteBefore removes opportunities detected strictly before the cutoff and
// reports how many rows were deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
