package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// PairStore implements domain.PairCacheStore using PostgreSQL. Save replaces
// the stored registry wholesale inside a single transaction, so a reader
// never observes a half-written snapshot.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a new PairStore backed by the given connection pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

var _ domain.PairCacheStore = (*PairStore)(nil)

// Save replaces the persisted registry with the given set.
func (s *PairStore) Save(ctx context.Context, pairs []domain.DiscoveredPair) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin pairs tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM pairs`); err != nil {
		return fmt.Errorf("postgres: clear pairs: %w", err)
	}

	const query = `
		INSERT INTO pairs (
			pair_key, pair, quotes,
			total_liquidity, liquidity_ratio, price_deviation_pct,
			tier, score, rank, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for _, p := range pairs {
		pairJSON, err := json.Marshal(p.Pair)
		if err != nil {
			return fmt.Errorf("postgres: marshal pair %s: %w", p.Pair.Key(), err)
		}
		quotesJSON, err := json.Marshal(p.Quotes)
		if err != nil {
			return fmt.Errorf("postgres: marshal quotes for %s: %w", p.Pair.Key(), err)
		}
		batch.Queue(query,
			p.Pair.Key(), pairJSON, quotesJSON,
			p.Metrics.TotalLiquidity, p.Metrics.LiquidityRatio, p.Metrics.PriceDeviationPct,
			string(p.Tier), p.Score, p.Rank, p.CheckedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range pairs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: insert pair batch item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close pairs batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit pairs: %w", err)
	}
	return nil
}

// Load returns every persisted pair ordered by rank. Staleness is the
// caller's concern; rows are returned regardless of age.
func (s *PairStore) Load(ctx context.Context) ([]domain.DiscoveredPair, error) {
	const query = `
		SELECT pair, quotes,
			total_liquidity, liquidity_ratio, price_deviation_pct,
			tier, score, rank, checked_at
		FROM pairs ORDER BY rank ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.DiscoveredPair
	for rows.Next() {
		var (
			d          domain.DiscoveredPair
			pairJSON   []byte
			quotesJSON []byte
			tier       string
		)
		if err := rows.Scan(
			&pairJSON, &quotesJSON,
			&d.Metrics.TotalLiquidity, &d.Metrics.LiquidityRatio, &d.Metrics.PriceDeviationPct,
			&tier, &d.Score, &d.Rank, &d.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		if err := json.Unmarshal(pairJSON, &d.Pair); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal pair: %w", err)
		}
		if len(quotesJSON) > 0 {
			if err := json.Unmarshal(quotesJSON, &d.Quotes); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal quotes: %w", err)
			}
		}
		d.Tier = domain.PriorityTier(tier)
		pairs = append(pairs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load pairs rows: %w", err)
	}
	return pairs, nil
}
