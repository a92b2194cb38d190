package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// defaultQuoteTTL bounds how long a pool snapshot may be served. Reserves
// move every block, so the window is deliberately short.
const defaultQuoteTTL = 15 * time.Second

// QuoteCache implements domain.QuoteCache using JSON-serialized VenueQuote
// values under short TTLs.
//
// Key schema:
//
//	{prefix}:quote:{venue}:{pairKey} - JSON VenueQuote
type QuoteCache struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A
// non-positive ttl falls back to the default.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &QuoteCache{client: c, rdb: c.Underlying(), ttl: ttl}
}

func (qc *QuoteCache) key(venue, pairKey string) string {
	return qc.client.key("quote", venue, pairKey)
}

// SetQuote stores a venue snapshot under the cache TTL. Quotes are immutable;
// a newer snapshot simply replaces the entry.
func (qc *QuoteCache) SetQuote(ctx context.Context, quote domain.VenueQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s/%s: %w", quote.Venue, quote.Pair.Key(), err)
	}
	if err := qc.rdb.Set(ctx, qc.key(quote.Venue, quote.Pair.Key()), data, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", quote.Venue, quote.Pair.Key(), err)
	}
	return nil
}

// GetQuote retrieves a cached snapshot. It returns domain.ErrCacheMiss when
// the entry does not exist or has expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue, pairKey string) (domain.VenueQuote, error) {
	data, err := qc.rdb.Get(ctx, qc.key(venue, pairKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.VenueQuote{}, domain.ErrCacheMiss
		}
		return domain.VenueQuote{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, pairKey, err)
	}

	var quote domain.VenueQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return domain.VenueQuote{}, fmt.Errorf("redis: unmarshal quote %s/%s: %w", venue, pairKey, err)
	}
	return quote, nil
}

// Invalidate removes a cached snapshot.
func (qc *QuoteCache) Invalidate(ctx context.Context, venue, pairKey string) error {
	if err := qc.rdb.Del(ctx, qc.key(venue, pairKey)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate quote %s/%s: %w", venue, pairKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
