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

// pairsTTL keeps a forgotten mirror from serving arbitrarily old discovery
// output. The registry applies its own, much tighter, staleness horizon.
const pairsTTL = 48 * time.Hour

// PairRegistryCache implements domain.PairRegistryCache by mirroring the most
// recent discovery output as a single JSON document.
//
// Key schema:
//
//	{prefix}:pairs:active - JSON array of DiscoveredPair
type PairRegistryCache struct {
	client *Client
	rdb    *redis.Client
}

// NewPairRegistryCache creates a PairRegistryCache backed by the given
// Client.
func NewPairRegistryCache(c *Client) *PairRegistryCache {
	return &PairRegistryCache{client: c, rdb: c.Underlying()}
}

func (pc *PairRegistryCache) key() string {
	return pc.client.key("pairs", "active")
}

// SetAll replaces the mirrored pair set wholesale.
func (pc *PairRegistryCache) SetAll(ctx context.Context, pairs []domain.DiscoveredPair) error {
	data, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("redis: marshal pair set: %w", err)
	}
	if err := pc.rdb.Set(ctx, pc.key(), data, pairsTTL).Err(); err != nil {
		return fmt.Errorf("redis: set pair set: %w", err)
	}
	return nil
}

// GetAll returns the mirrored pair set. It returns domain.ErrCacheMiss when
// no mirror exists.
func (pc *PairRegistryCache) GetAll(ctx context.Context) ([]domain.DiscoveredPair, error) {
	data, err := pc.rdb.Get(ctx, pc.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: get pair set: %w", err)
	}

	var pairs []domain.DiscoveredPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("redis: unmarshal pair set: %w", err)
	}
	return pairs, nil
}

// Compile-time interface check.
var _ domain.PairRegistryCache = (*PairRegistryCache)(nil)
