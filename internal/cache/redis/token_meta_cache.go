package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// TokenMetaCache implements domain.TokenMetaCache using Redis hashes, one per
// token contract. Token metadata never changes on chain, so entries carry no
// TTL.
//
// Key schema:
//
//	{prefix}:token:{address} - hash with fields "symbol", "decimals", "tier"
type TokenMetaCache struct {
	client *Client
	rdb    *redis.Client
}

// NewTokenMetaCache creates a TokenMetaCache backed by the given Client.
func NewTokenMetaCache(c *Client) *TokenMetaCache {
	return &TokenMetaCache{client: c, rdb: c.Underlying()}
}

func (tc *TokenMetaCache) key(address string) string {
	return tc.client.key("token", domain.NormalizeAddress(address))
}

// SetToken stores token metadata keyed by contract address.
func (tc *TokenMetaCache) SetToken(ctx context.Context, token domain.Token) error {
	fields := map[string]interface{}{
		"symbol":   token.Symbol,
		"decimals": strconv.Itoa(int(token.Decimals)),
		"tier":     string(token.Tier),
	}
	if err := tc.rdb.HSet(ctx, tc.key(token.Address), fields).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", token.Address, err)
	}
	return nil
}

// GetToken retrieves token metadata by contract address. It returns
// domain.ErrCacheMiss when the token is unknown.
func (tc *TokenMetaCache) GetToken(ctx context.Context, address string) (domain.Token, error) {
	vals, err := tc.rdb.HGetAll(ctx, tc.key(address)).Result()
	if err != nil {
		return domain.Token{}, fmt.Errorf("redis: get token %s: %w", address, err)
	}
	if len(vals) == 0 {
		return domain.Token{}, domain.ErrCacheMiss
	}

	decimals, err := strconv.Atoi(vals["decimals"])
	if err != nil {
		return domain.Token{}, fmt.Errorf("redis: parse decimals for %s: %w", address, err)
	}

	return domain.Token{
		Symbol:   vals["symbol"],
		Address:  domain.NormalizeAddress(address),
		Decimals: uint8(decimals),
		Tier:     domain.PriorityTier(vals["tier"]),
	}, nil
}

// Compile-time interface check.
var _ domain.TokenMetaCache = (*TokenMetaCache)(nil)
