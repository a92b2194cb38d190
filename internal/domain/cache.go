package domain

import (
	"context"
	"time"
)

// QuoteCache holds short-TTL venue quote snapshots keyed by venue and pair.
// Entries are idempotent within their TTL window, so concurrent misses that
// both fetch and store are harmless.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote VenueQuote) error
	GetQuote(ctx context.Context, venue, pairKey string) (VenueQuote, error)
	Invalidate(ctx context.Context, venue, pairKey string) error
}

// TokenMetaCache provides fast token metadata lookups (symbol, decimals)
// keyed by contract address.
type TokenMetaCache interface {
	SetToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, address string) (Token, error)
}

// PairRegistryCache mirrors the most recent discovery output for fast loads
// across processes. SetAll replaces the mirrored set wholesale.
type PairRegistryCache interface {
	SetAll(ctx context.Context, pairs []DiscoveredPair) error
	GetAll(ctx context.Context) ([]DiscoveredPair, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
