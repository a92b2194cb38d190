package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PairCacheStore persists the discovery registry between runs. Save replaces
// the stored set wholesale; Load returns everything, fresh or stale, and the
// registry applies the staleness horizon itself. Failures here are logged by
// callers, never fatal to a running process.
type PairCacheStore interface {
	Load(ctx context.Context) ([]DiscoveredPair, error)
	Save(ctx context.Context, pairs []DiscoveredPair) error
}

// OpportunityStore persists evaluated opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	InsertBatch(ctx context.Context, opps []Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListByPair(ctx context.Context, pairKey string, opts ListOpts) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ScanStore persists scan run summaries.
type ScanStore interface {
	Insert(ctx context.Context, report ScanReport) error
	GetByID(ctx context.Context, id string) (ScanReport, error)
	ListRecent(ctx context.Context, limit int) ([]ScanReport, error)
	ListBefore(ctx context.Context, before time.Time) ([]ScanReport, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
