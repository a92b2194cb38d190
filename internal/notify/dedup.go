package notify

import (
	"sync"
	"time"
)

// dedup suppresses repeat alerts for the same key within a TTL window.
// Safe for concurrent use.
type dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// suppress reports whether the key fired within the window. A miss records
// the key and sweeps expired entries so the map stays bounded by the set of
// keys active within one window.
func (d *dedup) suppress(key string) bool {
	if d.ttl <= 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}

	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	d.seen[key] = now
	return false
}
