// Package routing implements the rediscovery state machine, routing-table
// cache, least-connected load balancer, and seed-address resolver (spec
// §4.6, §4.7). The coalescing and caching style follows the teacher's
// dependency stack: ristretto for the TTL-bounded table cache. Routing
// tables are held in memory only.
package routing

import (
	"time"
)

// Mode is the session access mode a routing table lookup is made for.
type Mode string

const (
	ModeRead  Mode = "r"
	ModeWrite Mode = "w"
)

// Table is a per-database routing table (spec §3 "Routing table").
type Table struct {
	Database   string
	Routers    []string
	Readers    []string
	Writers    []string
	TTL        time.Duration
	Expiration time.Time
}

// IsStaleFor reports whether the table may no longer be used to satisfy a
// request of the given mode (spec §4.6).
func (t *Table) IsStaleFor(mode Mode) bool {
	if t == nil {
		return true
	}
	if time.Now().After(t.Expiration) || time.Now().Equal(t.Expiration) {
		return true
	}
	if len(t.Routers) < 1 {
		return true
	}
	switch mode {
	case ModeRead:
		return len(t.Readers) == 0
	case ModeWrite:
		return len(t.Writers) == 0
	default:
		return false
	}
}

// Forget removes address from readers and writers, but not routers —
// preserving rediscovery capability through it (spec §4.6).
func (t *Table) Forget(address string) {
	t.Readers = remove(t.Readers, address)
	t.Writers = remove(t.Writers, address)
}

// ForgetWriter removes address from writers only.
func (t *Table) ForgetWriter(address string) {
	t.Writers = remove(t.Writers, address)
}

// ForgetRouter removes address from routers only.
func (t *Table) ForgetRouter(address string) {
	t.Routers = remove(t.Routers, address)
}

func remove(addrs []string, target string) []string {
	out := addrs[:0:0]
	for _, a := range addrs {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}

// expirationFromTTL computes spec §4.6's overflow-safe TTL expiration:
// "expiration = min(now + ttl_ms, INT64_MAX) with overflow detection".
func expirationFromTTL(now time.Time, ttl time.Duration) time.Time {
	const maxDuration = time.Duration(1<<63 - 1)
	if ttl <= 0 {
		return now
	}
	remaining := maxDuration - time.Duration(now.UnixNano())
	if ttl > remaining {
		return time.Unix(0, int64(maxDuration))
	}
	return now.Add(ttl)
}
