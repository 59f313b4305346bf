package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/orneryd/bolt-core/pkg/boltcore"
)

// RouteFetcher sends ROUTE (protocol ≥ v4.3) or runs the built-in routing
// query (earlier protocols) against address and parses the reply into a
// Table (spec §4.6 step 3). Supplied by the session/driver layer, which
// owns the connection pool and protocol version.
type RouteFetcher func(ctx context.Context, address, database, impersonatedUser string, bookmarks []string) (*Table, error)

type inflightCall struct {
	done   chan struct{}
	table  *Table
	err    error
}

// Rediscoverer fetches and caches routing tables per database, coalescing
// concurrent callers for the same database (spec §4.6 "Concurrency of
// rediscovery"). The fresh-table cache is ristretto-backed for TTL
// eviction; the last-known table (even once stale) is kept separately so a
// stale table's routers remain the first candidates to retry, per spec
// step 3(a).
type Rediscoverer struct {
	fetch    RouteFetcher
	resolver SeedResolver
	seed     string

	fresh *ristretto.Cache[string, *Table]

	mu        sync.Mutex
	lastKnown map[string]*Table
	inflight  map[string]*inflightCall
}

// NewRediscoverer builds a Rediscoverer. seed is the initial bolt+routing
// URL host; its resolved addresses are tried after the known routers for a
// database, or alone when none are known yet.
func NewRediscoverer(seed string, resolver SeedResolver, fetch RouteFetcher) (*Rediscoverer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Table]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("routing: building table cache: %w", err)
	}
	return &Rediscoverer{
		fetch:     fetch,
		resolver:  resolver,
		seed:      seed,
		fresh:     cache,
		lastKnown: make(map[string]*Table),
		inflight:  make(map[string]*inflightCall),
	}, nil
}

// Rediscover returns a routing table usable for mode, refreshing it if
// necessary (spec §4.6).
func (r *Rediscoverer) Rediscover(ctx context.Context, database, impersonatedUser string, bookmarks []string, mode Mode) (*Table, error) {
	if t, ok := r.fresh.Get(database); ok && !t.IsStaleFor(mode) {
		return t, nil
	}
	return r.coalesced(ctx, database, impersonatedUser, bookmarks)
}

func (r *Rediscoverer) coalesced(ctx context.Context, database, impersonatedUser string, bookmarks []string) (*Table, error) {
	r.mu.Lock()
	if call, ok := r.inflight[database]; ok {
		r.mu.Unlock()
		<-call.done
		return call.table, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[database] = call
	r.mu.Unlock()

	call.table, call.err = r.doRediscover(ctx, database, impersonatedUser, bookmarks)

	r.mu.Lock()
	delete(r.inflight, database)
	r.mu.Unlock()
	close(call.done)
	return call.table, call.err
}

func (r *Rediscoverer) doRediscover(ctx context.Context, database, impersonatedUser string, bookmarks []string) (*Table, error) {
	for _, addr := range r.candidates(ctx, database) {
		table, err := r.fetch(ctx, addr, database, impersonatedUser, bookmarks)
		if err != nil {
			continue
		}
		table.Expiration = expirationFromTTL(time.Now(), table.TTL)

		r.mu.Lock()
		r.lastKnown[database] = table
		r.mu.Unlock()
		r.fresh.SetWithTTL(database, table, 1, table.TTL)
		r.fresh.Wait()
		return table, nil
	}
	return nil, boltcore.New(boltcore.CodeServiceUnavailable, "routing: no router could be reached for database "+database)
}

// candidates builds spec §4.6 step 2's ordered candidate list: known
// routers first, the resolved seed as fallback.
func (r *Rediscoverer) candidates(ctx context.Context, database string) []string {
	r.mu.Lock()
	last := r.lastKnown[database]
	r.mu.Unlock()

	var out []string
	if last != nil {
		out = append(out, last.Routers...)
	}
	if r.resolver != nil {
		if resolved, err := r.resolver.Resolve(ctx, r.seed); err == nil {
			out = append(out, resolved...)
		}
	}
	return out
}

// Forget applies a routing-aware error transform to the last-known table
// for database (spec §4.8 onUnavailability/onWriteFailure).
func (r *Rediscoverer) Forget(database, address string, writerOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.lastKnown[database]
	if t == nil {
		return
	}
	if writerOnly {
		t.ForgetWriter(address)
	} else {
		t.Forget(address)
	}
	r.fresh.Del(database)
}
