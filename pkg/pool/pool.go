// Package pool implements the per-address connection pool described by the
// driver core's concurrency model: an active set and an idle list per
// address, a bounded count of in-flight factory calls, and a FIFO of
// acquire requests retried on every release. The concurrency shape (a
// guarding mutex plus an atomic closed flag) follows the teacher's
// replication.ClusterTransport.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/orneryd/bolt-core/pkg/boltcore"
)

// Resource is anything the pool can hold: a *bolt.Connection satisfies this
// without pool needing to import the bolt package.
type Resource interface {
	IsHealthy() bool
	Close() error
}

// Factory dials and handshakes a new Resource for address.
type Factory func(ctx context.Context, address string) (Resource, error)

// Validator decides whether a resource may still be (re)used.
type Validator func(r Resource) bool

// Config bundles the pool's tunables (spec §6.6 maxConnectionPoolSize /
// connectionAcquisitionTimeout, surfaced here as plain fields since this
// package does not depend on pkg/config).
type Config struct {
	MaxSize            int
	AcquisitionTimeout time.Duration
	Factory            Factory
	ValidateOnAcquire  Validator
	ValidateOnRelease  Validator
}

type acquireRequest struct {
	requireNew bool
	resultCh   chan acquireResult
	timer      *time.Timer

	mu        sync.Mutex
	completed bool
}

type acquireResult struct {
	resource Resource
	err      error
}

func (r *acquireRequest) resolve(res Resource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return false
	}
	r.completed = true
	r.timer.Stop()
	r.resultCh <- acquireResult{resource: res}
	return true
}

func (r *acquireRequest) reject(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return false
	}
	r.completed = true
	r.resultCh <- acquireResult{err: err}
	return true
}

// addressEntry is the per-address pool state (spec §4.4 "Pool entry per
// address").
type addressEntry struct {
	active         map[Resource]struct{}
	idle           []Resource
	pendingCreates int
	waiters        []*acquireRequest
	closedForKey   bool
}

// Pool is the connection pool (spec §4.5).
type Pool struct {
	mu      sync.Mutex
	entries map[string]*addressEntry
	closed  atomic.Bool

	cfg Config

	activeGauge metric.Int64UpDownCounter
	idleGauge   metric.Int64UpDownCounter
}

// New builds a Pool. Panics are never raised on a nil meter provider —
// otel.GetMeterProvider's default no-ops every instrument.
func New(cfg Config) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	if cfg.AcquisitionTimeout <= 0 {
		cfg.AcquisitionTimeout = 60 * time.Second
	}
	meter := otel.Meter("bolt-core/pool")
	active, _ := meter.Int64UpDownCounter("bolt_core.pool.active_connections")
	idle, _ := meter.Int64UpDownCounter("bolt_core.pool.idle_connections")
	return &Pool{
		entries:     make(map[string]*addressEntry),
		cfg:         cfg,
		activeGauge: active,
		idleGauge:   idle,
	}
}

func (p *Pool) entryFor(address string) *addressEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[address]
	if !ok {
		e = &addressEntry{active: make(map[Resource]struct{})}
		p.entries[address] = e
	}
	return e
}

// Acquire returns a healthy connection for address, following spec §4.5's
// algorithm. requireNew forces a fresh factory call, skipping the idle
// list (used for a connection the caller knows must not share routing
// state with another in flight).
func (p *Pool) Acquire(ctx context.Context, address string, requireNew bool) (Resource, error) {
	if p.closed.Load() {
		return nil, boltcore.New(boltcore.CodePoolClosed, "pool is closed")
	}
	entry := p.entryFor(address)

	req := &acquireRequest{requireNew: requireNew, resultCh: make(chan acquireResult, 1)}
	req.timer = time.AfterFunc(p.cfg.AcquisitionTimeout, func() { p.onTimeout(address, entry, req) })

	if res, err, done := p.tryFulfil(ctx, address, entry, req); done {
		return res, err
	}

	p.mu.Lock()
	entry.waiters = append(entry.waiters, req)
	p.mu.Unlock()

	select {
	case r := <-req.resultCh:
		return r.resource, r.err
	case <-ctx.Done():
		if req.reject(ctx.Err()) {
			p.removeWaiter(entry, req)
		}
		r := <-req.resultCh
		return r.resource, r.err
	}
}

// tryFulfil implements spec §4.5 steps 3-4: pop a valid idle connection, or
// create a new one under the maxSize cap. Returns done=true if the request
// was resolved (successfully or not) without queueing.
func (p *Pool) tryFulfil(ctx context.Context, address string, entry *addressEntry, req *acquireRequest) (Resource, error, bool) {
	if !req.requireNew {
		for {
			p.mu.Lock()
			if len(entry.idle) == 0 {
				p.mu.Unlock()
				break
			}
			res := entry.idle[len(entry.idle)-1]
			entry.idle = entry.idle[:len(entry.idle)-1]
			p.mu.Unlock()
			p.idleGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("address", address)))

			if p.validOnAcquire(res) {
				p.mu.Lock()
				entry.active[res] = struct{}{}
				p.mu.Unlock()
				p.activeGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("address", address)))
				resolved := req.resolve(res)
				return res, nil, resolved
			}
			_ = res.Close()
		}
	}

	p.mu.Lock()
	if len(entry.active)+entry.pendingCreates >= p.cfg.MaxSize {
		p.mu.Unlock()
		return nil, nil, false
	}
	entry.pendingCreates++
	p.mu.Unlock()

	res, err := p.cfg.Factory(ctx, address)

	p.mu.Lock()
	entry.pendingCreates--
	p.mu.Unlock()

	if err != nil {
		wrapped := boltcore.New(boltcore.CodeServiceUnavailable, "connection factory failed").WithCause(err)
		return nil, wrapped, req.reject(wrapped)
	}
	p.mu.Lock()
	entry.active[res] = struct{}{}
	p.mu.Unlock()
	p.activeGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("address", address)))
	resolved := req.resolve(res)
	return res, nil, resolved
}

func (p *Pool) validOnAcquire(res Resource) bool {
	if !res.IsHealthy() {
		return false
	}
	if p.cfg.ValidateOnAcquire == nil {
		return true
	}
	return p.cfg.ValidateOnAcquire(res)
}

func (p *Pool) validOnRelease(res Resource) bool {
	if !res.IsHealthy() {
		return false
	}
	if p.cfg.ValidateOnRelease == nil {
		return true
	}
	return p.cfg.ValidateOnRelease(res)
}

// Release returns resource to address's idle list, or destroys it, then
// dispatches queued waiters for address in FIFO order until one cannot be
// fulfilled (spec §4.5 "run one waiter-dispatch iteration for this key").
func (p *Pool) Release(ctx context.Context, address string, res Resource) {
	entry := p.entryFor(address)

	p.mu.Lock()
	delete(entry.active, res)
	p.mu.Unlock()
	p.activeGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("address", address)))

	if entry.closedForKey || !p.validOnRelease(res) {
		_ = res.Close()
	} else {
		p.mu.Lock()
		entry.idle = append(entry.idle, res)
		p.mu.Unlock()
		p.idleGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("address", address)))
	}

	p.dispatchWaiters(ctx, address, entry)
}

// dispatchWaiters retries exactly the queued requests that tryFulfil can
// satisfy right now, in FIFO order.
func (p *Pool) dispatchWaiters(ctx context.Context, address string, entry *addressEntry) {
	for {
		p.mu.Lock()
		if len(entry.waiters) == 0 {
			p.mu.Unlock()
			return
		}
		req := entry.waiters[0]
		entry.waiters = entry.waiters[1:]
		p.mu.Unlock()

		if _, _, done := p.tryFulfil(ctx, address, entry, req); !done {
			// Could not fulfil yet (no idle, at cap); put it back at the
			// front and stop — a later release will retry it.
			p.mu.Lock()
			entry.waiters = append([]*acquireRequest{req}, entry.waiters...)
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pool) onTimeout(address string, entry *addressEntry, req *acquireRequest) {
	p.removeWaiter(entry, req)
	p.mu.Lock()
	activeCount := len(entry.active)
	idleCount := len(entry.idle)
	p.mu.Unlock()
	req.reject(boltcore.Newf(boltcore.CodeAcquisitionTimeout,
		"timed out acquiring connection to %s (active=%d idle=%d)", address, activeCount, idleCount))
}

func (p *Pool) removeWaiter(entry *addressEntry, target *acquireRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, req := range entry.waiters {
		if req == target {
			entry.waiters = append(entry.waiters[:i], entry.waiters[i+1:]...)
			return
		}
	}
}

// Purge destroys every idle connection for address and prevents future
// releases from refilling its idle list (spec §4.5).
func (p *Pool) Purge(address string) {
	entry := p.entryFor(address)
	p.mu.Lock()
	entry.closedForKey = true
	stale := entry.idle
	entry.idle = nil
	p.mu.Unlock()
	for _, res := range stale {
		_ = res.Close()
	}
}

// Close purges every known address concurrently and rejects all future
// acquires (spec §4.5 "close() awaits purges for every key concurrently").
func (p *Pool) Close() {
	p.closed.Store(true)
	p.mu.Lock()
	addresses := make([]string, 0, len(p.entries))
	for addr := range p.entries {
		addresses = append(addresses, addr)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			p.Purge(a)
		}(addr)
	}
	wg.Wait()
}

// Stats reports the current active/idle counts for address, for tests and
// diagnostics.
func (p *Pool) Stats(address string) (active, idle int) {
	entry := p.entryFor(address)
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(entry.active), len(entry.idle)
}
