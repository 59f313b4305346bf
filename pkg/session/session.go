// Package session implements a thin session/transaction façade over the
// pool, routing and bookmark packages: it borrows a connection for the
// requested role, runs a query or transaction function through it with
// retry, and returns it. It intentionally stops there — driver/session/
// transaction/result objects meant for application code are not this
// package's concern.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/orneryd/bolt-core/pkg/bolt"
	"github.com/orneryd/bolt-core/pkg/boltcore"
	"github.com/orneryd/bolt-core/pkg/boltlog"
	"github.com/orneryd/bolt-core/pkg/bookmark"
	"github.com/orneryd/bolt-core/pkg/pool"
	"github.com/orneryd/bolt-core/pkg/retry"
	"github.com/orneryd/bolt-core/pkg/routing"
)

// Result is the outcome of one RUN/PULL cycle: the field names from RUN's
// SUCCESS and every record delivered before the final has_more=false.
type Result struct {
	Keys    []string
	Records [][]any
}

// Transaction is handed to a TransactionWork callback; it may run any
// number of queries before the coordinator commits or rolls back. Each RUN
// runs to completion (every record pulled) before the next one starts.
type Transaction struct {
	conn *bolt.Connection
}

// Run sends query as a RUN against the open transaction and pulls every
// record the server has to offer.
func (tx *Transaction) Run(ctx context.Context, query string, params map[string]any) (*Result, error) {
	var keys []string
	var opErr error

	runObs := &bolt.Observer{
		OnSuccess: func(meta map[string]any) { keys = stringSlice(meta["fields"]) },
		OnFailure: func(err error) { opErr = err },
	}
	if err := tx.conn.Run(ctx, query, params, bolt.TxMetadata{}, runObs); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	var records [][]any
	for {
		hasMore := false
		pullObs := &bolt.Observer{
			OnRecord:  func(fields []any) { records = append(records, fields) },
			OnSuccess: func(meta map[string]any) { hasMore, _ = meta["has_more"].(bool) },
			OnFailure: func(err error) { opErr = err },
		}
		if err := tx.conn.Pull(ctx, -1, -1, pullObs); err != nil {
			return nil, err
		}
		if opErr != nil {
			return nil, opErr
		}
		if !hasMore {
			break
		}
	}
	return &Result{Keys: keys, Records: records}, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// TransactionWork is retried as a unit by Coordinator.
type TransactionWork func(tx *Transaction) (any, error)

// Coordinator owns the shared pool, routing and bookmark state that every
// Session borrows from.
type Coordinator struct {
	pool         *pool.Pool
	rediscoverer *routing.Rediscoverer
	bookmarks    *bookmark.Manager
	retryCfg     retry.Config
	log          logr.Logger

	readIdx, writeIdx routing.RoundRobinIndex
}

// NewCoordinator builds a Coordinator over an already-configured pool,
// rediscoverer and bookmark manager.
func NewCoordinator(p *pool.Pool, r *routing.Rediscoverer, bm *bookmark.Manager, retryCfg retry.Config, log logr.Logger) *Coordinator {
	return &Coordinator{pool: p, rediscoverer: r, bookmarks: bm, retryCfg: retryCfg, log: boltlog.OrDefault(log)}
}

// NewSession opens a Session scoped to database (empty string selects the
// default database) and an optional impersonated user.
func (c *Coordinator) NewSession(database, impersonatedUser string) *Session {
	return &Session{coordinator: c, database: database, impersonatedUser: impersonatedUser}
}

// selectServer asks the routing layer for a server of the requested role:
// the routing table is consulted (refreshed if stale), then least-connected
// load balancing picks one address from it.
func (c *Coordinator) selectServer(ctx context.Context, mode routing.Mode, database, impersonatedUser string) (string, error) {
	bookmarks := c.bookmarks.Snapshot(database)
	table, err := c.rediscoverer.Rediscover(ctx, database, impersonatedUser, bookmarks, mode)
	if err != nil {
		return "", err
	}

	addrs, idx := table.Readers, &c.readIdx
	if mode == routing.ModeWrite {
		addrs, idx = table.Writers, &c.writeIdx
	}
	if len(addrs) == 0 {
		return "", boltcore.Newf(boltcore.CodeRoutingFailure, "no %s servers available for database %q", mode, database)
	}

	address := routing.LeastConnected(addrs, func(a string) int {
		active, _ := c.pool.Stats(a)
		return active
	}, idx)
	return address, nil
}

// classify maps a transaction error to a routing-table action: security
// errors are left to the caller (already surfaced via ErrorHandlers on the
// connection itself), availability errors forget the address everywhere,
// write-only failures forget it as a writer only.
func (c *Coordinator) classify(err error, database, address string) {
	code := boltcore.CodeOf(err)
	switch {
	case boltcore.IsAvailability(code):
		c.rediscoverer.Forget(database, address, false)
	case boltcore.IsWriteFailure(code):
		c.rediscoverer.Forget(database, address, true)
	}
}

// runOnce acquires a connection for mode, runs one managed transaction
// through work, and releases the connection whether it succeeded or not.
func (c *Coordinator) runOnce(ctx context.Context, mode routing.Mode, database, impersonatedUser string, work TransactionWork) (any, error) {
	address, err := c.selectServer(ctx, mode, database, impersonatedUser)
	if err != nil {
		return nil, err
	}

	res, err := c.pool.Acquire(ctx, address, false)
	if err != nil {
		return nil, err
	}
	conn, ok := res.(*bolt.Connection)
	if !ok {
		return nil, fmt.Errorf("session: pool resource for %s is not a *bolt.Connection", address)
	}
	defer c.pool.Release(ctx, address, res)

	observedInput, err := c.bookmarks.BeginInput(database)
	if err != nil {
		return nil, err
	}

	tx := bolt.TxMetadata{
		Bookmarks:        observedInput,
		AccessMode:       string(mode),
		Database:         database,
		ImpersonatedUser: impersonatedUser,
	}
	if err := conn.BeginTransaction(ctx, tx); err != nil {
		c.classify(err, database, address)
		return nil, err
	}

	result, workErr := work(&Transaction{conn: conn})
	if workErr != nil {
		if rbErr := conn.Rollback(ctx); rbErr != nil {
			c.log.V(1).Info("rollback after transaction function error also failed", "address", address, "rollbackError", rbErr)
		}
		c.classify(workErr, database, address)
		return nil, workErr
	}

	meta, err := conn.Commit(ctx)
	if err != nil {
		c.classify(err, database, address)
		return nil, err
	}
	if bm, ok := meta["bookmark"].(string); ok && bm != "" {
		err = c.bookmarks.Update(database, observedInput, []string{bm})
	} else {
		err = c.bookmarks.Update(database, observedInput, nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Session is a per-use handle through which application code runs managed
// or auto-commit queries.
type Session struct {
	coordinator *Coordinator
	database, impersonatedUser string

	mu      sync.Mutex
	conn    *bolt.Connection
	address string
}

// ExecuteRead runs work as a managed, retried read transaction.
func (s *Session) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return retry.Run(ctx, s.coordinator.retryCfg, func(ctx context.Context) (any, error) {
		return s.coordinator.runOnce(ctx, routing.ModeRead, s.database, s.impersonatedUser, work)
	})
}

// ExecuteWrite runs work as a managed, retried write transaction.
func (s *Session) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return retry.Run(ctx, s.coordinator.retryCfg, func(ctx context.Context) (any, error) {
		return s.coordinator.runOnce(ctx, routing.ModeWrite, s.database, s.impersonatedUser, work)
	})
}

// Run executes query as an auto-commit statement, holding its connection
// open across subsequent Run calls until Close (or the next Run replaces
// it). Auto-commit queries default to write access mode, matching the real
// driver's session default.
func (s *Session) Run(ctx context.Context, query string, params map[string]any) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeHeldConnLocked(ctx); err != nil {
		return nil, err
	}

	address, err := s.coordinator.selectServer(ctx, routing.ModeWrite, s.database, s.impersonatedUser)
	if err != nil {
		return nil, err
	}
	res, err := s.coordinator.pool.Acquire(ctx, address, false)
	if err != nil {
		return nil, err
	}
	conn := res.(*bolt.Connection)
	s.conn, s.address = conn, address

	observedInput, err := s.coordinator.bookmarks.BeginInput(s.database)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{conn: conn}
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		s.coordinator.classify(err, s.database, address)
		return nil, err
	}
	_ = s.coordinator.bookmarks.Update(s.database, observedInput, nil)
	return result, nil
}

// Close releases any connection still held by this session, first
// discarding an outstanding stream so the server's view of the connection
// is clean before it returns to the pool.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeHeldConnLocked(ctx)
}

func (s *Session) closeHeldConnLocked(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	conn, address := s.conn, s.address
	s.conn, s.address = nil, ""

	if conn.HasOngoingObservableRequests() {
		if err := conn.Discard(ctx, -1, -1, nil); err != nil {
			return err
		}
	}
	s.coordinator.pool.Release(ctx, address, conn)
	return nil
}
