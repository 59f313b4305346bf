// Package bookmark implements the per-database causal bookmark set: an
// ordered set of opaque server-issued tokens describing transaction causal
// ordering, with pluggable supplier/consumer hooks and optional disk
// persistence grounded on badger's own DB/Txn construction style
// (badger.DefaultOptions / Open).
package bookmark

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Supplier contributes extra bookmarks merged into a transaction's BEGIN
// metadata without being persisted to the manager's store.
type Supplier func(database string) ([]string, error)

// Consumer observes the bookmark set after every Update — a synchronous
// pure function over the bookmark set.
type Consumer func(database string, bookmarks []string)

// Manager holds one monotone bookmark set per database.
type Manager struct {
	mu       sync.Mutex
	sets     map[string]map[string]struct{}
	supplier Supplier
	consumer Consumer
	store    *badger.DB
}

// Option configures a Manager.
type Option func(*Manager)

// WithSupplier installs the transaction-time bookmark supplier hook.
func WithSupplier(s Supplier) Option { return func(m *Manager) { m.supplier = s } }

// WithConsumer installs the post-update bookmark consumer hook.
func WithConsumer(c Consumer) Option { return func(m *Manager) { m.consumer = c } }

// WithBadgerStore enables disk persistence of the bookmark set across
// process restarts (disabled by default — the manager is otherwise purely
// in-memory).
func WithBadgerStore(db *badger.DB) Option { return func(m *Manager) { m.store = db } }

// NewManager builds a Manager with the given hooks/persistence.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{sets: make(map[string]map[string]struct{})}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		if err := m.loadAll(); err != nil {
			return nil, fmt.Errorf("bookmark: loading persisted sets: %w", err)
		}
	}
	return m, nil
}

// BeginInput returns the bookmarks to send in a new transaction's BEGIN/RUN
// metadata: the manager's stored set for database, unioned with whatever
// the supplier contributes for this call only.
func (m *Manager) BeginInput(database string) ([]string, error) {
	m.mu.Lock()
	stored := snapshot(m.sets[database])
	supplier := m.supplier
	m.mu.Unlock()

	if supplier == nil {
		return stored, nil
	}
	extra, err := supplier(database)
	if err != nil {
		return nil, fmt.Errorf("bookmark: supplier failed for %s: %w", database, err)
	}
	return union(stored, extra), nil
}

// Update replaces the bookmarks that were observed as input to a just-
// completed transaction (observedInput) with the bookmarks the server
// returned (newBookmarks): the new set replaces whatever was observed as
// input plus any supplier-contributed items (the latter were never
// persisted, so removing them from the stored set is a no-op).
func (m *Manager) Update(database string, observedInput, newBookmarks []string) error {
	m.mu.Lock()
	set, ok := m.sets[database]
	if !ok {
		set = make(map[string]struct{})
		m.sets[database] = set
	}
	for _, bm := range observedInput {
		delete(set, bm)
	}
	for _, bm := range newBookmarks {
		set[bm] = struct{}{}
	}
	result := snapshot(set)
	consumer := m.consumer
	m.mu.Unlock()

	if m.store != nil {
		if err := m.persist(database, result); err != nil {
			return err
		}
	}
	if consumer != nil {
		consumer(database, result)
	}
	return nil
}

// Snapshot returns the current stored bookmark set for database, without
// invoking the supplier.
func (m *Manager) Snapshot(database string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.sets[database])
}

func snapshot(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for bm := range set {
		out = append(out, bm)
	}
	sort.Strings(out)
	return out
}

func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	return snapshot(set)
}

func storeKey(database string) []byte { return []byte("bookmark:" + database) }

func (m *Manager) persist(database string, bookmarks []string) error {
	data, err := json.Marshal(bookmarks)
	if err != nil {
		return fmt.Errorf("bookmark: encoding set for %s: %w", database, err)
	}
	return m.store.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(database), data)
	})
}

func (m *Manager) loadAll() error {
	return m.store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("bookmark:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			database := string(item.Key()[len("bookmark:"):])
			var bookmarks []string
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &bookmarks)
			}); err != nil {
				return fmt.Errorf("bookmark: decoding set for %s: %w", database, err)
			}
			set := make(map[string]struct{}, len(bookmarks))
			for _, bm := range bookmarks {
				set[bm] = struct{}{}
			}
			m.sets[database] = set
		}
		return nil
	})
}
