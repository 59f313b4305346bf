package bookmark

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginInputReturnsStoredSetWhenNoSupplier(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	require.NoError(t, m.Update("neo4j", nil, []string{"bm-1", "bm-2"}))
	got, err := m.BeginInput("neo4j")
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-1", "bm-2"}, got)
}

func TestBeginInputMergesSupplierContributionsWithoutPersisting(t *testing.T) {
	m, err := NewManager(WithSupplier(func(database string) ([]string, error) {
		return []string{"extra-1"}, nil
	}))
	require.NoError(t, err)
	require.NoError(t, m.Update("neo4j", nil, []string{"bm-1"}))

	got, err := m.BeginInput("neo4j")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bm-1", "extra-1"}, got)

	// supplier contribution must not have been persisted to the store
	assert.Equal(t, []string{"bm-1"}, m.Snapshot("neo4j"))
}

func TestUpdateReplacesObservedInputWithNewBookmarks(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	require.NoError(t, m.Update("neo4j", nil, []string{"bm-1", "bm-2"}))
	require.NoError(t, m.Update("neo4j", []string{"bm-1", "bm-2"}, []string{"bm-3"}))

	assert.Equal(t, []string{"bm-3"}, m.Snapshot("neo4j"))
}

func TestUpdateLeavesUnobservedBookmarksInPlace(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	require.NoError(t, m.Update("neo4j", nil, []string{"bm-1", "bm-2"}))
	// a concurrent transaction only observed bm-1 as input
	require.NoError(t, m.Update("neo4j", []string{"bm-1"}, []string{"bm-3"}))

	assert.ElementsMatch(t, []string{"bm-2", "bm-3"}, m.Snapshot("neo4j"))
}

func TestUpdateInvokesConsumerWithResultingSet(t *testing.T) {
	var seenDB string
	var seenBookmarks []string
	m, err := NewManager(WithConsumer(func(database string, bookmarks []string) {
		seenDB = database
		seenBookmarks = bookmarks
	}))
	require.NoError(t, err)

	require.NoError(t, m.Update("system", nil, []string{"bm-1"}))
	assert.Equal(t, "system", seenDB)
	assert.Equal(t, []string{"bm-1"}, seenBookmarks)
}

func TestUpdatePersistsAndReloadsFromBadgerStore(t *testing.T) {
	dir := t.TempDir()
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewManager(WithBadgerStore(db))
	require.NoError(t, err)
	require.NoError(t, m.Update("neo4j", nil, []string{"bm-1", "bm-2"}))

	reloaded, err := NewManager(WithBadgerStore(db))
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-1", "bm-2"}, reloaded.Snapshot("neo4j"))
}

func TestSnapshotOfUnknownDatabaseIsEmpty(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	assert.Empty(t, m.Snapshot("unknown"))
}
