package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct{ addrs []string }

func (s stubResolver) Resolve(context.Context, string) ([]string, error) { return s.addrs, nil }

func TestRediscoverFallsBackToSeedWhenNoRoutersKnown(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	fetch := func(ctx context.Context, addr, db, imp string, bm []string) (*Table, error) {
		mu.Lock()
		seen = append(seen, addr)
		mu.Unlock()
		return &Table{Database: db, Routers: []string{addr}, Readers: []string{addr}, Writers: []string{addr}, TTL: time.Second}, nil
	}
	r, err := NewRediscoverer("seed:7687", stubResolver{addrs: []string{"seed:7687"}}, fetch)
	require.NoError(t, err)

	table, err := r.Rediscover(context.Background(), "neo4j", "", nil, ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed:7687"}, table.Routers)
	assert.Equal(t, []string{"seed:7687"}, seen)
}

func TestRediscoverUsesKnownRoutersBeforeReResolving(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, addr, db, imp string, bm []string) (*Table, error) {
		calls++
		return &Table{Database: db, Routers: []string{addr}, Readers: []string{addr}, Writers: []string{addr}, TTL: time.Millisecond}, nil
	}
	r, err := NewRediscoverer("seed:7687", stubResolver{addrs: []string{"seed:7687"}}, fetch)
	require.NoError(t, err)

	_, err = r.Rediscover(context.Background(), "neo4j", "", nil, ModeRead)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond) // let the TTL lapse so the next call re-fetches

	_, err = r.Rediscover(context.Background(), "neo4j", "", nil, ModeRead)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRediscoverFailsWhenNoCandidateSucceeds(t *testing.T) {
	fetch := func(ctx context.Context, addr, db, imp string, bm []string) (*Table, error) {
		return nil, assert.AnError
	}
	r, err := NewRediscoverer("seed:7687", stubResolver{addrs: []string{"seed:7687"}}, fetch)
	require.NoError(t, err)

	_, err = r.Rediscover(context.Background(), "neo4j", "", nil, ModeRead)
	assert.Error(t, err)
}

func TestRediscoverCoalescesConcurrentCallers(t *testing.T) {
	var calls int
	var mu sync.Mutex
	release := make(chan struct{})
	fetch := func(ctx context.Context, addr, db, imp string, bm []string) (*Table, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return &Table{Database: db, Routers: []string{addr}, Readers: []string{addr}, Writers: []string{addr}, TTL: time.Second}, nil
	}
	r, err := NewRediscoverer("seed:7687", stubResolver{addrs: []string{"seed:7687"}}, fetch)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Rediscover(context.Background(), "neo4j", "", nil, ModeRead)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
