package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	id     int
	closed atomic.Bool
	health atomic.Bool
}

func newFakeResource(id int) *fakeResource {
	r := &fakeResource{id: id}
	r.health.Store(true)
	return r
}

func (r *fakeResource) IsHealthy() bool { return r.health.Load() && !r.closed.Load() }
func (r *fakeResource) Close() error    { r.closed.Store(true); return nil }

func countingFactory() (Factory, *int32) {
	var n int32
	return func(ctx context.Context, address string) (Resource, error) {
		id := atomic.AddInt32(&n, 1)
		return newFakeResource(int(id)), nil
	}, &n
}

func TestAcquireCreatesUpToMaxSize(t *testing.T) {
	factory, created := countingFactory()
	p := New(Config{MaxSize: 2, AcquisitionTimeout: time.Second, Factory: factory})

	r1, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	r2, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)
	assert.EqualValues(t, 2, atomic.LoadInt32(created))

	active, idle := p.Stats("a:1")
	assert.Equal(t, 2, active)
	assert.Equal(t, 0, idle)
}

func TestAcquireReusesReleasedIdleConnection(t *testing.T) {
	factory, created := countingFactory()
	p := New(Config{MaxSize: 2, AcquisitionTimeout: time.Second, Factory: factory})

	r1, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	p.Release(context.Background(), "a:1", r1)

	r2, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.EqualValues(t, 1, atomic.LoadInt32(created))
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	factory, _ := countingFactory()
	p := New(Config{MaxSize: 1, AcquisitionTimeout: 50 * time.Millisecond, Factory: factory})

	_, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), "a:1", false)
	require.Error(t, err)
}

func TestReleaseWakesQueuedWaiter(t *testing.T) {
	factory, _ := countingFactory()
	p := New(Config{MaxSize: 1, AcquisitionTimeout: 2 * time.Second, Factory: factory})

	r1, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var r2 Resource
	var r2err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		r2, r2err = p.Acquire(context.Background(), "a:1", false)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(context.Background(), "a:1", r1)
	wg.Wait()

	require.NoError(t, r2err)
	assert.Same(t, r1, r2)
}

func TestValidateOnAcquireDestroysUnhealthyIdleConnections(t *testing.T) {
	factory, created := countingFactory()
	p := New(Config{MaxSize: 2, AcquisitionTimeout: time.Second, Factory: factory,
		ValidateOnAcquire: func(r Resource) bool { return false }})

	r1, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	p.Release(context.Background(), "a:1", r1)

	r2, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	assert.True(t, r1.(*fakeResource).closed.Load())
	assert.NotSame(t, r1, r2)
	assert.EqualValues(t, 2, atomic.LoadInt32(created))
}

func TestPurgeDestroysIdleAndBlocksFutureReleases(t *testing.T) {
	factory, _ := countingFactory()
	p := New(Config{MaxSize: 2, AcquisitionTimeout: time.Second, Factory: factory})

	r1, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	p.Release(context.Background(), "a:1", r1)
	active, idle := p.Stats("a:1")
	require.Equal(t, 0, active)
	require.Equal(t, 1, idle)

	p.Purge("a:1")
	_, idle = p.Stats("a:1")
	assert.Equal(t, 0, idle)
	assert.True(t, r1.(*fakeResource).closed.Load())

	r2, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	p.Release(context.Background(), "a:1", r2)
	_, idle = p.Stats("a:1")
	assert.Equal(t, 0, idle, "releases after purge must not refill the idle list")
}

func TestCloseRejectsFutureAcquires(t *testing.T) {
	factory, _ := countingFactory()
	p := New(Config{MaxSize: 2, AcquisitionTimeout: time.Second, Factory: factory})

	_, err := p.Acquire(context.Background(), "a:1", false)
	require.NoError(t, err)
	p.Close()

	_, err = p.Acquire(context.Background(), "a:1", false)
	require.Error(t, err)
}
