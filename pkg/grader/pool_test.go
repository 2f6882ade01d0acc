package grader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/chazu/cadgrade/pkg/kernel/meshkernel"
	"github.com/chazu/cadgrade/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockKernel holds every read until release is closed or the context
// ends.
type blockKernel struct {
	*meshkernel.Kernel
	started chan struct{}
	release chan struct{}
}

func newBlockKernel() *blockKernel {
	return &blockKernel{
		Kernel:  meshkernel.New(),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (k *blockKernel) ReadShape(ctx context.Context, path string) (kernel.Shape, error) {
	select {
	case k.started <- struct{}{}:
	default:
	}
	select {
	case <-k.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return k.Kernel.ReadShape(ctx, path)
}

// slowKernel stretches every solid extraction and tracks how many run at
// once.
type slowKernel struct {
	*meshkernel.Kernel
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (k *slowKernel) SolidProperties(solid kernel.SubShape) (kernel.SolidProperties, error) {
	n := k.active.Add(1)
	defer k.active.Add(-1)
	for {
		p := k.peak.Load()
		if n <= p || k.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(k.delay)
	return k.Kernel.SolidProperties(solid)
}

type unsafeKernel struct {
	*meshkernel.Kernel
}

func (unsafeKernel) Capabilities() kernel.Capabilities {
	return kernel.Capabilities{ConcurrentSafe: false}
}

func TestPoolGrades(t *testing.T) {
	g, k := newTestGrader()
	p := NewPool(g, PoolConfig{Workers: 2, QueueSize: 8, Timeout: time.Minute})
	defer p.Close()

	path := writeSTL(t, "a.stl", box(3, 2, 1))
	var chans []<-chan Result
	for range 4 {
		_, ch, err := p.Submit(context.Background(), Request{SubmittedPath: path, ReferencePath: path})
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	seen := map[string]bool{}
	for _, ch := range chans {
		res := <-ch
		_, err := uuid.Parse(res.JobID)
		require.NoError(t, err)
		assert.False(t, seen[res.JobID], "job ids are unique")
		seen[res.JobID] = true
		require.NotNil(t, res.Outcome.Part)
		assert.Equal(t, 100.0, res.Outcome.Part.GlobalScore)
	}
	assert.Zero(t, k.OpenHandles())
}

func TestPoolQueueFull(t *testing.T) {
	m := metrics.NewNop()
	k := newBlockKernel()
	g := New(WithShapeKernel(k), WithMetrics(m))
	p := NewPool(g, PoolConfig{Workers: 1, QueueSize: 1, Timeout: time.Minute})

	path := writeSTL(t, "a.stl", box(1, 1, 1))
	req := Request{SubmittedPath: path, ReferencePath: path}

	_, first, err := p.Submit(context.Background(), req)
	require.NoError(t, err)
	<-k.started // the worker holds the first job

	_, second, err := p.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDepth))

	_, _, err = p.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal))

	res := p.Grade(context.Background(), req)
	require.NotNil(t, res.Outcome.Failure)
	assert.Equal(t, FailQueueFull, res.Outcome.Failure.Error)
	assert.True(t, res.Outcome.Failure.Retryable)

	close(k.release)
	assert.True(t, (<-first).Outcome.Success())
	assert.True(t, (<-second).Outcome.Success())
	p.Close()
	assert.Zero(t, testutil.ToFloat64(m.QueueDepth))
}

func TestPoolTimeout(t *testing.T) {
	m := metrics.NewNop()
	k := newBlockKernel()
	g := New(WithShapeKernel(k), WithMetrics(m))
	p := NewPool(g, PoolConfig{Workers: 1, QueueSize: 1, Timeout: 50 * time.Millisecond})
	defer p.Close()

	path := writeSTL(t, "a.stl", box(1, 1, 1))
	res := p.Grade(context.Background(), Request{SubmittedPath: path, ReferencePath: path})

	require.NotNil(t, res.Outcome.Failure)
	assert.Equal(t, FailTimeout, res.Outcome.Failure.Error)
	assert.True(t, res.Outcome.Failure.Retryable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TimeoutsTotal))
}

func TestPoolTimeoutKeepsWorkerBound(t *testing.T) {
	k := &slowKernel{Kernel: meshkernel.New(), delay: 100 * time.Millisecond}
	g := New(WithShapeKernel(k))
	require.True(t, g.ConcurrentSafe())
	p := NewPool(g, PoolConfig{Workers: 1, QueueSize: 8, Timeout: 20 * time.Millisecond})

	path := writeSTL(t, "a.stl", box(1, 1, 1))
	var chans []<-chan Result
	for range 4 {
		_, ch, err := p.Submit(context.Background(), Request{SubmittedPath: path, ReferencePath: path})
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		res := <-ch
		require.NotNil(t, res.Outcome.Failure)
		assert.Equal(t, FailTimeout, res.Outcome.Failure.Error)
	}
	p.Close()

	assert.Equal(t, int32(1), k.peak.Load(), "abandoned jobs ran beyond the worker count")
	assert.Zero(t, k.active.Load(), "extractions still running after Close")
	assert.Zero(t, k.OpenHandles())
}

func TestPoolWorkers(t *testing.T) {
	safe := NewPool(New(), PoolConfig{Workers: 4, QueueSize: 1})
	defer safe.Close()
	assert.Equal(t, 4, safe.Workers())

	unsafe := NewPool(New(WithShapeKernel(unsafeKernel{meshkernel.New()})), PoolConfig{Workers: 4, QueueSize: 1})
	defer unsafe.Close()
	assert.Equal(t, 1, unsafe.Workers())

	zero := NewPool(New(), PoolConfig{})
	defer zero.Close()
	assert.Equal(t, 1, zero.Workers())
}

func TestPoolCloseDrains(t *testing.T) {
	g, _ := newTestGrader()
	p := NewPool(g, PoolConfig{Workers: 2, QueueSize: 16})
	path := writeSTL(t, "a.stl", box(1, 1, 1))

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)
	for range 6 {
		_, ch, err := p.Submit(context.Background(), Request{SubmittedPath: path, ReferencePath: path})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := <-ch
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}()
	}
	p.Close()
	wg.Wait()
	assert.Len(t, results, 6)

	_, _, err := p.Submit(context.Background(), Request{SubmittedPath: path, ReferencePath: path})
	assert.ErrorIs(t, err, ErrPoolClosed)
	p.Close()
}
