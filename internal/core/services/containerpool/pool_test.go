package containerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/logging"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

type fakeRuntime struct {
	mu        sync.Mutex
	created   int
	removed   []string
	createErr error
}

func (f *fakeRuntime) CreateUnit(ctx context.Context, spec domain.UnitSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("container-%d", f.created), nil
}

func (f *fakeRuntime) RemoveUnit(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeRuntime) CopyFiles(ctx context.Context, containerID, dir string, files []domain.FileEntry) error {
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd []string, workDir string) (*domain.ExecOutput, error) {
	return &domain.ExecOutput{}, nil
}

func (f *fakeRuntime) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, len(f.removed)
}

func newTestPool(rt *fakeRuntime, max int) *Pool {
	return NewPool(rt, Config{MaxSize: max}, logging.NewNopLogger())
}

func TestPool_CeilingUnderContention(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 3)

	var live, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.With(context.Background(), func(unit *domain.PooledUnit) error {
				n := atomic.AddInt32(&live, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&live, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	created, _ := rt.counts()
	assert.LessOrEqual(t, created, 3)
	stats := pool.Stats()
	assert.Equal(t, 0, stats.Busy)
	assert.LessOrEqual(t, stats.Total, 3)
}

func TestPool_FIFO(t *testing.T) {
	pool := newTestPool(&fakeRuntime{}, 1)
	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lease, err := pool.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			lease.Release(true)
		}(i)
		time.Sleep(20 * time.Millisecond)
	}

	first.Release(true)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestPool_UnhealthyUnitIsReplaced(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 1)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	broken := lease.Unit().ContainerID
	lease.Release(false)
	lease.Release(true)

	created, removed := rt.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, pool.Stats().Total)

	lease, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, broken, lease.Unit().ContainerID)
	lease.Release(true)

	assert.Equal(t, 1, pool.Stats().Idle)
}

func TestPool_HealthyUnitIsReused(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.With(context.Background(), func(unit *domain.PooledUnit) error { return nil }))
	}
	created, _ := rt.counts()
	assert.Equal(t, 1, created)
}

func TestPool_WithReleasesOnPanic(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 1)

	assert.Panics(t, func() {
		_ = pool.With(context.Background(), func(unit *domain.PooledUnit) error {
			panic("boom")
		})
	})

	_, removed := rt.counts()
	assert.Equal(t, 1, removed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	lease.Release(true)
}

func TestPool_WithDiscardsOnUnhealthyError(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 1)

	err := pool.With(context.Background(), func(unit *domain.PooledUnit) error {
		return fmt.Errorf("cleanup failed: %w", ErrUnhealthy)
	})
	assert.ErrorIs(t, err, ErrUnhealthy)
	_, removed := rt.counts()
	assert.Equal(t, 1, removed)

	err = pool.With(context.Background(), func(unit *domain.PooledUnit) error {
		return errors.New("user fault")
	})
	assert.Error(t, err)
	_, removed = rt.counts()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, pool.Stats().Idle)
}

func TestPool_AcquireTimeout(t *testing.T) {
	pool := NewPool(&fakeRuntime{}, Config{MaxSize: 1, AcquireTimeout: 30 * time.Millisecond}, logging.NewNopLogger())
	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release(true)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
}

func TestPool_AcquireCancelled(t *testing.T) {
	pool := newTestPool(&fakeRuntime{}, 1)
	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrPoolExhausted)
}

func TestPool_CreateFailureFreesSlot(t *testing.T) {
	rt := &fakeRuntime{createErr: errors.New("daemon down")}
	pool := newTestPool(rt, 1)

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.Equal(t, 0, pool.Stats().Total)

	rt.mu.Lock()
	rt.createErr = nil
	rt.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	lease.Release(true)
}

func TestPool_WarmAndClose(t *testing.T) {
	rt := &fakeRuntime{}
	pool := newTestPool(rt, 3)

	require.NoError(t, pool.Warm(context.Background(), 5))
	stats := pool.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Idle)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pool.Close(context.Background()))
	_, removed := rt.counts()
	assert.Equal(t, 2, removed)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrPoolClosed)

	lease.Release(true)
	_, removed = rt.counts()
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, pool.Stats().Total)
}
