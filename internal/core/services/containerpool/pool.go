package containerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// ErrUnhealthy marks a unit that must not be reused. Wrap it in the error
// returned from a With callback to discard the unit.
var ErrUnhealthy = errors.New("sandbox unit is unhealthy")

const removeTimeout = 30 * time.Second

type Config struct {
	MaxSize int
	// AcquireTimeout bounds the wait for a unit; 0 waits until one is free
	AcquireTimeout time.Duration
	Spec           domain.UnitSpec
}

// Stats is a snapshot of the pool
type Stats struct {
	Max   int `json:"max"`
	Total int `json:"total"`
	Idle  int `json:"idle"`
	Busy  int `json:"busy"`
}

// Pool hands out sandbox units for exclusive use. Waiters are served in
// arrival order and at most MaxSize units exist at any time.
type Pool struct {
	runtime secondary.ContainerRuntime
	cfg     Config
	logger  primary.Logger
	sem     *semaphore.Weighted

	mu     sync.Mutex
	idle   []*domain.PooledUnit
	busy   map[string]*domain.PooledUnit
	total  int
	closed bool
}

func NewPool(runtime secondary.ContainerRuntime, cfg Config, logger primary.Logger) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	return &Pool{
		runtime: runtime,
		cfg:     cfg,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(cfg.MaxSize)),
		busy:    make(map[string]*domain.PooledUnit),
	}
}

// Lease is exclusive use of one unit until Release
type Lease struct {
	pool *Pool
	unit *domain.PooledUnit
	once sync.Once
}

func (l *Lease) Unit() *domain.PooledUnit {
	return l.unit
}

// Release returns the unit to the pool. An unhealthy unit is destroyed and
// its slot is freed for a new one. Only the first call has an effect.
func (l *Lease) Release(healthy bool) {
	l.once.Do(func() {
		l.pool.release(l.unit, healthy)
	})
}

// Acquire waits for an idle unit, creating one when the pool is below its
// ceiling.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, domain.ErrPoolClosed
	}

	waitCtx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no unit within %s", domain.ErrPoolExhausted, p.cfg.AcquireTimeout)
		}
		return nil, fmt.Errorf("failed to acquire sandbox unit: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, domain.ErrPoolClosed
	}
	var unit *domain.PooledUnit
	if n := len(p.idle); n > 0 {
		unit = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		p.total++
	}
	p.mu.Unlock()

	if unit == nil {
		created, err := p.create(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.sem.Release(1)
			return nil, err
		}
		unit = created
	}

	p.mu.Lock()
	unit.State = domain.UnitBusy
	p.busy[unit.ID] = unit
	p.mu.Unlock()

	return &Lease{pool: p, unit: unit}, nil
}

// With runs fn on a leased unit and always releases it. The unit is
// discarded when fn panics or returns an error wrapping ErrUnhealthy.
func (p *Pool) With(ctx context.Context, fn func(unit *domain.PooledUnit) error) (err error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	healthy := false
	defer func() {
		lease.Release(healthy)
	}()

	err = fn(lease.Unit())
	healthy = !errors.Is(err, ErrUnhealthy)
	return err
}

// Warm creates idle units until n exist or the ceiling is reached.
func (p *Pool) Warm(ctx context.Context, n int) error {
	for {
		p.mu.Lock()
		if p.closed || p.total >= n || p.total >= p.cfg.MaxSize {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to warm pool: %w", err)
		}
		p.mu.Lock()
		if p.closed || p.total >= n || p.total >= p.cfg.MaxSize {
			p.mu.Unlock()
			p.sem.Release(1)
			return nil
		}
		p.total++
		p.mu.Unlock()

		unit, err := p.create(ctx)
		p.mu.Lock()
		if err != nil {
			p.total--
		} else {
			p.idle = append(p.idle, unit)
		}
		p.mu.Unlock()
		p.sem.Release(1)
		if err != nil {
			return err
		}
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Max:   p.cfg.MaxSize,
		Total: p.total,
		Idle:  len(p.idle),
		Busy:  len(p.busy),
	}
}

// Close destroys idle units and refuses new leases. Busy units are
// destroyed when their lease is released.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, unit := range idle {
		if err := p.runtime.RemoveUnit(ctx, unit.ContainerID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove unit %s: %w", unit.ID, err))
		}
	}
	p.logger.Info("Sandbox pool closed", "removed", len(idle), "errors", len(errs))
	return errors.Join(errs...)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) create(ctx context.Context) (*domain.PooledUnit, error) {
	containerID, err := p.runtime.CreateUnit(ctx, p.cfg.Spec)
	if err != nil {
		p.logger.Error("Failed to create sandbox unit", "error", err)
		return nil, fmt.Errorf("%w: failed to create sandbox unit: %w", domain.ErrInfrastructure, err)
	}
	unit := &domain.PooledUnit{
		ID:          uuid.New().String(),
		ContainerID: containerID,
		State:       domain.UnitIdle,
		CreatedAt:   time.Now(),
	}
	p.logger.Debug("Sandbox unit created", "unitId", unit.ID, "containerId", containerID)
	return unit, nil
}

func (p *Pool) release(unit *domain.PooledUnit, healthy bool) {
	p.mu.Lock()
	delete(p.busy, unit.ID)
	unit.Uses++
	keep := healthy && !p.closed
	if keep {
		unit.State = domain.UnitIdle
		p.idle = append(p.idle, unit)
	}
	p.mu.Unlock()

	if !keep {
		ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		if err := p.runtime.RemoveUnit(ctx, unit.ContainerID); err != nil {
			p.logger.Error("Failed to remove sandbox unit", "unitId", unit.ID, "error", err)
		}
		cancel()
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
	}
	p.sem.Release(1)
}
