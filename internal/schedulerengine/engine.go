package schedulerengine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.EvaluationDispatcher = (*EvaluationEngine)(nil)

var ErrEngineStopped = errors.New("evaluation engine is stopped")

// cancelWait bounds how long Stop waits for cancelled evaluations to return.
const cancelWait = 5 * time.Second

// EvaluateFunc grades one submission; it must record its own failures
type EvaluateFunc func(ctx context.Context, submissionID uuid.UUID)

// EvaluationEngine runs evaluations on a fixed set of workers fed by a
// bounded queue. Each evaluation gets its own context with a deadline.
// Work the engine never started stays pending in the store.
type EvaluationEngine struct {
	cfg      *config.PipelineCfg
	evaluate EvaluateFunc
	logger   primary.Logger

	queue    chan uuid.UUID
	mu       sync.Mutex
	stopped  bool
	inflight map[uuid.UUID]struct{}
	skipped  int
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewEvaluationEngine(cfg *config.PipelineCfg, evaluate EvaluateFunc, logger primary.Logger) *EvaluationEngine {
	return &EvaluationEngine{
		cfg:      cfg,
		evaluate: evaluate,
		logger:   logger,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (e *EvaluationEngine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(e.cfg.Workers)
	for i := 0; i < e.cfg.Workers; i++ {
		go func(worker int) {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-e.queue:
					if !ok {
						return
					}
					if ctx.Err() != nil {
						e.skip(id)
						return
					}
					e.run(ctx, worker, id)
					e.done(id)
				}
			}
		}(i)
	}
	e.logger.Info("Evaluation engine started", "workers", e.cfg.Workers, "queueSize", e.cfg.QueueSize)
}

// Dispatch queues a submission without blocking. A submission that is
// already queued or running is not queued twice.
func (e *EvaluationEngine) Dispatch(ctx context.Context, submissionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if _, ok := e.inflight[submissionID]; ok {
		return nil
	}
	select {
	case e.queue <- submissionID:
		e.inflight[submissionID] = struct{}{}
		return nil
	default:
		return fmt.Errorf("%w: %d submissions waiting", domain.ErrQueueFull, len(e.queue))
	}
}

// Stop refuses new work, lets workers drain the queue and waits for them.
// When ctx ends first, running evaluations are cancelled and whatever is
// still queued is left pending for the next recovery sweep.
func (e *EvaluationEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("Evaluation engine stopped")
		return nil
	case <-ctx.Done():
	}

	if e.cancel != nil {
		e.cancel()
	}
	select {
	case <-done:
	case <-time.After(cancelWait):
		e.logger.Warn("Evaluations did not return after cancel")
	}
	for id := range e.queue {
		e.skip(id)
	}

	e.mu.Lock()
	left := e.skipped
	e.mu.Unlock()
	e.logger.Warn("Evaluation engine stopped before draining", "leftPending", left)
	return fmt.Errorf("failed to drain evaluation queue, %d submissions left pending: %w", left, ctx.Err())
}

func (e *EvaluationEngine) skip(submissionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, submissionID)
	e.skipped++
	e.logger.Debug("Submission left pending", "submissionId", submissionID)
}

func (e *EvaluationEngine) done(submissionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, submissionID)
}

func (e *EvaluationEngine) run(ctx context.Context, worker int, submissionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Evaluation worker recovered from panic",
				"worker", worker,
				"submissionId", submissionID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	e.logger.Debug("Evaluating submission", "worker", worker, "submissionId", submissionID)
	e.evaluate(ctx, submissionID)
}
