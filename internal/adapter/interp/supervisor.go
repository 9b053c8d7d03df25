package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.CodeExecutor = (*Supervisor)(nil)

const (
	defaultWorkerGrace = 5 * time.Second
	maxWorkerStderr    = 64 << 10
	// crashExitCode is what the Go runtime exits with on a fatal error.
	crashExitCode = 2
)

type SupervisorConfig struct {
	// Command starts a worker, for example the service binary followed by
	// WorkerCommand.
	Command []string
	// Env is appended to the supervisor's environment.
	Env    []string
	Worker WorkerOptions
	// Grace is added to the summed request timeouts before a worker is killed.
	Grace time.Duration
}

// Supervisor runs every batch in a child worker process. A request that
// brings its worker down fails alone: the requests without a reply are
// retried one per worker.
type Supervisor struct {
	cfg    SupervisorConfig
	logger primary.Logger
}

func NewSupervisor(cfg SupervisorConfig, logger primary.Logger) *Supervisor {
	if cfg.Grace <= 0 {
		cfg.Grace = defaultWorkerGrace
	}
	if cfg.Worker.MaxParallel <= 0 {
		cfg.Worker.MaxParallel = 1
	}
	return &Supervisor{cfg: cfg, logger: logger}
}

// workerExit describes how a worker ended when it did not answer every request
type workerExit struct {
	message  string
	timedOut bool
}

func (s *Supervisor) ExecuteBatch(ctx context.Context, reqs []*domain.ExecutionRequest) ([]*domain.ExecutionResult, error) {
	results := make([]*domain.ExecutionResult, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	exit, err := s.runWorker(ctx, reqs, func(idx int, res *domain.ExecutionResult) {
		results[idx] = res
	})
	if err != nil {
		return nil, err
	}

	var pending []int
	for idx, res := range results {
		if res == nil {
			pending = append(pending, idx)
		}
	}
	if len(pending) == 0 {
		return results, nil
	}
	s.logger.Warn("Execution worker died, isolating requests", "pending", len(pending), "reason", exit.message)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Worker.MaxParallel)
	for _, idx := range pending {
		idx := idx
		g.Go(func() error {
			req := reqs[idx]
			exit, err := s.runWorker(gctx, []*domain.ExecutionRequest{req}, func(_ int, res *domain.ExecutionResult) {
				results[idx] = res
			})
			if err != nil {
				return err
			}
			if results[idx] == nil {
				results[idx] = s.crashResult(req, exit)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runWorker runs reqs in one worker process. Replies are reported as they
// arrive; the returned workerExit explains a worker that ended early. The
// error is reserved for faults of the supervisor itself.
func (s *Supervisor) runWorker(ctx context.Context, reqs []*domain.ExecutionRequest, report func(idx int, res *domain.ExecutionResult)) (workerExit, error) {
	if err := ctx.Err(); err != nil {
		return workerExit{}, fmt.Errorf("batch interrupted: %w", err)
	}
	job, err := json.Marshal(workerJob{Options: s.cfg.Worker, Requests: reqs})
	if err != nil {
		return workerExit{}, fmt.Errorf("%w: failed to encode worker job: %w", domain.ErrInfrastructure, err)
	}
	if len(s.cfg.Command) == 0 {
		return workerExit{}, fmt.Errorf("%w: no worker command configured", domain.ErrInfrastructure)
	}

	wctx, cancel := context.WithTimeout(ctx, s.budget(reqs))
	defer cancel()

	replies, replyWriter, err := os.Pipe()
	if err != nil {
		return workerExit{}, fmt.Errorf("%w: failed to open reply pipe: %w", domain.ErrInfrastructure, err)
	}
	defer replies.Close()

	stderr := &cappedBuffer{max: maxWorkerStderr}
	cmd := exec.CommandContext(wctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stdin = bytes.NewReader(job)
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{replyWriter}

	if err := cmd.Start(); err != nil {
		replyWriter.Close()
		return workerExit{}, fmt.Errorf("%w: failed to start execution worker: %w", domain.ErrInfrastructure, err)
	}
	replyWriter.Close()

	dec := json.NewDecoder(replies)
	for {
		var reply workerReply
		if err := dec.Decode(&reply); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("Execution worker reply stream ended", "error", err)
			}
			break
		}
		if reply.Index < 0 || reply.Index >= len(reqs) || reply.Result == nil {
			continue
		}
		reply.Result.ID = uuid.New()
		report(reply.Index, reply.Result)
	}

	waitErr := cmd.Wait()
	if err := ctx.Err(); err != nil {
		return workerExit{}, fmt.Errorf("batch interrupted: %w", err)
	}
	if waitErr == nil {
		return workerExit{message: "execution worker exited without a result"}, nil
	}
	if errors.Is(wctx.Err(), context.DeadlineExceeded) {
		return workerExit{message: "execution worker killed at deadline", timedOut: true}, nil
	}
	return workerExit{message: crashMessage(stderr.String(), waitErr)}, nil
}

// budget bounds a worker by the timeouts of all its requests run back to back.
func (s *Supervisor) budget(reqs []*domain.ExecutionRequest) time.Duration {
	total := s.cfg.Grace
	for _, req := range reqs {
		total += s.timeoutOf(req)
	}
	return total
}

func (s *Supervisor) timeoutOf(req *domain.ExecutionRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return s.cfg.Worker.DefaultTimeout
}

func (s *Supervisor) crashResult(req *domain.ExecutionRequest, exit workerExit) *domain.ExecutionResult {
	if exit.timedOut {
		res := domain.FailedResult(req.TestCaseID, domain.StatusTimeout, domain.Message(domain.TimeLimitMessage(s.timeoutOf(req))))
		res.ExitCode = -1
		return res
	}
	res := domain.FailedResult(req.TestCaseID, domain.StatusRuntimeError, domain.Message(exit.message))
	res.ExitCode = crashExitCode
	return res
}

// crashMessage picks the fatal error or panic line a dying worker printed.
func crashMessage(stderr string, waitErr error) string {
	lines := strings.Split(stderr, "\n")
	for _, prefix := range []string{"fatal error: ", "panic: "} {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, prefix) {
				msg := strings.TrimPrefix(line, prefix)
				return strings.TrimSpace(strings.TrimSuffix(msg, " [recovered]"))
			}
		}
	}
	return fmt.Sprintf("execution worker failed: %v", waitErr)
}

// cappedBuffer keeps the first max bytes written to it
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
