package containerexec

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/containerpool"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.CodeExecutor = (*Engine)(nil)

const (
	binaryName     = "app"
	cleanupTimeout = 30 * time.Second
	// buildFailedExit is the exit status of the fused command when the
	// build step fails.
	buildFailedExit = 125
)

type Config struct {
	WorkRoot       string
	BuildTimeout   time.Duration
	DefaultTimeout time.Duration
	Fused          bool
	MaxParallel    int
}

// Engine builds and runs each request as a program inside a pooled unit
type Engine struct {
	pool    *containerpool.Pool
	runtime secondary.ContainerRuntime
	cfg     Config
	logger  primary.Logger
}

func NewEngine(pool *containerpool.Pool, runtime secondary.ContainerRuntime, cfg Config, logger primary.Logger) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	return &Engine{
		pool:    pool,
		runtime: runtime,
		cfg:     cfg,
		logger:  logger,
	}
}

// ExecuteBatch runs requests concurrently and returns results in request
// order. Only infrastructure faults are returned as errors.
func (e *Engine) ExecuteBatch(ctx context.Context, reqs []*domain.ExecutionRequest) ([]*domain.ExecutionResult, error) {
	results := make([]*domain.ExecutionResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)
	for idx, req := range reqs {
		idx, req := idx, req
		g.Go(func() error {
			res, err := e.Execute(gctx, req)
			if err != nil {
				return fmt.Errorf("test case %s: %w", req.TestCaseID, err)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Execute runs one request on a leased unit. The unit is discarded when
// its work directory cannot be removed or a command outlived its deadline.
func (e *Engine) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
	sig := req.Signature
	if sig == nil {
		parsed, err := harness.ParseSignature(req.Code)
		if err != nil {
			return domain.FailedResult(req.TestCaseID, domain.StatusAuthoringError, domain.Message(err.Error())), nil
		}
		sig = parsed
	}
	sc, err := harness.BuildStandalone(req.Code, sig, req.Arguments)
	if err != nil {
		return domain.FailedResult(req.TestCaseID, domain.StatusAuthoringError, domain.Message(err.Error())), nil
	}

	var result *domain.ExecutionResult
	err = e.pool.With(ctx, func(unit *domain.PooledUnit) error {
		res, err := e.run(ctx, unit, sc, req)
		result = res
		return err
	})
	if err != nil {
		if result != nil && errors.Is(err, containerpool.ErrUnhealthy) {
			e.logger.Warn("Sandbox unit discarded", "testCaseId", req.TestCaseID, "reason", err)
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, unit *domain.PooledUnit, sc *harness.Scaffold, req *domain.ExecutionRequest) (result *domain.ExecutionResult, err error) {
	dir := path.Join(e.cfg.WorkRoot, uuid.New().String())

	if err := e.mustExec(ctx, unit, []string{"mkdir", "-p", dir}, "/"); err != nil {
		return nil, fmt.Errorf("%w: %w", containerpool.ErrUnhealthy, err)
	}
	defer func() {
		if cleanErr := e.cleanup(unit, dir); cleanErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", containerpool.ErrUnhealthy, cleanErr)
		}
	}()

	files := []domain.FileEntry{
		{Name: harness.SourceFile, Content: []byte(sc.Source), Mode: 0o644},
		{Name: "go.mod", Content: []byte(harness.GoMod), Mode: 0o644},
	}
	if err := e.runtime.CopyFiles(ctx, unit.ContainerID, dir, files); err != nil {
		return nil, fmt.Errorf("%w: %w: failed to copy program: %w", containerpool.ErrUnhealthy, domain.ErrInfrastructure, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	if e.cfg.Fused {
		return e.runFused(ctx, unit, dir, sc, req, timeout)
	}

	build, err := e.exec(ctx, unit, e.buildCommand(dir), dir, e.cfg.BuildTimeout)
	if errors.Is(err, domain.ErrExecDeadline) {
		return nil, fmt.Errorf("%w: %w: build exceeded %s", containerpool.ErrUnhealthy, domain.ErrInfrastructure, e.cfg.BuildTimeout)
	}
	if err != nil {
		return nil, err
	}
	if build.ExitCode != 0 {
		return compileFailure(req, sc, build), nil
	}

	out, err := e.exec(ctx, unit, []string{"./" + binaryName}, dir, timeout)
	if errors.Is(err, domain.ErrExecDeadline) {
		return timeLimit(req, timeout), fmt.Errorf("%w: run deadline", containerpool.ErrUnhealthy)
	}
	if err != nil {
		return nil, err
	}
	return e.collect(ctx, unit, dir, sc, req, out)
}

func (e *Engine) runFused(ctx context.Context, unit *domain.PooledUnit, dir string, sc *harness.Scaffold, req *domain.ExecutionRequest, timeout time.Duration) (*domain.ExecutionResult, error) {
	script := fmt.Sprintf("%s || exit %d; exec ./%s", strings.Join(e.buildCommand(dir), " "), buildFailedExit, binaryName)
	out, err := e.exec(ctx, unit, []string{"sh", "-c", script}, dir, e.cfg.BuildTimeout+timeout)
	if errors.Is(err, domain.ErrExecDeadline) {
		return timeLimit(req, timeout), fmt.Errorf("%w: fused deadline", containerpool.ErrUnhealthy)
	}
	if err != nil {
		return nil, err
	}
	if out.ExitCode == buildFailedExit {
		return compileFailure(req, sc, out), nil
	}
	return e.collect(ctx, unit, dir, sc, req, out)
}

// buildCommand compiles the program with a build cache private to dir.
func (e *Engine) buildCommand(dir string) []string {
	return []string{
		"env",
		"GOCACHE=" + path.Join(dir, ".gocache"),
		"GOPATH=" + path.Join(dir, ".gopath"),
		"CGO_ENABLED=0",
		"go", "build", "-o", binaryName, ".",
	}
}

// collect turns the run output into a result, reading result.json for
// methods that return a value.
func (e *Engine) collect(ctx context.Context, unit *domain.PooledUnit, dir string, sc *harness.Scaffold, req *domain.ExecutionRequest, out *domain.ExecOutput) (*domain.ExecutionResult, error) {
	res := newResult(req, out)
	if out.ExitCode != 0 {
		res.Status = domain.StatusRuntimeError
		res.Errors = []domain.ExecutionError{domain.Message(runtimeMessage(out))}
		return res, nil
	}

	if sc.Signature.ValueResult() != "" {
		cat, err := e.exec(ctx, unit, []string{"cat", harness.ResultFile}, dir, cleanupTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: failed to read result: %w", containerpool.ErrUnhealthy, domain.ErrInfrastructure, err)
		}
		if cat.ExitCode != 0 {
			res.Status = domain.StatusRuntimeError
			res.ExitCode = 1
			res.Errors = []domain.ExecutionError{domain.Message("program produced no result")}
			return res, nil
		}
		value := harness.Literal(cat.Stdout)
		res.ReturnedValue = &value
		if req.Expected != nil && !harness.MatchExpected(value, *req.Expected, sc.Signature) {
			res.Status = domain.StatusWrongAnswer
			return res, nil
		}
	}

	res.Status = domain.StatusSuccess
	res.Passed = true
	res.Points = req.MaxPoints
	return res, nil
}

// exec runs cmd with its own deadline on top of ctx.
func (e *Engine) exec(ctx context.Context, unit *domain.PooledUnit, cmd []string, dir string, timeout time.Duration) (*domain.ExecOutput, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := e.runtime.Exec(ctx, unit.ContainerID, cmd, dir)
	if err != nil {
		if errors.Is(err, domain.ErrExecDeadline) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to exec %s: %w", domain.ErrInfrastructure, cmd[0], err)
	}
	return out, nil
}

func (e *Engine) mustExec(ctx context.Context, unit *domain.PooledUnit, cmd []string, dir string) error {
	out, err := e.exec(ctx, unit, cmd, dir, cleanupTimeout)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: %s exited with %d: %s", domain.ErrInfrastructure, cmd[0], out.ExitCode, strings.TrimSpace(out.Stderr))
	}
	return nil
}

func (e *Engine) cleanup(unit *domain.PooledUnit, dir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	return e.mustExec(ctx, unit, []string{"rm", "-rf", dir}, "/")
}

func newResult(req *domain.ExecutionRequest, out *domain.ExecOutput) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		ID:              uuid.New(),
		TestCaseID:      req.TestCaseID,
		Stdout:          out.Stdout,
		Stderr:          stripTrace(out.Stderr),
		ExecutionTimeMs: out.Duration.Milliseconds(),
		Errors:          []domain.ExecutionError{},
		ExitCode:        out.ExitCode,
		CreatedAt:       time.Now(),
	}
}

func compileFailure(req *domain.ExecutionRequest, sc *harness.Scaffold, out *domain.ExecOutput) *domain.ExecutionResult {
	diags := harness.ParseDiagnostics(out.Stderr+"\n"+out.Stdout, sc)
	res := domain.FailedResult(req.TestCaseID, domain.StatusCompilationError, domain.ErrorsOf(diags)...)
	res.Stderr = out.Stderr
	return res
}

func timeLimit(req *domain.ExecutionRequest, limit time.Duration) *domain.ExecutionResult {
	res := domain.FailedResult(req.TestCaseID, domain.StatusTimeout, domain.Message(domain.TimeLimitMessage(limit)))
	res.ExitCode = -1
	res.ExecutionTimeMs = limit.Milliseconds()
	return res
}

// runtimeMessage picks the panic or error line of a failed program.
func runtimeMessage(out *domain.ExecOutput) string {
	stderr := stripTrace(out.Stderr)
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "panic: ") {
			msg := strings.TrimPrefix(line, "panic: ")
			msg = strings.TrimSuffix(msg, " [recovered]")
			return strings.TrimSpace(msg)
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return fmt.Sprintf("program exited with status %d", out.ExitCode)
}

// stripTrace drops goroutine dumps from program output.
func stripTrace(stderr string) string {
	if idx := strings.Index(stderr, "\ngoroutine "); idx >= 0 {
		return strings.TrimRight(stderr[:idx], "\n") + "\n"
	}
	return stderr
}
