package interp

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.CodeExecutor = (*Executor)(nil)

// Executor runs graded methods inside the host process
type Executor struct {
	compiler       *Compiler
	maxParallel    int
	defaultTimeout time.Duration
	logger         primary.Logger
}

func NewExecutor(compiler *Compiler, maxParallel int, defaultTimeout time.Duration, logger primary.Logger) *Executor {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Executor{
		compiler:       compiler,
		maxParallel:    maxParallel,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

type callOutcome struct {
	outs []reflect.Value
	err  string
}

// ExecuteBatch compiles every distinct source once and runs the requests
// concurrently. Results come back in request order.
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []*domain.ExecutionRequest) ([]*domain.ExecutionResult, error) {
	results := make([]*domain.ExecutionResult, len(reqs))
	err := e.ExecuteEach(ctx, reqs, func(idx int, res *domain.ExecutionResult) {
		results[idx] = res
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ExecuteEach runs the batch and reports every result as soon as it is
// known. report may be called concurrently, once per request index.
func (e *Executor) ExecuteEach(ctx context.Context, reqs []*domain.ExecutionRequest, report func(idx int, res *domain.ExecutionResult)) error {
	artifacts := make(map[string]*Artifact)
	failures := make(map[string]*domain.ExecutionResult)

	for _, req := range reqs {
		if _, done := artifacts[req.Code]; done {
			continue
		}
		if _, done := failures[req.Code]; done {
			continue
		}
		sig := req.Signature
		if sig == nil {
			parsed, err := harness.ParseSignature(req.Code)
			if err != nil {
				failures[req.Code] = domain.FailedResult(uuid.Nil, domain.StatusAuthoringError, domain.Message(err.Error()))
				continue
			}
			sig = parsed
		}
		artifact, diags := e.compiler.Compile(req.Code, sig)
		if domain.HasErrors(diags) {
			e.logger.Debug("Compilation failed", "diagnostics", len(diags))
			failures[req.Code] = domain.FailedResult(uuid.Nil, domain.StatusCompilationError, domain.ErrorsOf(diags)...)
			continue
		}
		artifacts[req.Code] = artifact
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for idx, req := range reqs {
		if failed, ok := failures[req.Code]; ok {
			report(idx, domain.FailedResult(req.TestCaseID, failed.Status, failed.Errors...))
			continue
		}
		idx, req := idx, req
		g.Go(func() error {
			report(idx, e.Execute(gctx, artifacts[req.Code], req))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

// Execute runs one request against a compiled artifact. The call races the
// request timeout; a call that loses keeps running in its goroutine.
func (e *Executor) Execute(ctx context.Context, artifact *Artifact, req *domain.ExecutionRequest) *domain.ExecutionResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	done := make(chan callOutcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: innermostMessage(r)}
			}
		}()
		done <- e.call(artifact, req, stdout, stderr)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var outcome callOutcome
	select {
	case outcome = <-done:
	case <-timer.C:
		e.logger.Warn("Execution timed out", "testCaseId", req.TestCaseID, "timeout", timeout)
		res := e.result(req, domain.StatusTimeout, start, stdout, stderr)
		res.ExitCode = -1
		res.Errors = []domain.ExecutionError{domain.Message(domain.TimeLimitMessage(timeout))}
		return res
	case <-ctx.Done():
		res := e.result(req, domain.StatusRuntimeError, start, stdout, stderr)
		res.ExitCode = 1
		res.Errors = []domain.ExecutionError{domain.Message(fmt.Sprintf("execution cancelled: %v", ctx.Err()))}
		return res
	}

	if outcome.err != "" {
		res := e.result(req, domain.StatusRuntimeError, start, stdout, stderr)
		res.ExitCode = 1
		res.Errors = []domain.ExecutionError{domain.Message(outcome.err)}
		return res
	}

	res := e.result(req, domain.StatusSuccess, start, stdout, stderr)
	if len(outcome.outs) > 0 {
		value, err := formatOutputs(outcome.outs)
		if err != nil {
			res.Status = domain.StatusRuntimeError
			res.ExitCode = 1
			res.Errors = []domain.ExecutionError{domain.Message(fmt.Sprintf("cannot encode returned value: %v", err))}
			return res
		}
		res.ReturnedValue = &value
		if req.Expected != nil && !harness.MatchExpected(value, *req.Expected, artifact.scaffold.Signature) {
			res.Status = domain.StatusWrongAnswer
			return res
		}
	}
	res.Passed = true
	res.Points = req.MaxPoints
	return res
}

func (e *Executor) call(artifact *Artifact, req *domain.ExecutionRequest, stdout, stderr *syncBuffer) callOutcome {
	if artifact == nil {
		return callOutcome{err: "no compiled artifact for request"}
	}
	registry, err := artifact.Load(stdout, stderr)
	if err != nil {
		return callOutcome{err: innermostMessage(err)}
	}
	fn, ok := registry.Lookup(req.ClassName, req.MethodName)
	if !ok {
		return callOutcome{err: fmt.Sprintf("method %s.%s not found", req.ClassName, req.MethodName)}
	}

	fnType := fn.Type()
	if fnType.NumIn() != len(req.Arguments) {
		return callOutcome{err: fmt.Sprintf("method %s.%s takes %d arguments, got %d", req.ClassName, req.MethodName, fnType.NumIn(), len(req.Arguments))}
	}
	args := make([]reflect.Value, 0, len(req.Arguments))
	for idx, arg := range req.Arguments {
		v, err := convertArgument(arg.Value, fnType.In(idx))
		if err != nil {
			return callOutcome{err: fmt.Sprintf("argument %s: %v", arg.Name, err)}
		}
		args = append(args, v)
	}

	var outs []reflect.Value
	if fnType.IsVariadic() {
		outs = fn.CallSlice(args)
	} else {
		outs = fn.Call(args)
	}

	if n := len(outs); n > 0 && fnType.Out(n-1) == errorType {
		if errVal := outs[n-1]; !errVal.IsNil() {
			return callOutcome{err: innermostMessage(errVal.Interface())}
		}
		outs = outs[:n-1]
	}
	return callOutcome{outs: outs}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func formatOutputs(outs []reflect.Value) (string, error) {
	if len(outs) == 1 {
		return harness.FormatValue(outs[0].Interface())
	}
	values := make([]interface{}, 0, len(outs))
	for _, out := range outs {
		values = append(values, out.Interface())
	}
	return harness.FormatValue(values)
}

func (e *Executor) result(req *domain.ExecutionRequest, status domain.Status, start time.Time, stdout, stderr *syncBuffer) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		ID:              uuid.New(),
		TestCaseID:      req.TestCaseID,
		Status:          status,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Errors:          []domain.ExecutionError{},
		CreatedAt:       time.Now(),
	}
}
