package interp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/logging"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

const workerEnv = "CODEGRADER_INTERP_TEST_WORKER"

// TestMain lets the test binary double as the worker process.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		if err := RunWorker(logging.NewNopLogger()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestSupervisor() *Supervisor {
	return NewSupervisor(SupervisorConfig{
		Command: []string{os.Args[0]},
		Env:     []string{workerEnv + "=1"},
		Worker: WorkerOptions{
			AllowedPackages: testPackages,
			MaxParallel:     4,
			DefaultTimeout:  time.Second,
			MaxStackBytes:   16 << 20,
		},
		Grace: 5 * time.Second,
	}, logging.NewNopLogger())
}

func sumArgs(a, b string) []domain.Argument {
	return []domain.Argument{{Name: "a", Value: a}, {Name: "b", Value: b}}
}

func TestSupervisor_RunsBatchInWorker(t *testing.T) {
	reqs := []*domain.ExecutionRequest{
		request(t, sumCode, strPtr("11"), sumArgs("5", "6")...),
		request(t, sumCode, strPtr("3"), sumArgs("1", "1")...),
	}

	results, err := newTestSupervisor().ExecuteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Passed)
	assert.Equal(t, reqs[0].TestCaseID, results[0].TestCaseID)
	assert.Equal(t, "11", *results[0].ReturnedValue)
	assert.NotEqual(t, results[0].ID, results[1].ID)

	assert.False(t, results[1].Passed)
	assert.Equal(t, domain.StatusWrongAnswer, results[1].Status)
}

func TestSupervisor_StackOverflowFailsOnlyItsRequest(t *testing.T) {
	recursive := "func (s *Solution) Solve(n int) int {\n\treturn s.Solve(n+1) + 1\n}\n"
	reqs := []*domain.ExecutionRequest{
		request(t, recursive, strPtr("1"), domain.Argument{Name: "n", Value: "0"}),
		request(t, sumCode, strPtr("11"), sumArgs("5", "6")...),
	}
	reqs[0].Timeout = 10 * time.Second

	results, err := newTestSupervisor().ExecuteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Passed)
	assert.Equal(t, domain.StatusRuntimeError, results[0].Status)
	assert.Equal(t, float64(0), results[0].Points)
	require.NotEmpty(t, results[0].Errors)
	assert.Equal(t, "stack overflow", results[0].Errors[0].Message)
	assert.Equal(t, reqs[0].TestCaseID, results[0].TestCaseID)

	assert.True(t, results[1].Passed)
}

func TestSupervisor_GoStatementIsCompileError(t *testing.T) {
	code := "func (s *Solution) Solve() int {\n\tgo func() { panic(\"boom\") }()\n\tfor i := 0; i < 50000000; i++ {\n\t}\n\treturn 1\n}\n"

	results, err := newTestSupervisor().ExecuteBatch(context.Background(), []*domain.ExecutionRequest{request(t, code, strPtr("1"))})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompilationError, results[0].Status)
	require.NotEmpty(t, results[0].Errors)
	assert.Equal(t, "go statements are not allowed", results[0].Errors[0].Message)
}

func TestSupervisor_RunawayCallEndsWithWorker(t *testing.T) {
	code := "func (s *Solution) Solve() int {\n\tfor {\n\t}\n}\n"
	req := request(t, code, strPtr("1"))
	req.Timeout = 100 * time.Millisecond

	start := time.Now()
	results, err := newTestSupervisor().ExecuteBatch(context.Background(), []*domain.ExecutionRequest{req})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.StatusTimeout, results[0].Status)
}

func TestSupervisor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSupervisor().ExecuteBatch(ctx, []*domain.ExecutionRequest{request(t, sumCode, nil, sumArgs("1", "1")...)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisor_MissingWorkerBinary(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{Command: []string{"/nonexistent/worker"}}, logging.NewNopLogger())

	_, err := s.ExecuteBatch(context.Background(), []*domain.ExecutionRequest{request(t, sumCode, nil, sumArgs("1", "1")...)})
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestCrashMessage(t *testing.T) {
	stderr := "runtime: goroutine stack exceeds 16777216-byte limit\nfatal error: stack overflow\n\nruntime stack:\n"
	assert.Equal(t, "stack overflow", crashMessage(stderr, nil))
	assert.Equal(t, "boom", crashMessage("panic: boom [recovered]\n\tpanic: boom\n", nil))
	assert.Equal(t, "execution worker failed: exit status 1", crashMessage("", &exitStatusError{}))
}

type exitStatusError struct{}

func (exitStatusError) Error() string { return "exit status 1" }
