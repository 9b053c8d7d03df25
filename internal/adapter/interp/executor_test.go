package interp

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/logging"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

func newTestExecutor() *Executor {
	return NewExecutor(newTestCompiler(), 4, time.Second, logging.NewNopLogger())
}

func request(t *testing.T, code string, expected *string, args ...domain.Argument) *domain.ExecutionRequest {
	sig := mustSignature(t, code)
	if args == nil {
		args = []domain.Argument{}
	}
	return &domain.ExecutionRequest{
		TestCaseID: uuid.New(),
		Code:       code,
		Signature:  sig,
		ClassName:  sig.TypeName,
		MethodName: sig.MethodName,
		Arguments:  args,
		Timeout:    time.Second,
		Expected:   expected,
		MaxPoints:  10,
	}
}

func strPtr(s string) *string { return &s }

func runOne(t *testing.T, req *domain.ExecutionRequest) *domain.ExecutionResult {
	t.Helper()
	results, err := newTestExecutor().ExecuteBatch(context.Background(), []*domain.ExecutionRequest{req})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

const sumCode = "func (s *Solution) Solve(a int, b int) int {\n\treturn a + b\n}\n"

func TestExecutor_Sum(t *testing.T) {
	req := request(t, sumCode, strPtr("11"),
		domain.Argument{Name: "a", Value: "5"},
		domain.Argument{Name: "b", Value: "6"})

	res := runOne(t, req)
	assert.True(t, res.Passed)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	require.NotNil(t, res.ReturnedValue)
	assert.Equal(t, "11", *res.ReturnedValue)
	assert.Equal(t, float64(10), res.Points)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, req.TestCaseID, res.TestCaseID)
}

func TestExecutor_WrongAnswer(t *testing.T) {
	req := request(t, sumCode, strPtr("12"),
		domain.Argument{Name: "a", Value: "5"},
		domain.Argument{Name: "b", Value: "6"})

	res := runOne(t, req)
	assert.False(t, res.Passed)
	assert.Equal(t, domain.StatusWrongAnswer, res.Status)
	assert.Equal(t, float64(0), res.Points)
}

func TestExecutor_Timeout(t *testing.T) {
	code := "import \"time\"\n\nfunc (s *Solution) Solve() int {\n\ttime.Sleep(5000 * time.Millisecond)\n\treturn 1\n}\n"
	req := request(t, code, strPtr("1"))
	req.Timeout = 100 * time.Millisecond

	start := time.Now()
	res := runOne(t, req)
	assert.Less(t, time.Since(start), 4*time.Second)

	assert.False(t, res.Passed)
	assert.Equal(t, float64(0), res.Points)
	assert.Equal(t, domain.StatusTimeout, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "timeout")
	assert.Contains(t, res.Errors[0].Message, domain.TimeLimitPrefix)
}

func TestExecutor_CapturesStdout(t *testing.T) {
	code := "func (s *Solution) Solve() {\n\tfmt.Println(\"5\")\n\tfmt.Println(\"6\")\n}\n"

	res := runOne(t, request(t, code, nil))
	assert.True(t, res.Passed)
	assert.Equal(t, "5\n6\n", res.Stdout)
	assert.Nil(t, res.ReturnedValue)
}

func TestExecutor_VoidWithExpectedPasses(t *testing.T) {
	code := "func (s *Solution) Solve() {}\n"

	res := runOne(t, request(t, code, strPtr("42")))
	assert.True(t, res.Passed)
}

func TestExecutor_CompileErrorFailsEveryRequest(t *testing.T) {
	code := "func (s *Solution) Solve(a int) int {\n\treturn a a\n}\n"
	reqs := []*domain.ExecutionRequest{
		request(t, code, strPtr("1"), domain.Argument{Name: "a", Value: "1"}),
		request(t, code, strPtr("2"), domain.Argument{Name: "a", Value: "2"}),
		request(t, code, nil, domain.Argument{Name: "a", Value: "3"}),
	}

	results, err := newTestExecutor().ExecuteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, reqs[i].TestCaseID, res.TestCaseID)
		assert.False(t, res.Passed)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, float64(0), res.Points)
		assert.Equal(t, domain.StatusCompilationError, res.Status)
		assert.NotEmpty(t, res.Errors)
	}
}

func TestExecutor_Panic(t *testing.T) {
	code := "func (s *Solution) Solve(xs []int) int {\n\tif len(xs) == 0 {\n\t\tpanic(\"empty input\")\n\t}\n\treturn xs[0]\n}\n"

	res := runOne(t, request(t, code, strPtr("1"), domain.Argument{Name: "xs", Value: "[]"}))
	assert.False(t, res.Passed)
	assert.Equal(t, domain.StatusRuntimeError, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "empty input")
}

func TestExecutor_ReturnedErrorUsesInnermostMessage(t *testing.T) {
	code := "func (s *Solution) Solve(a int) (int, error) {\n\tif a < 0 {\n\t\treturn 0, fmt.Errorf(\"outer: %w\", errors.New(\"negative input\"))\n\t}\n\treturn a, nil\n}\n"

	res := runOne(t, request(t, code, strPtr("0"), domain.Argument{Name: "a", Value: "-1"}))
	assert.False(t, res.Passed)
	assert.Equal(t, domain.StatusRuntimeError, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "negative input", res.Errors[0].Message)

	res = runOne(t, request(t, code, strPtr("3"), domain.Argument{Name: "a", Value: "3"}))
	assert.True(t, res.Passed)
	assert.Equal(t, "3", *res.ReturnedValue)
}

func TestExecutor_UnknownMethod(t *testing.T) {
	req := request(t, sumCode, nil)
	req.MethodName = "Missing"

	res := runOne(t, req)
	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "not found")
}

func TestExecutor_ArgumentConversions(t *testing.T) {
	code := "func (s *Solution) Describe(name string, ok bool, ratio float64, xs []int, m map[string]int, rest ...string) string {\n" +
		"\treturn fmt.Sprintf(\"%s|%v|%.1f|%d|%d|%s\", name, ok, ratio, len(xs), m[\"k\"], strings.Join(rest, \",\"))\n}\n"
	req := request(t, code, strPtr("bob|true|0.5|3|7|a,b"),
		domain.Argument{Name: "name", Value: "bob"},
		domain.Argument{Name: "ok", Value: "true"},
		domain.Argument{Name: "ratio", Value: "0.5"},
		domain.Argument{Name: "xs", Value: "[1,2,3]"},
		domain.Argument{Name: "m", Value: `{"k":7}`},
		domain.Argument{Name: "rest", Value: `["a","b"]`})

	res := runOne(t, req)
	require.Empty(t, res.Errors)
	assert.True(t, res.Passed)
	assert.Equal(t, "bob|true|0.5|3|7|a,b", *res.ReturnedValue)
}

func TestExecutor_EmptyLiteralIsZeroValue(t *testing.T) {
	res := runOne(t, request(t, sumCode, strPtr("0"),
		domain.Argument{Name: "a", Value: ""},
		domain.Argument{Name: "b", Value: ""}))
	assert.True(t, res.Passed)
}

func TestExecutor_BadArgument(t *testing.T) {
	res := runOne(t, request(t, sumCode, strPtr("0"),
		domain.Argument{Name: "a", Value: "five"},
		domain.Argument{Name: "b", Value: "6"}))
	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "argument a")
}

func TestExecutor_Idempotent(t *testing.T) {
	req := request(t, sumCode, strPtr("11"),
		domain.Argument{Name: "a", Value: "5"},
		domain.Argument{Name: "b", Value: "6"})

	first := runOne(t, req)
	second := runOne(t, req)
	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, *first.ReturnedValue, *second.ReturnedValue)
}

func TestExecutor_IsolatedOutputPerRequest(t *testing.T) {
	code := "func (s *Solution) Echo(msg string) {\n\tfmt.Print(msg)\n}\n"
	reqs := make([]*domain.ExecutionRequest, 0, 6)
	for _, msg := range []string{"a", "b", "c", "d", "e", "f"} {
		reqs = append(reqs, request(t, code, nil, domain.Argument{Name: "msg", Value: msg}))
	}

	results, err := newTestExecutor().ExecuteBatch(context.Background(), reqs)
	require.NoError(t, err)
	for i, res := range results {
		assert.Equal(t, reqs[i].Arguments[0].Value, res.Stdout)
	}
}

func TestExecutor_CancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExecutor().ExecuteBatch(ctx, []*domain.ExecutionRequest{request(t, sumCode, nil,
		domain.Argument{Name: "a", Value: "1"}, domain.Argument{Name: "b", Value: "1"})})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_LargeIntegerMismatchIsWrongAnswer(t *testing.T) {
	code := "func (s *Solution) Solve() int64 {\n\treturn 9007199254740992\n}\n"

	res := runOne(t, request(t, code, strPtr("9007199254740993")))
	assert.False(t, res.Passed)
	assert.Equal(t, domain.StatusWrongAnswer, res.Status)
	assert.Equal(t, "9007199254740992", *res.ReturnedValue)

	echo := "func (s *Solution) Solve(a int64) int64 {\n\treturn a\n}\n"
	res = runOne(t, request(t, echo, strPtr("9007199254740993"), domain.Argument{Name: "a", Value: "9007199254740993"}))
	assert.True(t, res.Passed)
	assert.Equal(t, "9007199254740993", *res.ReturnedValue)
}

func TestExecutor_StringResultsCompareExactly(t *testing.T) {
	code := "func (s *Solution) Solve(msg string) string {\n\treturn msg\n}\n"
	tests := []struct {
		returned string
		expected string
		passed   bool
	}{
		{returned: "hello", expected: "hello", passed: true},
		{returned: "hello ", expected: "hello", passed: false},
		{returned: "1.0", expected: "1", passed: false},
		{returned: "[1,2]", expected: "[1, 2]", passed: false},
	}
	for _, tt := range tests {
		res := runOne(t, request(t, code, strPtr(tt.expected), domain.Argument{Name: "msg", Value: tt.returned}))
		assert.Equal(t, tt.passed, res.Passed, "%q vs %q", tt.returned, tt.expected)
	}
}
