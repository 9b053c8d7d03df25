package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultClassName  = "Solution"
	DefaultMethodName = "Solve"
)

// Status represents the status of execution
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusWrongAnswer      Status = "WRONG_ANSWER"
	StatusCompilationError Status = "COMPILATION_ERROR"
	StatusRuntimeError     Status = "RUNTIME_ERROR"
	StatusTimeout          Status = "TIMEOUT"
	StatusAuthoringError   Status = "AUTHORING_ERROR"
)

// Param is one declared parameter of the graded method
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MethodSignature describes the single exported method of a submission
type MethodSignature struct {
	TypeName        string   `json:"typeName"`
	MethodName      string   `json:"methodName"`
	Params          []Param  `json:"params"`
	Results         []string `json:"results"`
	Variadic        bool     `json:"variadic"`
	DeclaresType    bool     `json:"declaresType"`
	PointerReceiver bool     `json:"pointerReceiver"`
}

// ReturnsError reports whether the last result is the builtin error type.
func (s *MethodSignature) ReturnsError() bool {
	return len(s.Results) > 0 && s.Results[len(s.Results)-1] == "error"
}

// ValueResult returns the type of the result that carries the graded value,
// or "" for a method without one.
func (s *MethodSignature) ValueResult() string {
	n := len(s.Results)
	if s.ReturnsError() {
		n--
	}
	if n <= 0 {
		return ""
	}
	return s.Results[0]
}

// Argument is a named literal value passed to the graded method.
// String values are stored unquoted, every other kind as JSON text.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"literalValue"`
}

// ExecutionRequest is one test case worth of work for an executor
type ExecutionRequest struct {
	TestCaseID uuid.UUID        `json:"testCaseId"`
	Code       string           `json:"code"`
	Signature  *MethodSignature `json:"-"`
	ClassName  string           `json:"executionClassName"`
	MethodName string           `json:"executionMethodName"`
	Arguments  []Argument       `json:"arguments"`
	Timeout    time.Duration    `json:"timeout"`
	Expected   *string          `json:"expectedValue,omitempty"`
	MaxPoints  float64          `json:"maxPoints"`
}

// ExecutionError is a structured error attached to a result
type ExecutionError struct {
	Message     string  `json:"message"`
	StartLine   *int    `json:"startLine,omitempty"`
	StartColumn *int    `json:"startColumn,omitempty"`
	EndLine     *int    `json:"endLine,omitempty"`
	EndColumn   *int    `json:"endColumn,omitempty"`
	FilePath    *string `json:"filePath,omitempty"`
}

// Severity of a compiler diagnostic
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Diagnostic is a single compiler message
type Diagnostic struct {
	Severity Severity `json:"severity"`
	ExecutionError
}

// HasErrors reports whether any diagnostic blocks compilation.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorsOf keeps the error-severity diagnostics.
func ErrorsOf(diags []Diagnostic) []ExecutionError {
	out := make([]ExecutionError, 0, len(diags))
	for _, d := range diags {
		if d.Severity == SeverityError {
			out = append(out, d.ExecutionError)
		}
	}
	return out
}

// ExecutionResult represents the result of a single test case execution
type ExecutionResult struct {
	ID              uuid.UUID        `json:"-"`
	TestCaseID      uuid.UUID        `json:"testCaseId"`
	Status          Status           `json:"status"`
	Passed          bool             `json:"passed"`
	Points          float64          `json:"points"`
	Stdout          string           `json:"stdout"`
	Stderr          string           `json:"stderr"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	ReturnedValue   *string          `json:"returnedValue,omitempty"`
	Errors          []ExecutionError `json:"errors"`
	ExitCode        int              `json:"exitCode"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// FailedResult builds a zero-point failure for a test case.
func FailedResult(testCaseID uuid.UUID, status Status, errs ...ExecutionError) *ExecutionResult {
	if errs == nil {
		errs = []ExecutionError{}
	}
	return &ExecutionResult{
		ID:         uuid.New(),
		TestCaseID: testCaseID,
		Status:     status,
		Errors:     errs,
		ExitCode:   1,
		CreatedAt:  time.Now(),
	}
}

// Message builds an ExecutionError without a source position.
func Message(msg string) ExecutionError {
	return ExecutionError{Message: msg}
}

type ExecutionResultTable struct {
	ID              string
	SubmissionID    string
	TestCaseID      string
	Status          string
	Passed          string
	Points          string
	Stdout          string
	Stderr          string
	ExecutionTimeMs string
	ReturnedValue   string
	Errors          string
	ExitCode        string
	CreatedAt       string
}

func GetExecutionResultTable() ExecutionResultTable {
	return ExecutionResultTable{
		ID:              "id",
		SubmissionID:    "submission_id",
		TestCaseID:      "test_case_id",
		Status:          "status",
		Passed:          "passed",
		Points:          "points",
		Stdout:          "stdout",
		Stderr:          "stderr",
		ExecutionTimeMs: "execution_time_ms",
		ReturnedValue:   "returned_value",
		Errors:          "errors",
		ExitCode:        "exit_code",
		CreatedAt:       "created_at",
	}
}

func (ExecutionResultTable) TableName() string {
	return "execution_results"
}
