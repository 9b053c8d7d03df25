package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Authoring errors
var (
	ErrNoClassFound          = errors.New("no class found")
	ErrNoMethodFound         = errors.New("no method found")
	ErrInvalidArgumentFormat = errors.New("invalid argument format")
)

var (
	// ErrInfrastructure marks faults not attributable to user code.
	ErrInfrastructure     = errors.New("infrastructure error")
	ErrPoolClosed         = errors.New("container pool is closed")
	ErrPoolExhausted      = errors.New("container pool is exhausted")
	ErrExecDeadline       = errors.New("command deadline exceeded")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotPending         = errors.New("submission is not pending")
	ErrCooldown           = errors.New("submission cooldown active")
	ErrQueueFull          = errors.New("evaluation queue is full")
)

// TimeLimitPrefix starts every time-limit error message.
const TimeLimitPrefix = "time limit exceeded"

// TimeLimitMessage formats the error reported for an execution that ran out of time.
func TimeLimitMessage(limit fmt.Stringer) string {
	return fmt.Sprintf("%s: execution timeout after %s", TimeLimitPrefix, limit)
}

// TestCaseViolation is one problem found while validating a test case
type TestCaseViolation struct {
	TestCaseID uuid.UUID `json:"testCaseId"`
	Problem    string    `json:"problem"`
}

// ValidationError aggregates every violation of a batch
type ValidationError struct {
	Violations []TestCaseViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("test case %s: %s", v.TestCaseID, v.Problem))
	}
	return fmt.Sprintf("%d invalid test case(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// CooldownError reports an active submission cooldown
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrCooldown, e.RetryAfter)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldown
}
