package submission

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// ISubmissionService defines the submission lifecycle
type ISubmissionService interface {
	// Submit stores a pending submission and hands it to the background pipeline
	Submit(ctx context.Context, userID string, taskID uuid.UUID, code string) (*domain.Submission, error)

	// Evaluate grades a submission in its own unit of work. It never fails:
	// every fault ends in the ERRORED state.
	Evaluate(ctx context.Context, submissionID uuid.UUID)

	// Get retrieves a submission with the results persisted so far
	Get(ctx context.Context, submissionID uuid.UUID) (*domain.Submission, []*domain.ExecutionResult, error)

	// Run grades code against the visible test cases of a task without persisting anything
	Run(ctx context.Context, taskID uuid.UUID, code string) (*domain.GradingOutcome, error)

	// ValidateTestCases checks every test case of a task against the signature of code
	ValidateTestCases(ctx context.Context, taskID uuid.UUID, code string) error
}
