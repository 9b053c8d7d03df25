package secondary

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// PendingSubmissionLister finds submissions whose evaluation never finished
type PendingSubmissionLister interface {
	// GetPendingSubmissions lists pending submissions submitted before a time, oldest first
	GetPendingSubmissions(ctx context.Context, submittedBefore time.Time, limit int) ([]uuid.UUID, error)
}

type SubmissionRepository interface {
	PendingSubmissionLister

	// CreateSubmission saves a new pending submission
	CreateSubmission(ctx context.Context, submission *domain.Submission) error

	// GetSubmission retrieves a submission by ID, nil when absent
	GetSubmission(ctx context.Context, submissionID uuid.UUID) (*domain.Submission, error)

	// CompleteSubmission writes the terminal status and score of a pending submission
	CompleteSubmission(ctx context.Context, submissionID uuid.UUID, status domain.SubmissionStatus, score float64) error

	// MarkSubmissionErrored moves a submission to ERRORED, idempotent
	MarkSubmissionErrored(ctx context.Context, submissionID uuid.UUID) error
}

type TestCaseRepository interface {
	// GetTestCasesForTask retrieves the ordered test cases of a task
	GetTestCasesForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TestCase, error)
}

// Store bundles the repositories one unit of work needs
type Store interface {
	SubmissionRepository
	TestCaseRepository
	ResultRepository
}

// StoreFactory opens a store with its own resources. The returned release
// function must be called once the unit of work is finished.
type StoreFactory interface {
	Open(ctx context.Context) (Store, func() error, error)
}
