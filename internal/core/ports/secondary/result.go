package secondary

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// ResultRepository defines the interface for storing and retrieving execution results
type ResultRepository interface {
	// PersistExecutionResult stores a result, keeping the first one per test case
	PersistExecutionResult(ctx context.Context, submissionID uuid.UUID, result *domain.ExecutionResult) error

	// GetExecutionResults retrieves the results of a submission in test case order
	GetExecutionResults(ctx context.Context, submissionID uuid.UUID) ([]*domain.ExecutionResult, error)
}
