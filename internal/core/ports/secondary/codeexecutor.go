package secondary

import (
	"context"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// CodeExecutor runs execution requests. User faults come back as failed
// results; a returned error is always an infrastructure fault.
type CodeExecutor interface {
	// ExecuteBatch executes every request and returns results in request order
	ExecuteBatch(ctx context.Context, requests []*domain.ExecutionRequest) ([]*domain.ExecutionResult, error)
}
