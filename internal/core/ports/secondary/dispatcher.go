package secondary

import (
	"context"

	"github.com/google/uuid"
)

// EvaluationDispatcher hands a submission to a detached unit of work.
type EvaluationDispatcher interface {
	Dispatch(ctx context.Context, submissionID uuid.UUID) error
}
