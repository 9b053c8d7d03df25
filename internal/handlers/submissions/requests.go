package submissions

import (
	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// SubmitRequest represents a request to grade code against a task
type SubmitRequest struct {
	TaskID uuid.UUID `json:"taskId"`
	Code   string    `json:"code"`
}

// SubmitResponse represents the pending submission handed back to the client
type SubmitResponse struct {
	SubmissionID uuid.UUID               `json:"submissionId"`
	Status       domain.SubmissionStatus `json:"status"`
}

// SubmissionResponse is a submission with the results persisted so far
type SubmissionResponse struct {
	Submission *domain.Submission        `json:"submission"`
	Results    []*domain.ExecutionResult `json:"results"`
}

// ValidateRequest carries the reference code the test cases are checked against
type ValidateRequest struct {
	Code string `json:"code"`
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
}
