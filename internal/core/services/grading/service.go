package grading

import (
	"context"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// IGradingService runs one grading pass of a submission
type IGradingService interface {
	// Grade runs code against the ordered test cases and aggregates the outcome
	Grade(ctx context.Context, code string, testCases []*domain.TestCase) (*domain.GradingOutcome, error)
}
