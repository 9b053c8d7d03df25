package grading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ IGradingService = (*GradingService)(nil)

type GradingService struct {
	executor       secondary.CodeExecutor
	defaultTimeout time.Duration
	logger         primary.Logger
}

func NewGradingService(executor secondary.CodeExecutor, defaultTimeout time.Duration, logger primary.Logger) *GradingService {
	return &GradingService{
		executor:       executor,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Grade produces exactly one result per test case, in test case order.
// Only infrastructure faults are returned as errors.
func (s *GradingService) Grade(ctx context.Context, code string, testCases []*domain.TestCase) (*domain.GradingOutcome, error) {
	sig, err := harness.ParseSignature(code)
	if err != nil {
		s.logger.Debug("Submission has an authoring error", "error", err)
		results := make([]*domain.ExecutionResult, 0, len(testCases))
		for _, tc := range testCases {
			results = append(results, domain.FailedResult(tc.ID, domain.StatusAuthoringError, domain.Message(err.Error())))
		}
		return aggregate(testCases, results), nil
	}

	requests := harness.BuildRequests(code, sig, testCases, s.defaultTimeout)
	executed, err := s.executor.ExecuteBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute test cases: %w", domain.ErrInfrastructure, err)
	}

	byTestCase := make(map[uuid.UUID]*domain.ExecutionResult, len(executed))
	for _, res := range executed {
		if res != nil {
			byTestCase[res.TestCaseID] = res
		}
	}

	results := make([]*domain.ExecutionResult, 0, len(testCases))
	for _, tc := range testCases {
		res, ok := byTestCase[tc.ID]
		if !ok {
			s.logger.Warn("Executor returned no result for test case", "testCaseId", tc.ID)
			res = domain.FailedResult(tc.ID, domain.StatusRuntimeError, domain.Message("no result was produced for this test case"))
		}
		results = append(results, res)
	}
	return aggregate(testCases, results), nil
}

// aggregate clips awarded points and computes the score and verdict.
// results[i] belongs to testCases[i].
func aggregate(testCases []*domain.TestCase, results []*domain.ExecutionResult) *domain.GradingOutcome {
	var awarded, total float64
	solved := true
	for i, tc := range testCases {
		res := results[i]
		if res.Passed {
			res.Points = math.Max(0, math.Min(tc.MaxPoints, res.Points))
		} else {
			res.Points = 0
			solved = false
		}
		awarded += res.Points
		total += tc.MaxPoints
	}

	score := 0.0
	if total > 0 {
		score = math.Round(awarded/total*100*100) / 100
	}
	status := domain.SubmissionStatusRejected
	if solved {
		status = domain.SubmissionStatusAccepted
	}
	return &domain.GradingOutcome{
		Results:     results,
		Score:       score,
		FullySolved: solved,
		Status:      status,
	}
}
