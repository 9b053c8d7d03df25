package submission

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/grading"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ ISubmissionService = (*SubmissionService)(nil)

const statusWriteTimeout = 10 * time.Second

type SubmissionService struct {
	store      secondary.Store
	stores     secondary.StoreFactory
	grader     grading.IGradingService
	cooldowns  secondary.CooldownStore
	cooldown   time.Duration
	dispatcher secondary.EvaluationDispatcher
	logger     primary.Logger
}

// NewSubmissionService wires the request-scoped store used by Submit, Get,
// Run and ValidateTestCases and the factory Evaluate opens its own store from.
func NewSubmissionService(
	store secondary.Store,
	stores secondary.StoreFactory,
	grader grading.IGradingService,
	cooldowns secondary.CooldownStore,
	cooldown time.Duration,
	logger primary.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:     store,
		stores:    stores,
		grader:    grader,
		cooldowns: cooldowns,
		cooldown:  cooldown,
		logger:    logger,
	}
}

// SetDispatcher sets where accepted submissions are sent for evaluation
func (s *SubmissionService) SetDispatcher(dispatcher secondary.EvaluationDispatcher) {
	s.dispatcher = dispatcher
}

// Submit stores a pending submission and dispatches it for evaluation
func (s *SubmissionService) Submit(ctx context.Context, userID string, taskID uuid.UUID, code string) (*domain.Submission, error) {
	if s.cooldown > 0 && s.cooldowns != nil {
		retryAfter, err := s.cooldowns.Acquire(ctx, userID, s.cooldown)
		if errors.Is(err, domain.ErrCooldown) {
			return nil, &domain.CooldownError{RetryAfter: retryAfter}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check cooldown: %w", err)
		}
	}

	sub := domain.NewSubmission(userID, taskID, code)
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.logger.Error("Failed to create submission", "userId", userID, "taskId", taskID, "error", err)
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	if s.dispatcher == nil {
		s.markErrored(s.store, sub.ID)
		return nil, fmt.Errorf("%w: no evaluation dispatcher configured", domain.ErrInfrastructure)
	}
	if err := s.dispatcher.Dispatch(ctx, sub.ID); err != nil {
		s.logger.Error("Failed to dispatch submission", "submissionId", sub.ID, "error", err)
		s.markErrored(s.store, sub.ID)
		return nil, fmt.Errorf("failed to dispatch submission: %w", err)
	}

	s.logger.Info("Submission accepted", "submissionId", sub.ID, "userId", userID, "taskId", taskID)
	return sub, nil
}

// Evaluate grades a submission inside its own store scope
func (s *SubmissionService) Evaluate(ctx context.Context, submissionID uuid.UUID) {
	store, release, err := s.stores.Open(ctx)
	if err != nil {
		if s.interrupted(ctx, submissionID, err) {
			return
		}
		s.logger.Error("Failed to open evaluation store", "submissionId", submissionID, "error", err)
		s.markErrored(s.store, submissionID)
		return
	}
	defer func() {
		if err := release(); err != nil {
			s.logger.Warn("Failed to release evaluation store", "submissionId", submissionID, "error", err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Evaluation panicked", "submissionId", submissionID, "panic", r, "stack", string(debug.Stack()))
			s.markErrored(store, submissionID)
		}
	}()

	start := time.Now()
	if err := s.evaluate(ctx, store, submissionID); err != nil {
		if s.interrupted(ctx, submissionID, err) {
			return
		}
		s.logger.Error("Evaluation failed", "submissionId", submissionID, "error", err)
		s.markErrored(store, submissionID)
		return
	}
	s.logger.Info("Evaluation finished", "submissionId", submissionID, "duration", time.Since(start))
}

func (s *SubmissionService) evaluate(ctx context.Context, store secondary.Store, submissionID uuid.UUID) error {
	sub, err := store.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to get submission: %w", err)
	}
	if sub == nil {
		return domain.ErrSubmissionNotFound
	}
	if sub.Status.IsTerminal() {
		s.logger.Info("Submission already evaluated", "submissionId", submissionID, "status", sub.Status)
		return nil
	}

	testCases, err := store.GetTestCasesForTask(ctx, sub.TaskID)
	if err != nil {
		return fmt.Errorf("failed to get test cases: %w", err)
	}

	outcome, err := s.grader.Grade(ctx, sub.Code, testCases)
	if err != nil {
		return fmt.Errorf("failed to grade submission: %w", err)
	}

	for _, res := range outcome.Results {
		if err := store.PersistExecutionResult(ctx, submissionID, res); err != nil {
			return fmt.Errorf("failed to persist result of test case %s: %w", res.TestCaseID, err)
		}
	}
	if err := store.CompleteSubmission(ctx, submissionID, outcome.Status, outcome.Score); err != nil {
		return fmt.Errorf("failed to complete submission: %w", err)
	}

	s.logger.Info("Submission graded",
		"submissionId", submissionID,
		"status", outcome.Status,
		"score", outcome.Score)
	return nil
}

// interrupted reports an evaluation cut short by shutdown. The submission
// stays pending so a redelivery or the pending sweep evaluates it again.
func (s *SubmissionService) interrupted(ctx context.Context, submissionID uuid.UUID, err error) bool {
	if !errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	s.logger.Warn("Evaluation interrupted, submission left pending", "submissionId", submissionID, "error", err)
	return true
}

// markErrored writes the ERRORED state with a context of its own, since the
// evaluation context may already be done.
func (s *SubmissionService) markErrored(store secondary.Store, submissionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	if err := store.MarkSubmissionErrored(ctx, submissionID); err != nil {
		s.logger.Error("Failed to mark submission errored", "submissionId", submissionID, "error", err)
	}
}

// Get retrieves a submission and its results
func (s *SubmissionService) Get(ctx context.Context, submissionID uuid.UUID) (*domain.Submission, []*domain.ExecutionResult, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if sub == nil {
		return nil, nil, domain.ErrSubmissionNotFound
	}
	results, err := s.store.GetExecutionResults(ctx, submissionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get results: %w", err)
	}
	return sub, results, nil
}

// Run grades code against the visible test cases only
func (s *SubmissionService) Run(ctx context.Context, taskID uuid.UUID, code string) (*domain.GradingOutcome, error) {
	testCases, err := s.store.GetTestCasesForTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test cases: %w", err)
	}
	outcome, err := s.grader.Grade(ctx, code, domain.VisibleOnly(testCases))
	if err != nil {
		s.logger.Error("Run failed", "taskId", taskID, "error", err)
		return nil, err
	}
	return outcome, nil
}

// ValidateTestCases reports every test case of the task that does not fit
// the signature of code
func (s *SubmissionService) ValidateTestCases(ctx context.Context, taskID uuid.UUID, code string) error {
	sig, err := harness.ParseSignature(code)
	if err != nil {
		return err
	}
	testCases, err := s.store.GetTestCasesForTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get test cases: %w", err)
	}
	return harness.Validate(sig, testCases)
}
