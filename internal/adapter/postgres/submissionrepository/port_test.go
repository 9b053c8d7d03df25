package submissionrepository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/logging"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

func newMockRepository(t *testing.T) (*SubmissionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewSubmissionRepository(sqlx.NewDb(db, "sqlmock"), logging.NewNopLogger(), "public"), mock
}

func TestCreateSubmission(t *testing.T) {
	repo, mock := newMockRepository(t)
	sub := domain.NewSubmission("user-1", uuid.New(), "func (Solution) Solve() int { return 1 }")

	mock.ExpectExec("INSERT INTO public.submissions (id, user_id, task_id, code, status, score, submitted_at) VALUES ($1, $2, $3, $4, $5, $6, $7)").
		WithArgs(sub.ID.String(), "user-1", sub.TaskID.String(), sub.Code, "PENDING", 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateSubmission(context.Background(), sub))
}

const selectSubmission = "SELECT id, user_id, task_id, code, status, score, submitted_at, completed_at FROM public.submissions WHERE id = $1"

func TestGetSubmission(t *testing.T) {
	repo, mock := newMockRepository(t)
	id, taskID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(selectSubmission).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "task_id", "code", "status", "score", "submitted_at", "completed_at"}).
			AddRow(id.String(), "user-1", taskID.String(), "code", "ACCEPTED", 0.75, now, now))

	sub, err := repo.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, taskID, sub.TaskID)
	assert.Equal(t, domain.SubmissionStatusAccepted, sub.Status)
	assert.Equal(t, 0.75, sub.Score)
	require.NotNil(t, sub.CompletedAt)
}

func TestGetSubmissionAbsent(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(selectSubmission).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sub, err := repo.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

const completeSubmission = "UPDATE public.submissions SET status = $1, score = $2, completed_at = now() WHERE id = $3 AND status = $4"

func TestCompleteSubmission(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(completeSubmission).
		WithArgs("REJECTED", 0.5, id.String(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CompleteSubmission(context.Background(), id, domain.SubmissionStatusRejected, 0.5))
}

func TestCompleteSubmissionNotPending(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(completeSubmission).
		WithArgs("ACCEPTED", 1.0, id.String(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteSubmission(context.Background(), id, domain.SubmissionStatusAccepted, 1)
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestMarkSubmissionErrored(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE public.submissions SET status = $1, completed_at = COALESCE(completed_at, now()) WHERE id = $2 AND status IN ($3, $4)").
		WithArgs("ERRORED", id.String(), "PENDING", "ERRORED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkSubmissionErrored(context.Background(), id))
}

func TestPersistExecutionResult(t *testing.T) {
	repo, mock := newMockRepository(t)
	submissionID := uuid.New()
	line := 3
	res := domain.FailedResult(uuid.New(), domain.StatusCompilationError, domain.ExecutionError{Message: "undefined: x", StartLine: &line})

	mock.ExpectExec("INSERT INTO public.execution_results (id, submission_id, test_case_id, status, passed, points, stdout, stderr, execution_time_ms, returned_value, errors, exit_code, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ON CONFLICT (submission_id, test_case_id) DO NOTHING").
		WithArgs(res.ID.String(), submissionID.String(), res.TestCaseID.String(), "COMPILATION_ERROR", false, 0.0,
			"", "", int64(0), nil, []byte(`[{"message":"undefined: x","startLine":3}]`), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.PersistExecutionResult(context.Background(), submissionID, res))
}

func TestGetExecutionResults(t *testing.T) {
	repo, mock := newMockRepository(t)
	submissionID := uuid.New()
	first, second := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT r.id, r.test_case_id, r.status, r.passed, r.points, r.stdout, r.stderr, r.execution_time_ms, r.returned_value, r.errors, r.exit_code, r.created_at FROM public.execution_results r LEFT JOIN public.test_cases tc ON tc.id = r.test_case_id WHERE r.submission_id = $1 ORDER BY tc.position ASC, r.created_at ASC").
		WithArgs(submissionID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "test_case_id", "status", "passed", "points", "stdout", "stderr", "execution_time_ms", "returned_value", "errors", "exit_code", "created_at"}).
			AddRow(uuid.NewString(), first.String(), "SUCCESS", true, 1.0, "hi\n", "", 12, "3", []byte(`[]`), 0, now).
			AddRow(uuid.NewString(), second.String(), "RUNTIME_ERROR", false, 0.0, "", "boom", 4, nil, []byte(`[{"message":"boom"}]`), 1, now))

	results, err := repo.GetExecutionResults(context.Background(), submissionID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, first, results[0].TestCaseID)
	assert.True(t, results[0].Passed)
	require.NotNil(t, results[0].ReturnedValue)
	assert.Equal(t, "3", *results[0].ReturnedValue)
	assert.Empty(t, results[0].Errors)

	assert.Equal(t, domain.StatusRuntimeError, results[1].Status)
	assert.Nil(t, results[1].ReturnedValue)
	require.Len(t, results[1].Errors, 1)
	assert.Equal(t, "boom", results[1].Errors[0].Message)
}

func TestPersistExecutionResultTwiceKeepsFirst(t *testing.T) {
	repo, mock := newMockRepository(t)
	submissionID := uuid.New()
	res := domain.FailedResult(uuid.New(), domain.StatusRuntimeError, domain.Message("boom"))

	const insert = "INSERT INTO public.execution_results (id, submission_id, test_case_id, status, passed, points, stdout, stderr, execution_time_ms, returned_value, errors, exit_code, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ON CONFLICT (submission_id, test_case_id) DO NOTHING"
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.PersistExecutionResult(context.Background(), submissionID, res))
	require.NoError(t, repo.PersistExecutionResult(context.Background(), submissionID, res))
}

func TestGetPendingSubmissions(t *testing.T) {
	repo, mock := newMockRepository(t)
	first, second := uuid.New(), uuid.New()
	before := time.Now().Add(-time.Minute)

	mock.ExpectQuery("SELECT id FROM public.submissions WHERE status = $1 AND submitted_at < $2 ORDER BY submitted_at ASC LIMIT 50").
		WithArgs("PENDING", before).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

	ids, err := repo.GetPendingSubmissions(context.Background(), before, 50)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
}
