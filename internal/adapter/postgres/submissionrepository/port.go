// Package submissionrepository stores submissions and their execution results in PostgreSQL
package submissionrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
	querybuilder "gitlab.com/fcv-2025.net/codegrader/internal/utils"
)

var (
	_ secondary.SubmissionRepository = (*SubmissionRepository)(nil)
	_ secondary.ResultRepository     = (*SubmissionRepository)(nil)
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBTX is satisfied by *sqlx.DB, *sqlx.Conn and *sqlx.Tx
type DBTX interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
}

// SubmissionRepository implements the submission and result repositories with PostgreSQL
type SubmissionRepository struct {
	db     DBTX
	logger primary.Logger
	schema string
}

// NewSubmissionRepository creates a new PostgreSQL submission repository
func NewSubmissionRepository(db DBTX, logger primary.Logger, schema string) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
		schema: schema,
	}
}

// CreateSubmission saves a new pending submission
func (r *SubmissionRepository) CreateSubmission(ctx context.Context, submission *domain.Submission) error {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Insert(tbl.ID, tbl.UserID, tbl.TaskID, tbl.Code, tbl.Status, tbl.Score, tbl.SubmittedAt).
		Into(tbl.TableName()).
		Values(submission.ID, submission.UserID, submission.TaskID, submission.Code,
			submission.Status, submission.Score, submission.SubmittedAt).
		Build()

	if _, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to create submission", "submissionId", submission.ID, "error", err)
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID, nil when absent
func (r *SubmissionRepository) GetSubmission(ctx context.Context, submissionID uuid.UUID) (*domain.Submission, error) {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Select(tbl.ID, tbl.UserID, tbl.TaskID, tbl.Code, tbl.Status, tbl.Score, tbl.SubmittedAt, tbl.CompletedAt).
		From(tbl.TableName()).
		Where(fmt.Sprintf("%s = ?", tbl.ID), submissionID).
		Build()

	var sub domain.Submission
	err := sqlx.GetContext(ctx, r.db, &sub, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get submission", "submissionId", submissionID, "error", err)
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

// CompleteSubmission writes the terminal status and score of a pending submission
func (r *SubmissionRepository) CompleteSubmission(ctx context.Context, submissionID uuid.UUID, status domain.SubmissionStatus, score float64) error {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Update(tbl.TableName()).
		Set(tbl.Status, status).
		Set(tbl.Score, score).
		Set(tbl.CompletedAt, querybuilder.Raw("now()")).
		Where(fmt.Sprintf("%s = ?", tbl.ID), submissionID).
		And(fmt.Sprintf("%s = ?", tbl.Status), domain.SubmissionStatusPending).
		Build()

	res, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		r.logger.Error("Failed to complete submission", "submissionId", submissionID, "error", err)
		return fmt.Errorf("failed to complete submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete submission: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("submission %s: %w", submissionID, domain.ErrNotPending)
	}
	return nil
}

// MarkSubmissionErrored moves a pending submission to ERRORED. Accepted and
// rejected submissions are left untouched.
func (r *SubmissionRepository) MarkSubmissionErrored(ctx context.Context, submissionID uuid.UUID) error {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Update(tbl.TableName()).
		Set(tbl.Status, domain.SubmissionStatusErrored).
		Set(tbl.CompletedAt, querybuilder.Raw(fmt.Sprintf("COALESCE(%s, now())", tbl.CompletedAt))).
		Where(fmt.Sprintf("%s = ?", tbl.ID), submissionID).
		And(fmt.Sprintf("%s IN (?, ?)", tbl.Status), domain.SubmissionStatusPending, domain.SubmissionStatusErrored).
		Build()

	if _, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to mark submission errored", "submissionId", submissionID, "error", err)
		return fmt.Errorf("failed to mark submission errored: %w", err)
	}
	return nil
}

// GetPendingSubmissions lists up to limit pending submissions submitted
// before the given time, oldest first.
func (r *SubmissionRepository) GetPendingSubmissions(ctx context.Context, submittedBefore time.Time, limit int) ([]uuid.UUID, error) {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Select(tbl.ID).
		From(tbl.TableName()).
		Where(fmt.Sprintf("%s = ?", tbl.Status), domain.SubmissionStatusPending).
		And(fmt.Sprintf("%s < ?", tbl.SubmittedAt), submittedBefore).
		OrderBy(tbl.SubmittedAt, true).
		Limit(limit).
		Build()

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to get pending submissions", "error", err)
		return nil, fmt.Errorf("failed to get pending submissions: %w", err)
	}
	return ids, nil
}

// PersistExecutionResult stores the result of one test case. A submission
// keeps the first result recorded per test case, so a redelivered
// evaluation does not duplicate rows.
func (r *SubmissionRepository) PersistExecutionResult(ctx context.Context, submissionID uuid.UUID, result *domain.ExecutionResult) error {
	errs := result.Errors
	if errs == nil {
		errs = []domain.ExecutionError{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		r.logger.Error("Failed to marshal execution errors", "error", err)
		return fmt.Errorf("failed to marshal execution errors: %w", err)
	}
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	tbl := domain.GetExecutionResultTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Insert(tbl.ID, tbl.SubmissionID, tbl.TestCaseID, tbl.Status, tbl.Passed, tbl.Points,
			tbl.Stdout, tbl.Stderr, tbl.ExecutionTimeMs, tbl.ReturnedValue, tbl.Errors, tbl.ExitCode, tbl.CreatedAt).
		Into(tbl.TableName()).
		Values(result.ID, submissionID, result.TestCaseID, result.Status, result.Passed, result.Points,
			result.Stdout, result.Stderr, result.ExecutionTimeMs, result.ReturnedValue, errorsJSON, result.ExitCode, result.CreatedAt).
		OnConflict(tbl.SubmissionID, tbl.TestCaseID).
		Build()

	if _, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to persist execution result", "submissionId", submissionID, "testCaseId", result.TestCaseID, "error", err)
		return fmt.Errorf("failed to persist execution result: %w", err)
	}
	return nil
}

type resultRow struct {
	ID              uuid.UUID      `db:"id"`
	TestCaseID      uuid.UUID      `db:"test_case_id"`
	Status          string         `db:"status"`
	Passed          bool           `db:"passed"`
	Points          float64        `db:"points"`
	Stdout          string         `db:"stdout"`
	Stderr          string         `db:"stderr"`
	ExecutionTimeMs int64          `db:"execution_time_ms"`
	ReturnedValue   sql.NullString `db:"returned_value"`
	Errors          []byte         `db:"errors"`
	ExitCode        int            `db:"exit_code"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (row *resultRow) toDomain() (*domain.ExecutionResult, error) {
	res := &domain.ExecutionResult{
		ID:              row.ID,
		TestCaseID:      row.TestCaseID,
		Status:          domain.Status(row.Status),
		Passed:          row.Passed,
		Points:          row.Points,
		Stdout:          row.Stdout,
		Stderr:          row.Stderr,
		ExecutionTimeMs: row.ExecutionTimeMs,
		Errors:          []domain.ExecutionError{},
		ExitCode:        row.ExitCode,
		CreatedAt:       row.CreatedAt,
	}
	if row.ReturnedValue.Valid {
		v := row.ReturnedValue.String
		res.ReturnedValue = &v
	}
	if len(row.Errors) > 0 {
		if err := json.Unmarshal(row.Errors, &res.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors of result %s: %w", row.ID, err)
		}
	}
	return res, nil
}

// GetExecutionResults retrieves the results of a submission in test case order
func (r *SubmissionRepository) GetExecutionResults(ctx context.Context, submissionID uuid.UUID) ([]*domain.ExecutionResult, error) {
	tbl := domain.GetExecutionResultTable()
	tc := domain.GetTestCaseTable()
	col := func(name string) string { return "r." + name }
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Select(col(tbl.ID), col(tbl.TestCaseID), col(tbl.Status), col(tbl.Passed), col(tbl.Points),
			col(tbl.Stdout), col(tbl.Stderr), col(tbl.ExecutionTimeMs), col(tbl.ReturnedValue),
			col(tbl.Errors), col(tbl.ExitCode), col(tbl.CreatedAt)).
		From(tbl.TableName()+" r").
		Join(querybuilder.JoinTypeLeft, tc.TableName(), "tc", fmt.Sprintf("tc.%s = r.%s", tc.ID, tbl.TestCaseID)).
		Where(fmt.Sprintf("r.%s = ?", tbl.SubmissionID), submissionID).
		OrderBy("tc."+tc.Position, true).
		OrderBy(col(tbl.CreatedAt), true).
		Build()

	var rows []resultRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to get execution results", "submissionId", submissionID, "error", err)
		return nil, fmt.Errorf("failed to get execution results: %w", err)
	}

	results := make([]*domain.ExecutionResult, 0, len(rows))
	for i := range rows {
		res, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
