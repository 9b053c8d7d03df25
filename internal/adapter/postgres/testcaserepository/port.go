package testcaserepository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
	querybuilder "gitlab.com/fcv-2025.net/codegrader/internal/utils"
)

var _ secondary.TestCaseRepository = (*TestCaseRepository)(nil)

// TestCaseRepository reads task test cases from PostgreSQL
type TestCaseRepository struct {
	db     sqlx.QueryerContext
	logger primary.Logger
	schema string
}

func NewTestCaseRepository(db sqlx.QueryerContext, logger primary.Logger, schema string) *TestCaseRepository {
	return &TestCaseRepository{
		db:     db,
		logger: logger,
		schema: schema,
	}
}

type testCaseRow struct {
	ID        uuid.UUID      `db:"id"`
	TaskID    uuid.UUID      `db:"task_id"`
	Input     sql.NullString `db:"input_json"`
	Expected  sql.NullString `db:"expected_json"`
	IsHidden  bool           `db:"is_hidden"`
	MaxPoints float64        `db:"max_points"`
	TimeoutMs sql.NullInt64  `db:"timeout_ms"`
}

func (row *testCaseRow) toDomain() *domain.TestCase {
	tc := &domain.TestCase{
		ID:        row.ID,
		TaskID:    row.TaskID,
		IsHidden:  row.IsHidden,
		MaxPoints: row.MaxPoints,
	}
	if row.Input.Valid {
		v := row.Input.String
		tc.Input = &v
	}
	if row.Expected.Valid {
		v := row.Expected.String
		tc.Expected = &v
	}
	if row.TimeoutMs.Valid {
		d := time.Duration(row.TimeoutMs.Int64) * time.Millisecond
		tc.Timeout = &d
	}
	return tc
}

// GetTestCasesForTask retrieves the test cases of a task ordered by position
func (r *TestCaseRepository) GetTestCasesForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TestCase, error) {
	tbl := domain.GetTestCaseTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Select(tbl.ID, tbl.TaskID, tbl.Input, tbl.Expected, tbl.IsHidden, tbl.MaxPoints, tbl.TimeoutMs).
		From(tbl.TableName()).
		Where(fmt.Sprintf("%s = ?", tbl.TaskID), taskID).
		OrderBy(tbl.Position, true).
		OrderBy(tbl.ID, true).
		Build()

	var rows []testCaseRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		r.logger.Error("Failed to get test cases", "taskId", taskID, "error", err)
		return nil, fmt.Errorf("failed to get test cases: %w", err)
	}

	testCases := make([]*domain.TestCase, 0, len(rows))
	for i := range rows {
		testCases = append(testCases, rows[i].toDomain())
	}
	return testCases, nil
}
