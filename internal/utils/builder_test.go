package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSelect(t *testing.T) {
	query, args := NewQueryBuilder("public").
		Select("id", "status").
		From("submissions").
		Where("id = ?", "abc").
		OrderBy("submitted_at", false).
		Build()

	assert.Equal(t, "SELECT id, status FROM public.submissions WHERE id = ? ORDER BY submitted_at DESC", query)
	assert.Equal(t, []interface{}{"abc"}, args)
}

func TestBuildSelectWithJoinAndGroups(t *testing.T) {
	query, args := NewQueryBuilder("").
		Select("r.id").
		From("execution_results r").
		Join(JoinTypeLeft, "test_cases", "tc", "tc.id = r.test_case_id").
		Where("r.submission_id = ?", 1).
		OrGroup(func(qb QueryBuilder) {
			qb.Where("r.passed = ?", true).And("r.points > ?", 0)
		}).
		OrderBy("tc.position", true).
		Build()

	assert.Equal(t,
		"SELECT r.id FROM execution_results r LEFT JOIN test_cases tc ON tc.id = r.test_case_id "+
			"WHERE r.submission_id = ? OR (r.passed = ? AND r.points > ?) ORDER BY tc.position ASC",
		query)
	assert.Equal(t, []interface{}{1, true, 0}, args)
}

func TestBuildInsert(t *testing.T) {
	query, args := NewQueryBuilder("grader").
		Insert("id", "status", "submitted_at").
		Into("submissions").
		Values("a", "PENDING", Raw("now()")).
		Values("b", "PENDING", Raw("now()")).
		OnConflict("id").
		Build()

	assert.Equal(t,
		"INSERT INTO grader.submissions (id, status, submitted_at) VALUES (?, ?, now()), (?, ?, now()) ON CONFLICT (id) DO NOTHING",
		query)
	assert.Equal(t, []interface{}{"a", "PENDING", "b", "PENDING"}, args)
}

func TestBuildInsertRowMismatch(t *testing.T) {
	query, args := NewQueryBuilder("").
		Insert("id", "status").
		Into("submissions").
		Values("a").
		Build()

	assert.Empty(t, query)
	assert.Nil(t, args)
}

func TestBuildUpdate(t *testing.T) {
	query, args := NewQueryBuilder("").
		Update("submissions").
		Set("status", "ACCEPTED").
		Set("score", 1.0).
		Set("completed_at", Raw("now()")).
		Where("id = ?", "abc").
		And("status = ?", "PENDING").
		Build()

	assert.Equal(t, "UPDATE submissions SET status = ?, score = ?, completed_at = now() WHERE id = ? AND status = ?", query)
	assert.Equal(t, []interface{}{"ACCEPTED", 1.0, "abc", "PENDING"}, args)
}

func TestBuildWithoutTable(t *testing.T) {
	query, _ := NewQueryBuilder("").Select("id").Build()
	assert.Empty(t, query)
}

func TestBuildSelectWithLimit(t *testing.T) {
	query, args := NewQueryBuilder("public").
		Select("id").
		From("submissions").
		Where("status = ?", "PENDING").
		And("submitted_at < ?", "t").
		OrderBy("submitted_at", true).
		Limit(100).
		Build()

	assert.Equal(t, "SELECT id FROM public.submissions WHERE status = ? AND submitted_at < ? ORDER BY submitted_at ASC LIMIT 100", query)
	assert.Equal(t, []interface{}{"PENDING", "t"}, args)
}
