package querybuilder

import (
	"fmt"
	"strings"
)

// Raw is an SQL expression written into the query as is instead of being bound
type Raw string

type QueryBuilder interface {
	Select(cols ...string) QueryBuilder
	From(table string) QueryBuilder
	Into(table string) QueryBuilder
	Where(clause string, args ...interface{}) QueryBuilder

	Or(clause string, args ...interface{}) QueryBuilder
	And(clause string, args ...interface{}) QueryBuilder

	AndGroup(fn func(qb QueryBuilder)) QueryBuilder
	OrGroup(fn func(qb QueryBuilder)) QueryBuilder

	OrderBy(col string, asc bool) QueryBuilder
	Limit(n int) QueryBuilder
	Join(joinType JoinType, table, alias, on string) QueryBuilder

	Insert(cols ...string) QueryBuilder
	Values(values ...interface{}) QueryBuilder
	OnConflict(cols ...string) QueryBuilder
	DoNothing() QueryBuilder

	Update(table string) QueryBuilder
	Set(col string, value interface{}) QueryBuilder

	// Build renders the statement with ? placeholders; an invalid statement renders as "".
	Build() (string, []interface{})

	getConditions() []Condition
}

type assignment struct {
	col   string
	value interface{}
}

type queryBuilder struct {
	schema     string
	table      string
	cols       []string
	conditions []Condition
	joins      []join
	values     [][]interface{}
	sets       []assignment
	orderBy    []string
	limit      int
	onConflict []string
	doNothing  bool
	isUpdate   bool
}

func NewQueryBuilder(schema string) QueryBuilder {
	return &queryBuilder{
		schema: schema,
	}
}

func (q *queryBuilder) qualify(table string) string {
	if q.schema == "" {
		return table
	}
	return q.schema + "." + table
}

func (q *queryBuilder) getConditions() []Condition {
	return q.conditions
}

func (q *queryBuilder) Select(cols ...string) QueryBuilder {
	q.cols = append(q.cols, cols...)
	return q
}

func (q *queryBuilder) From(table string) QueryBuilder {
	q.table = table
	return q
}

func (q *queryBuilder) Into(table string) QueryBuilder {
	q.table = table
	return q
}

func (q *queryBuilder) Where(clause string, args ...interface{}) QueryBuilder {
	return q.And(clause, args...)
}

func (q *queryBuilder) Or(clause string, args ...interface{}) QueryBuilder {
	q.conditions = append(q.conditions, Condition{
		condType: CondTypeOr,
		clause:   clause,
		args:     args,
	})
	return q
}

func (q *queryBuilder) And(clause string, args ...interface{}) QueryBuilder {
	q.conditions = append(q.conditions, Condition{
		condType: CondTypeAnd,
		clause:   clause,
		args:     args,
	})
	return q
}

func (q *queryBuilder) group(condType CondType, fn func(qb QueryBuilder)) QueryBuilder {
	sub := NewQueryBuilder(q.schema)
	fn(sub)
	q.conditions = append(q.conditions, Condition{
		condType:   condType,
		subCond:    sub.getConditions(),
		isSubGroup: true,
	})
	return q
}

func (q *queryBuilder) AndGroup(fn func(qb QueryBuilder)) QueryBuilder {
	return q.group(CondTypeAnd, fn)
}

func (q *queryBuilder) OrGroup(fn func(qb QueryBuilder)) QueryBuilder {
	return q.group(CondTypeOr, fn)
}

func (q *queryBuilder) OrderBy(col string, asc bool) QueryBuilder {
	orderVector := "ASC"
	if !asc {
		orderVector = "DESC"
	}
	q.orderBy = append(q.orderBy, fmt.Sprintf("%s %s", col, orderVector))
	return q
}

func (q *queryBuilder) Limit(n int) QueryBuilder {
	q.limit = n
	return q
}

func (q *queryBuilder) Join(joinType JoinType, table, alias, on string) QueryBuilder {
	q.joins = append(q.joins, join{
		joinType: joinType,
		table:    table,
		alias:    alias,
		on:       on,
	})
	return q
}

func (q *queryBuilder) Insert(cols ...string) QueryBuilder {
	q.cols = cols
	return q
}

func (q *queryBuilder) Values(values ...interface{}) QueryBuilder {
	q.values = append(q.values, values)
	return q
}

func (q *queryBuilder) OnConflict(cols ...string) QueryBuilder {
	q.onConflict = cols
	return q
}

func (q *queryBuilder) DoNothing() QueryBuilder {
	q.doNothing = true
	return q
}

func (q *queryBuilder) Update(table string) QueryBuilder {
	q.table = table
	q.isUpdate = true
	return q
}

func (q *queryBuilder) Set(col string, value interface{}) QueryBuilder {
	q.sets = append(q.sets, assignment{col: col, value: value})
	return q
}

func (q *queryBuilder) Build() (string, []interface{}) {
	switch {
	case q.table == "":
		return "", nil
	case len(q.values) > 0:
		return q.buildInsert()
	case q.isUpdate:
		return q.buildUpdate()
	default:
		return q.buildSelect()
	}
}

// bind renders value as a placeholder, or inline when it is Raw.
func bind(value interface{}, args []interface{}) (string, []interface{}) {
	if raw, ok := value.(Raw); ok {
		return string(raw), args
	}
	return "?", append(args, value)
}

func buildCondition(conditions []Condition) (string, []interface{}) {
	parts := make([]string, 0, len(conditions)*2)
	args := make([]interface{}, 0)

	for i, cond := range conditions {
		if i > 0 {
			parts = append(parts, cond.condType.String())
		}
		if cond.isSubGroup {
			if len(cond.subCond) == 0 {
				parts = append(parts, "TRUE")
				continue
			}
			clause, subArgs := buildCondition(cond.subCond)
			parts = append(parts, fmt.Sprintf("(%s)", clause))
			args = append(args, subArgs...)
			continue
		}

		parts = append(parts, cond.clause)
		args = append(args, cond.args...)
	}

	return strings.Join(parts, " "), args
}

func (q *queryBuilder) buildWhere(query string, args []interface{}) (string, []interface{}) {
	if len(q.conditions) == 0 {
		return query, args
	}
	condition, condArgs := buildCondition(q.conditions)
	return query + fmt.Sprintf(" WHERE %s", condition), append(args, condArgs...)
}

func (q *queryBuilder) buildSelect() (string, []interface{}) {
	if len(q.cols) == 0 {
		return "", nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(q.cols, ", "), q.qualify(q.table))
	for _, j := range q.joins {
		query += fmt.Sprintf(" %s %s %s ON %s", j.joinType.String(), q.qualify(j.table), j.alias, j.on)
	}

	query, args := q.buildWhere(query, nil)

	if len(q.orderBy) > 0 {
		query += fmt.Sprintf(" ORDER BY %s", strings.Join(q.orderBy, ", "))
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	return query, args
}

func (q *queryBuilder) buildInsert() (string, []interface{}) {
	numOfParam := len(q.cols)
	if numOfParam == 0 {
		return "", nil
	}

	valueTuples := make([]string, 0, len(q.values))
	args := make([]interface{}, 0, numOfParam*len(q.values))
	for _, row := range q.values {
		if len(row) != numOfParam {
			return "", nil
		}
		placeholders := make([]string, 0, numOfParam)
		for _, val := range row {
			var p string
			p, args = bind(val, args)
			placeholders = append(placeholders, p)
		}
		valueTuples = append(valueTuples, fmt.Sprintf("(%s)", strings.Join(placeholders, ", ")))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		q.qualify(q.table), strings.Join(q.cols, ", "), strings.Join(valueTuples, ", "))

	if len(q.onConflict) > 0 {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(q.onConflict, ", "))
	} else if q.doNothing {
		query += " ON CONFLICT DO NOTHING"
	}
	return query, args
}

func (q *queryBuilder) buildUpdate() (string, []interface{}) {
	if len(q.sets) == 0 {
		return "", nil
	}
	setClause := make([]string, 0, len(q.sets))
	args := make([]interface{}, 0, len(q.sets))
	for _, s := range q.sets {
		var p string
		p, args = bind(s.value, args)
		setClause = append(setClause, fmt.Sprintf("%s = %s", s.col, p))
	}
	query := fmt.Sprintf("UPDATE %s SET %s", q.qualify(q.table), strings.Join(setClause, ", "))

	return q.buildWhere(query, args)
}
