package querybuilder

type CondType int

const (
	CondTypeAnd CondType = iota + 1
	CondTypeOr
)

var condKeywords = map[CondType]string{
	CondTypeAnd: "AND",
	CondTypeOr:  "OR",
}

func (c CondType) String() string {
	return condKeywords[c]
}

// Condition is one WHERE clause, or a parenthesized group of them
type Condition struct {
	condType   CondType
	clause     string
	args       []interface{}
	subCond    []Condition
	isSubGroup bool
}

type JoinType int

const (
	JoinTypeInner JoinType = iota + 1
	JoinTypeLeft
	JoinTypeRight
)

var joinKeywords = map[JoinType]string{
	JoinTypeInner: "INNER JOIN",
	JoinTypeLeft:  "LEFT JOIN",
	JoinTypeRight: "RIGHT JOIN",
}

func (j JoinType) String() string {
	return joinKeywords[j]
}

type join struct {
	joinType JoinType
	table    string
	alias    string
	on       string
}
