package query

import "time"

// Query is the parsed form of one structured query. The parser fills
// it in; the executor never touches raw query text.
type Query struct {
	Patterns []NodePattern
	Edges    []EdgePattern // connects Patterns[i] -> Patterns[i+1]
	Where    Expr          // nil when no WHERE clause
	Temporal *TemporalClause
	Return   []ReturnField
	GroupBy  []PropertyPath
	OrderBy  *OrderKey
	Limit    int // 0 means no LIMIT clause
}

// NodePattern is one `(alias:type)` element. Type may be empty,
// matching any node type.
type NodePattern struct {
	Alias string
	Type  string
}

// EdgePattern is one `-[alias:type]->` element. Alias is optional and
// makes the matched edge's properties addressable in WHERE/RETURN.
type EdgePattern struct {
	Alias string
	Type  string
}

// TemporalClause restricts matches by time. AsOf selects the graph as
// it was valid at one instant; Since/Until select a change window.
type TemporalClause struct {
	AsOf  *time.Time
	Since *time.Time
	Until *time.Time
}

// AggregateFunc names one aggregate in a RETURN clause.
type AggregateFunc string

const (
	AggNone  AggregateFunc = ""
	AggCount AggregateFunc = "COUNT"
	AggAvg   AggregateFunc = "AVG"
	AggSum   AggregateFunc = "SUM"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
)

// ReturnField is one projected column, optionally wrapped in an
// aggregate function.
type ReturnField struct {
	Path PropertyPath
	Agg  AggregateFunc
}

// PropertyPath addresses a property of a bound alias, e.g. `c.name`
// or `c.metadata.language`.
type PropertyPath struct {
	Alias    string
	Segments []string
}

func (p PropertyPath) String() string {
	s := p.Alias
	for _, seg := range p.Segments {
		s += "." + seg
	}
	return s
}

// OrderKey orders result rows by one returned column.
type OrderKey struct {
	Field string // textual form of a RETURN field, e.g. "c.name" or "COUNT(c.name)"
	Desc  bool
}

type compareOp string

const (
	opEq       compareOp = "="
	opNeq      compareOp = "!="
	opLt       compareOp = "<"
	opLte      compareOp = "<="
	opGt       compareOp = ">"
	opGte      compareOp = ">="
	opContains compareOp = "CONTAINS"
)

// Expr is a WHERE predicate tree.
type Expr interface {
	exprNode()
}

// LogicalExpr joins two predicates with AND or OR.
type LogicalExpr struct {
	Op    string // "AND" or "OR"
	Left  Expr
	Right Expr
}

// CompareExpr compares one property path against a literal.
type CompareExpr struct {
	Op    compareOp
	Path  PropertyPath
	Value Literal
}

func (*LogicalExpr) exprNode() {}
func (*CompareExpr) exprNode() {}

// Literal is a string or numeric constant from the query text.
type Literal struct {
	Str      string
	Num      float64
	IsNumber bool
}
