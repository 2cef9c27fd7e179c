package orm

import "github.com/mickamy/ormgraph/scope"

// TableRef names a table and the alias it is read under.
type TableRef struct {
	Schema string
	Name   string
	Alias  string
}

// ColumnRef is a column of an aliased table. An empty Alias leaves the
// column unqualified.
type ColumnRef struct {
	Alias string
	Field string
}

// SelectColumn is one item of a select list. Expr, when set, is written
// verbatim instead of the column reference.
type SelectColumn struct {
	ColumnRef
	Expr string
	As   string
}

// JoinType is the SQL join operator.
type JoinType string

const (
	LeftOuterJoin JoinType = "LEFT OUTER JOIN"
	InnerJoin     JoinType = "INNER JOIN"
)

// Join joins Table on the conjunction of On. Nested joins are grouped in
// parentheses with Table so that an inner join below an outer join only
// filters the outer join's rows.
type Join struct {
	Type   JoinType
	Table  TableRef
	On     []Predicate
	Nested []*Join
}

// Predicate is one boolean term. Exactly one form applies, checked in
// this order: Raw, Any, Sub, Other, then Col Op Value.
type Predicate struct {
	Col   ColumnRef
	Op    scope.Op
	Value any
	Other *ColumnRef
	Sub   *SelectQuery
	Raw   string
	Args  []any
	Any   []Predicate
}

// OrderTerm is one ORDER BY item.
type OrderTerm struct {
	Col  ColumnRef
	Desc bool
}

// LimitStrategy selects how a per-parent limit is expressed.
type LimitStrategy int

const (
	// LimitPlain applies LIMIT/OFFSET to the derived table as a whole.
	LimitPlain LimitStrategy = iota
	// LimitWindow numbers rows per partition with ROW_NUMBER().
	LimitWindow
	// LimitUnion runs one limited sub-select per partition key and
	// concatenates them with UNION ALL.
	LimitUnion
)

// BaseQuery is a derived table standing in for the FROM table. It holds
// the filtering, ordering and paging that must happen before to-many
// joins multiply the rows.
type BaseQuery struct {
	Joins []*Join
	// Extra columns exposed next to the table's own columns.
	Extra  []SelectColumn
	Where  []Predicate
	Order  []OrderTerm
	Limit  *int
	Offset *int

	Strategy      LimitStrategy
	PartitionBy   ColumnRef
	PartitionKeys []any
}

// SelectQuery is the dialect-independent description of a SELECT.
type SelectQuery struct {
	From    TableRef
	Base    *BaseQuery
	Columns []SelectColumn
	Joins   []*Join
	Where   []Predicate
	Group   []ColumnRef
	Order   []OrderTerm
	Limit   *int
	Offset  *int
}

// rowNumberLabel is the column carrying ROW_NUMBER() in windowed bases.
const rowNumberLabel = "__rn"

// groupKeyLabel is the column carrying the parent key of a separate
// many-to-many load.
const groupKeyLabel = "__key"
