package scope

import (
	"slices"
	"strings"
)

// Applier is implemented by query builders to receive scope fragments.
// This interface lives in the scope package so that orm can import scope
// without creating circular dependencies.
type Applier interface {
	ApplyWhere(c Cond)
	ApplyOrder(o Order)
	ApplyLimit(n int)
	ApplyOffset(n int)
	ApplySelect(attrs []string)
	ApplyGroup(attrs []string)
}

// Scope is a single query fragment. Scopes are immutable and safe to reuse
// across queries.
type Scope interface {
	Apply(a Applier)
}

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpLike    Op = "LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

// Cond is a predicate on a model attribute. Attribute names are resolved
// against the model the condition is attached to and qualified with that
// model's alias when compiled, so the same Cond can be used on a root
// query or on a joined include without ambiguity.
//
// A Cond with Raw set is a verbatim SQL fragment; it is not qualified.
// A Cond with Any set is the disjunction of its members.
type Cond struct {
	Attr  string
	Op    Op
	Value any

	Raw  string
	Args []any

	Any []Cond
}

// Apply implements Scope.
func (c Cond) Apply(a Applier) { a.ApplyWhere(c) }

// IsRaw reports whether c is a verbatim SQL fragment.
func (c Cond) IsRaw() bool { return c.Raw != "" }

// Order is an ORDER BY term on a model attribute.
type Order struct {
	Attr string
	Desc bool
}

// Apply implements Scope.
func (o Order) Apply(a Applier) { a.ApplyOrder(o) }

// Where returns a raw WHERE fragment.
//
//	scope.Where("age > ?", 18)
//	scope.Where("name = ? AND role = ?", "alice", "admin")
func Where(clause string, args ...any) Cond {
	return Cond{Raw: clause, Args: args}
}

// Eq matches rows whose attr equals v. A nil v compiles to IS NULL.
func Eq(attr string, v any) Cond { return Cond{Attr: attr, Op: OpEq, Value: v} }

// Ne matches rows whose attr differs from v.
func Ne(attr string, v any) Cond { return Cond{Attr: attr, Op: OpNe, Value: v} }

func Gt(attr string, v any) Cond  { return Cond{Attr: attr, Op: OpGt, Value: v} }
func Gte(attr string, v any) Cond { return Cond{Attr: attr, Op: OpGte, Value: v} }
func Lt(attr string, v any) Cond  { return Cond{Attr: attr, Op: OpLt, Value: v} }
func Lte(attr string, v any) Cond { return Cond{Attr: attr, Op: OpLte, Value: v} }

// Like matches rows whose attr matches the SQL LIKE pattern.
func Like(attr, pattern string) Cond { return Cond{Attr: attr, Op: OpLike, Value: pattern} }

// IsNull matches rows whose attr is NULL.
func IsNull(attr string) Cond { return Cond{Attr: attr, Op: OpIsNull} }

// NotNull matches rows whose attr is not NULL.
func NotNull(attr string) Cond { return Cond{Attr: attr, Op: OpNotNull} }

// In returns an IN condition, expanding the slice into individual
// placeholders at compile time. No reflection is used; generics handle
// the type conversion. An empty slice matches nothing.
//
//	scope.In("id", []int{1, 2, 3})  // → id IN (?, ?, ?)
func In[T any](attr string, values []T) Cond {
	return Cond{Attr: attr, Op: OpIn, Value: toAny(values)}
}

// NotIn is the negation of In. An empty slice matches everything.
func NotIn[T any](attr string, values []T) Cond {
	return Cond{Attr: attr, Op: OpNotIn, Value: toAny(values)}
}

// Or returns the disjunction of conds.
func Or(conds ...Cond) Cond { return Cond{Any: conds} }

// Conds converts an attribute → value mapping into equality conditions,
// ordered by attribute name so compiled SQL is deterministic.
func Conds(m map[string]any) []Cond {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Cond, len(keys))
	for i, k := range keys {
		out[i] = Eq(k, m[k])
	}
	return out
}

// Asc orders by attr ascending.
func Asc(attr string) Order { return Order{Attr: attr} }

// Desc orders by attr descending.
func Desc(attr string) Order { return Order{Attr: attr, Desc: true} }

// OrderBy parses "attr" or "attr DESC" into an Order.
//
//	scope.OrderBy("created_at DESC")
func OrderBy(clause string) Order {
	fields := strings.Fields(clause)
	if len(fields) == 0 {
		return Order{}
	}
	o := Order{Attr: fields[0]}
	if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
		o.Desc = true
	}
	return o
}

type limitScope int

func (l limitScope) Apply(a Applier) { a.ApplyLimit(int(l)) }

type offsetScope int

func (o offsetScope) Apply(a Applier) { a.ApplyOffset(int(o)) }

type selectScope []string

func (s selectScope) Apply(a Applier) { a.ApplySelect(s) }

type groupScope []string

func (g groupScope) Apply(a Applier) { a.ApplyGroup(g) }

// Limit returns a Scope that sets the LIMIT.
func Limit(n int) Scope { return limitScope(n) }

// Offset returns a Scope that sets the OFFSET.
func Offset(n int) Scope { return offsetScope(n) }

// Select returns a Scope that restricts the selected attributes.
//
//	scope.Select("id", "name")
func Select(attrs ...string) Scope { return selectScope(attrs) }

// Group returns a Scope that sets the GROUP BY attributes.
func Group(attrs ...string) Scope { return groupScope(attrs) }

// Scopes is a named slice of Scope, useful for conditionally building
// up a set of scopes.
//
//	var s scope.Scopes
//	if onlyActive {
//	    s = s.Append(scope.Eq("active", true))
//	}
//	s = s.Append(Paginate(page, perPage))
//	orm.Find(db, users).Scopes(s...).All(ctx)
type Scopes []Scope

// Append adds scopes and returns a new Scopes. The receiver is not modified.
func (ss Scopes) Append(scopes ...Scope) Scopes {
	return append(append(Scopes(nil), ss...), scopes...)
}

// Merge concatenates two Scopes and returns a new Scopes.
// Neither receiver nor argument is modified.
func (ss Scopes) Merge(other Scopes) Scopes {
	return append(append(Scopes(nil), ss...), other...)
}

// Combine creates a Scopes from the given scopes.
//
//	scope.Combine(scope.Limit(10), scope.Offset(20))
func Combine(scopes ...Scope) Scopes {
	return Scopes(scopes)
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
