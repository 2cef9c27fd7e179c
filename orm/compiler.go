package orm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/ormgraph/scope"
)

// Compiler turns query descriptors into dialect SQL and bind arguments.
// It is stateless and safe for concurrent use.
type Compiler struct {
	d    Dialect
	caps Capabilities
}

// NewCompiler returns a Compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{d: d, caps: d.Capabilities()}
}

// sqlWriter accumulates SQL text with "?" placeholders and the matching
// arguments in textual order.
type sqlWriter struct {
	strings.Builder
	args []any
}

func (w *sqlWriter) bind(v any) {
	w.WriteByte('?')
	w.args = append(w.args, v)
}

// Select compiles q.
func (c *Compiler) Select(q *SelectQuery) (string, []any) {
	var w sqlWriter
	c.writeSelect(&w, q)
	return rewritePlaceholders(c.d, w.String()), w.args
}

// Count compiles a COUNT over the rows q would return, ignoring its
// select list, ordering and paging. With distinct set, rows are counted by
// distinct value of that column so that to-many joins do not inflate the
// count. With q.Group set, one row per group is returned carrying the
// group columns and "count".
func (c *Compiler) Count(q *SelectQuery, distinct *ColumnRef) (string, []any) {
	cq := *q
	cq.Order, cq.Limit, cq.Offset = nil, nil, nil
	cq.Columns = nil
	for _, g := range q.Group {
		label := g.Field
		for _, col := range q.Columns {
			if col.Expr == "" && col.ColumnRef == g {
				label = col.As
			}
		}
		cq.Columns = append(cq.Columns, SelectColumn{ColumnRef: g, As: label})
	}
	expr := "COUNT(*)"
	if distinct != nil {
		expr = "COUNT(DISTINCT " + c.col(*distinct) + ")"
	}
	cq.Columns = append(cq.Columns, SelectColumn{Expr: expr, As: "count"})
	return c.Select(&cq)
}

// Insert compiles a single- or multi-row INSERT. returning names the
// column to read back on dialects using RETURNING; it is ignored elsewhere.
func (c *Compiler) Insert(table TableRef, fields []string, rows [][]any, returning string) (string, []any) {
	var w sqlWriter
	w.WriteString("INSERT INTO ")
	w.WriteString(c.table(table, false))
	switch {
	case len(fields) == 0 && c.d.Name() == "mysql":
		w.WriteString(" () VALUES ()")
	case len(fields) == 0:
		w.WriteString(" DEFAULT VALUES")
	default:
		w.WriteString(" (")
		w.WriteString(c.quoteColumns(fields))
		w.WriteString(") VALUES ")
		for i, row := range rows {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					w.WriteString(", ")
				}
				w.bind(v)
			}
			w.WriteByte(')')
		}
	}
	if returning != "" && c.d.UseReturning() {
		w.WriteString(c.d.ReturningClause(returning))
	}
	return rewritePlaceholders(c.d, w.String()), w.args
}

// Update compiles UPDATE table SET fields = values WHERE where.
func (c *Compiler) Update(table TableRef, fields []string, values []any, where []Predicate) (string, []any) {
	var w sqlWriter
	w.WriteString("UPDATE ")
	w.WriteString(c.table(table, false))
	w.WriteString(" SET ")
	for i, f := range fields {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(c.d.QuoteIdent(f))
		w.WriteString(" = ")
		w.bind(values[i])
	}
	c.writeWhere(&w, where)
	return rewritePlaceholders(c.d, w.String()), w.args
}

// Delete compiles DELETE FROM table WHERE where.
func (c *Compiler) Delete(table TableRef, where []Predicate) (string, []any) {
	var w sqlWriter
	w.WriteString("DELETE FROM ")
	w.WriteString(c.table(table, false))
	c.writeWhere(&w, where)
	return rewritePlaceholders(c.d, w.String()), w.args
}

// CreateSchema compiles CREATE SCHEMA IF NOT EXISTS.
func (c *Compiler) CreateSchema(name string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + c.d.QuoteIdent(name)
}

// CreateTable compiles CREATE TABLE IF NOT EXISTS for m, including unique
// indexes and foreign key constraints.
func (c *Compiler) CreateTable(m *Model) string {
	var defs []string
	for _, a := range m.attrs {
		defs = append(defs, c.columnDef(a))
	}
	for _, idx := range m.opts.Indexes {
		if !idx.Unique {
			continue
		}
		fields := make([]string, len(idx.Fields))
		for i, f := range idx.Fields {
			fields[i] = m.field(f)
		}
		defs = append(defs, "UNIQUE ("+c.quoteColumns(fields)+")")
	}
	for _, a := range m.attrs {
		ref := a.References
		if ref == nil {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			c.d.QuoteIdent(a.Field),
			c.table(ref.Model.tableRef(""), false),
			c.d.QuoteIdent(ref.Model.field(ref.Key)),
			c.action(ref.OnDelete),
			c.action(ref.OnUpdate),
		))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", c.table(m.tableRef(""), false), strings.Join(defs, ", "))
}

// CreateIndexes compiles CREATE INDEX statements for the non-unique
// indexes of m.
func (c *Compiler) CreateIndexes(m *Model) []string {
	var out []string
	for _, idx := range m.opts.Indexes {
		if idx.Unique {
			continue
		}
		name := idx.Name
		if name == "" {
			name = m.table + "_" + strings.Join(idx.Fields, "_")
		}
		fields := make([]string, len(idx.Fields))
		for i, f := range idx.Fields {
			fields[i] = m.field(f)
		}
		ifNotExists := " IF NOT EXISTS"
		if c.d.Name() == "mysql" {
			ifNotExists = ""
		}
		out = append(out, fmt.Sprintf("CREATE INDEX%s %s ON %s (%s)",
			ifNotExists, c.d.QuoteIdent(name), c.table(m.tableRef(""), false), c.quoteColumns(fields)))
	}
	return out
}

// DropTable compiles DROP TABLE IF EXISTS for m.
func (c *Compiler) DropTable(m *Model) string {
	s := "DROP TABLE IF EXISTS " + c.table(m.tableRef(""), false)
	if c.d.Name() == "postgres" {
		s += " CASCADE"
	}
	return s
}

func (c *Compiler) columnDef(a *Attribute) string {
	var b strings.Builder
	b.WriteString(c.d.QuoteIdent(a.Field))
	b.WriteByte(' ')
	if a.PrimaryKey && a.AutoIncrement {
		b.WriteString(c.d.AutoIncrementColumn(a.Type))
		return b.String()
	}
	b.WriteString(c.d.ColumnType(a.Type))
	if a.NotNull {
		b.WriteString(" NOT NULL")
	}
	if lit, ok := c.literal(a.DefaultValue); ok {
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	if a.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if a.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func (c *Compiler) action(a string) string {
	if a == Restrict && !c.caps.Restrict {
		return NoAction
	}
	return a
}

// literal renders constant defaults. Generated defaults have no literal.
func (c *Compiler) literal(v any) (string, bool) {
	switch x := normalizeValue(v).(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		if c.d.Name() == "postgres" {
			return strconv.FormatBool(x), true
		}
		if x {
			return "1", true
		}
		return "0", true
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05") + "'", true
	}
	return "", false
}

func (c *Compiler) writeSelect(w *sqlWriter, q *SelectQuery) {
	w.WriteString("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			w.WriteString(", ")
		}
		if col.Expr != "" {
			w.WriteString(col.Expr)
		} else {
			w.WriteString(c.col(col.ColumnRef))
		}
		if col.As != "" {
			w.WriteString(" AS ")
			w.WriteString(c.d.QuoteIdent(col.As))
		}
	}
	w.WriteString(" FROM ")
	if q.Base != nil {
		c.writeBase(w, q)
	} else {
		w.WriteString(c.table(q.From, true))
	}
	c.writeJoins(w, q.Joins)

	where := q.Where
	if b := q.Base; b != nil && b.Strategy == LimitWindow {
		where = append(c.rowNumberBounds(q.From.Alias, b), where...)
	}
	c.writeWhere(w, where)

	if len(q.Group) > 0 {
		w.WriteString(" GROUP BY ")
		for i, g := range q.Group {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteString(c.col(g))
		}
	}
	c.writeOrder(w, q.Order)
	c.writeLimit(w, q.Limit, q.Offset)
}

// writeBase writes the derived table replacing q.From, aliased as q.From.
func (c *Compiler) writeBase(w *sqlWriter, q *SelectQuery) {
	b := q.Base
	w.WriteByte('(')
	if b.Strategy == LimitUnion {
		for i, key := range b.PartitionKeys {
			if i > 0 {
				w.WriteString(" UNION ALL ")
			}
			w.WriteString("SELECT * FROM (")
			keyPred := Predicate{Col: b.PartitionBy, Op: scope.OpEq, Value: key}
			c.writeBaseSelect(w, q.From, b, &keyPred, false)
			w.WriteString(") AS ")
			w.WriteString(c.d.QuoteIdent("__g" + strconv.Itoa(i)))
		}
	} else {
		c.writeBaseSelect(w, q.From, b, nil, b.Strategy == LimitWindow)
	}
	w.WriteString(") AS ")
	w.WriteString(c.d.QuoteIdent(q.From.Alias))
}

func (c *Compiler) writeBaseSelect(w *sqlWriter, from TableRef, b *BaseQuery, keyPred *Predicate, window bool) {
	w.WriteString("SELECT ")
	w.WriteString(c.d.QuoteIdent(from.Alias))
	w.WriteString(".*")
	for _, col := range b.Extra {
		w.WriteString(", ")
		w.WriteString(c.col(col.ColumnRef))
		w.WriteString(" AS ")
		w.WriteString(c.d.QuoteIdent(col.As))
	}
	if window {
		w.WriteString(", ROW_NUMBER() OVER (PARTITION BY ")
		w.WriteString(c.col(b.PartitionBy))
		c.writeOrder(w, b.Order)
		w.WriteString(") AS ")
		w.WriteString(c.d.QuoteIdent(rowNumberLabel))
	}
	w.WriteString(" FROM ")
	w.WriteString(c.table(from, true))
	c.writeJoins(w, b.Joins)

	where := b.Where
	if keyPred != nil {
		where = append(append([]Predicate(nil), where...), *keyPred)
	}
	c.writeWhere(w, where)
	if !window {
		c.writeOrder(w, b.Order)
		c.writeLimit(w, b.Limit, b.Offset)
	}
}

func (c *Compiler) rowNumberBounds(alias string, b *BaseQuery) []Predicate {
	rn := c.d.QuoteIdent(alias) + "." + c.d.QuoteIdent(rowNumberLabel)
	offset := 0
	if b.Offset != nil {
		offset = *b.Offset
	}
	var out []Predicate
	if offset > 0 {
		out = append(out, Predicate{Raw: fmt.Sprintf("%s > %d", rn, offset)})
	}
	if b.Limit != nil {
		out = append(out, Predicate{Raw: fmt.Sprintf("%s <= %d", rn, offset+*b.Limit)})
	}
	return out
}

func (c *Compiler) writeJoins(w *sqlWriter, joins []*Join) {
	for _, j := range joins {
		w.WriteByte(' ')
		w.WriteString(string(j.Type))
		w.WriteByte(' ')
		if len(j.Nested) > 0 {
			w.WriteByte('(')
			w.WriteString(c.table(j.Table, true))
			c.writeJoins(w, j.Nested)
			w.WriteByte(')')
		} else {
			w.WriteString(c.table(j.Table, true))
		}
		w.WriteString(" ON ")
		c.writeConj(w, j.On)
	}
}

func (c *Compiler) writeWhere(w *sqlWriter, preds []Predicate) {
	if len(preds) == 0 {
		return
	}
	w.WriteString(" WHERE ")
	c.writeConj(w, preds)
}

func (c *Compiler) writeConj(w *sqlWriter, preds []Predicate) {
	if len(preds) == 0 {
		w.WriteString("1 = 1")
		return
	}
	for i, p := range preds {
		if i > 0 {
			w.WriteString(" AND ")
		}
		c.writePredicate(w, p)
	}
}

func (c *Compiler) writePredicate(w *sqlWriter, p Predicate) {
	switch {
	case p.Raw != "":
		w.WriteByte('(')
		w.WriteString(p.Raw)
		w.WriteByte(')')
		w.args = append(w.args, p.Args...)
		return
	case len(p.Any) > 0:
		w.WriteByte('(')
		for i, alt := range p.Any {
			if i > 0 {
				w.WriteString(" OR ")
			}
			c.writePredicate(w, alt)
		}
		w.WriteByte(')')
		return
	}

	if values, ok := p.Value.([]any); ok && len(values) == 0 && p.Sub == nil && p.Other == nil {
		// col IN () is invalid SQL.
		switch p.Op {
		case scope.OpIn:
			w.WriteString("1 = 0")
			return
		case scope.OpNotIn:
			w.WriteString("1 = 1")
			return
		}
	}

	w.WriteString(c.col(p.Col))
	switch {
	case p.Sub != nil:
		if p.Op == scope.OpNotIn {
			w.WriteString(" NOT IN (")
		} else {
			w.WriteString(" IN (")
		}
		c.writeSelect(w, p.Sub)
		w.WriteByte(')')
	case p.Other != nil:
		w.WriteString(" " + string(p.Op) + " ")
		w.WriteString(c.col(*p.Other))
	default:
		c.writeComparison(w, p.Op, p.Value)
	}
}

func (c *Compiler) writeComparison(w *sqlWriter, op scope.Op, v any) {
	switch op {
	case scope.OpIsNull, scope.OpNotNull:
		w.WriteString(" " + string(op))
	case scope.OpEq, scope.OpNe:
		if v == nil {
			if op == scope.OpEq {
				w.WriteString(" IS NULL")
			} else {
				w.WriteString(" IS NOT NULL")
			}
			return
		}
		w.WriteString(" " + string(op) + " ")
		w.bind(v)
	case scope.OpIn, scope.OpNotIn:
		values, _ := v.([]any)
		w.WriteString(" " + string(op) + " (")
		for i, x := range values {
			if i > 0 {
				w.WriteString(", ")
			}
			w.bind(x)
		}
		w.WriteByte(')')
	default:
		w.WriteString(" " + string(op) + " ")
		w.bind(v)
	}
}

func (c *Compiler) writeOrder(w *sqlWriter, order []OrderTerm) {
	if len(order) == 0 {
		return
	}
	w.WriteString(" ORDER BY ")
	for i, o := range order {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(c.col(o.Col))
		if o.Desc {
			w.WriteString(" DESC")
		} else {
			w.WriteString(" ASC")
		}
	}
}

func (c *Compiler) writeLimit(w *sqlWriter, limit, offset *int) {
	if limit != nil {
		fmt.Fprintf(w, " LIMIT %d", *limit)
	} else if offset != nil {
		// MySQL and SQLite only accept OFFSET after a LIMIT.
		switch c.d.Name() {
		case "mysql":
			w.WriteString(" LIMIT 18446744073709551615")
		case "sqlite":
			w.WriteString(" LIMIT -1")
		}
	}
	if offset != nil {
		fmt.Fprintf(w, " OFFSET %d", *offset)
	}
}

func (c *Compiler) col(r ColumnRef) string {
	if r.Alias == "" {
		return c.d.QuoteIdent(r.Field)
	}
	return c.d.QuoteIdent(r.Alias) + "." + c.d.QuoteIdent(r.Field)
}

// table renders a table reference. Dialects without schemas fold the
// schema into the table name.
func (c *Compiler) table(t TableRef, withAlias bool) string {
	var s string
	switch {
	case t.Schema == "":
		s = c.d.QuoteIdent(t.Name)
	case c.caps.Schemas:
		s = c.d.QuoteIdent(t.Schema) + "." + c.d.QuoteIdent(t.Name)
	default:
		s = c.d.QuoteIdent(t.Schema + "." + t.Name)
	}
	if withAlias && t.Alias != "" {
		s += " AS " + c.d.QuoteIdent(t.Alias)
	}
	return s
}

// quoteColumns joins column names with dialect-aware quoting.
func (c *Compiler) quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.d.QuoteIdent(col)
	}
	return strings.Join(quoted, ", ")
}

// rewritePlaceholders converts ? to dialect-specific placeholders ($1, $2, …).
func rewritePlaceholders(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
