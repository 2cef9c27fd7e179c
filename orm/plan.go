package orm

import (
	"fmt"
	"slices"

	"github.com/mickamy/ormgraph/scope"
)

// Plan is a compiled find: the main query plus, attached to the nodes of
// the include tree, the separate queries run once the parent keys are
// known.
type Plan struct {
	Model *Model
	// Query is the main query. It loads the root rows and every include
	// that is joined rather than separate.
	Query *SelectQuery

	root    *planNode
	dialect string
}

// planNode is one model in the include tree.
type planNode struct {
	model   *Model
	assoc   *Association
	include *Include

	// alias is the SQL alias of the node's table; prefix is prepended to
	// attribute names to form column labels ("" for a query root).
	alias  string
	prefix string

	requested []string
	needed    []string
	attrs     []string

	joined   []*planNode
	separate []*planNode

	// Separate nodes only: the query template whose key predicate is
	// filled in per batch, and the label holding the parent key in its rows.
	tmpl       *SelectQuery
	groupLabel string
	groupAttr  *Attribute
}

func (n *planNode) need(attr string) {
	if !slices.Contains(n.needed, attr) {
		n.needed = append(n.needed, attr)
	}
}

// hasMultiJoin reports whether a to-many association is joined anywhere
// below n, i.e. whether n's rows may be repeated in the result.
func (n *planNode) hasMultiJoin() bool {
	for _, c := range n.joined {
		if c.assoc.IsMultiple() || c.hasMultiJoin() {
			return true
		}
	}
	return false
}

// querySpec is what a query root needs from FindOptions or a separate
// Include.
type querySpec struct {
	where   []scope.Cond
	order   []scope.Order
	limit   *int
	offset  *int
	group   []string
	include []*Include
}

type planner struct {
	caps    Capabilities
	dialect string
}

// BuildFindQuery plans a find on m for dialect d. It validates the whole
// include tree up front, so a plan that builds never fails on an unknown
// association or an unsupported option at execution time.
func BuildFindQuery(m *Model, opts *FindOptions, d Dialect) (*Plan, error) {
	opts = opts.clone()
	p := &planner{caps: d.Capabilities(), dialect: d.Name()}
	root := &planNode{model: m, alias: m.name, requested: opts.Attributes}
	spec := querySpec{
		where:   opts.Where,
		order:   opts.Order,
		limit:   opts.Limit,
		offset:  opts.Offset,
		group:   opts.Group,
		include: opts.Include,
	}
	q, err := p.build(root, spec)
	if err != nil {
		return nil, err
	}
	return &Plan{Model: m, Query: q, root: root, dialect: d.Name()}, nil
}

// build plans the query rooted at root. For separate nodes (root.assoc
// set) the query is a template filtered on an empty key list.
func (p *planner) build(root *planNode, s querySpec) (*SelectQuery, error) {
	q := &SelectQuery{From: root.model.tableRef(root.alias)}

	var (
		keyPred   *Predicate
		baseJoins []*Join
		extra     []SelectColumn
	)
	if root.assoc != nil {
		kp, joins, cols := p.keyFilter(root)
		keyPred, baseJoins, extra = &kp, joins, cols
	}

	if err := p.joinChildren(root, s.include, &q.Joins, nil, true); err != nil {
		return nil, err
	}

	where, err := condPredicates(root.model, root.alias, s.where)
	if err != nil {
		return nil, err
	}
	if root.assoc != nil {
		scoped, err := condPredicates(root.model, root.alias, root.assoc.scopeConds())
		if err != nil {
			return nil, err
		}
		where = append(append([]Predicate{*keyPred}, scoped...), where...)
	}
	order, err := orderTerms(root.model, root.alias, s.order)
	if err != nil {
		return nil, err
	}
	childOrder, err := p.joinedOrder(root)
	if err != nil {
		return nil, err
	}

	grouped := root.assoc != nil && (s.limit != nil || s.offset != nil)
	switch {
	case grouped:
		strategy := LimitWindow
		if !p.caps.WindowFunctions {
			strategy = LimitUnion
		}
		baseOrder := order
		if len(baseOrder) == 0 && strategy == LimitWindow {
			baseOrder = []OrderTerm{{Col: ColumnRef{Alias: root.alias, Field: root.model.pk.Field}}}
		}
		q.Base = &BaseQuery{
			Joins:       baseJoins,
			Extra:       extra,
			Where:       where,
			Order:       baseOrder,
			Limit:       s.limit,
			Offset:      s.offset,
			Strategy:    strategy,
			PartitionBy: keyPred.Col,
		}
		q.Order = append(order, childOrder...)
	case len(baseJoins) > 0:
		q.Base = &BaseQuery{Joins: baseJoins, Extra: extra, Where: where}
		q.Order = append(order, childOrder...)
	case (s.limit != nil || s.offset != nil) && root.hasMultiJoin():
		restrict, err := p.requiredSubqueries(root)
		if err != nil {
			return nil, err
		}
		q.Base = &BaseQuery{
			Where:  append(where, restrict...),
			Order:  order,
			Limit:  s.limit,
			Offset: s.offset,
		}
		q.Order = append(order, childOrder...)
	default:
		q.Where = where
		q.Order = append(order, childOrder...)
		q.Limit, q.Offset = s.limit, s.offset
	}

	for _, g := range s.group {
		a, ok := root.model.byName[g]
		if !ok {
			return nil, unknownAttribute(root.model, g)
		}
		q.Group = append(q.Group, ColumnRef{Alias: root.alias, Field: a.Field})
	}

	if err := p.selectColumns(q, root, len(s.group) == 0); err != nil {
		return nil, err
	}
	for _, col := range extra {
		q.Columns = append(q.Columns, SelectColumn{ColumnRef: ColumnRef{Alias: root.alias, Field: col.As}, As: col.As})
	}
	return q, nil
}

// keyFilter returns the predicate restricting a separate query to the
// parent keys, and for many-to-many the junction join exposing the parent
// key as groupKeyLabel.
func (p *planner) keyFilter(n *planNode) (Predicate, []*Join, []SelectColumn) {
	a := n.assoc
	if a.kind != KindBelongsToMany {
		key := a.childKey()
		n.need(key)
		n.groupLabel = key
		n.groupAttr = a.target.byName[key]
		col := ColumnRef{Alias: n.alias, Field: a.target.field(key)}
		return Predicate{Col: col, Op: scope.OpIn, Value: []any{}}, nil, nil
	}

	j := a.through
	jAlias := j.name
	fkCol := ColumnRef{Alias: jAlias, Field: j.field(a.fk)}
	join := &Join{
		Type:  InnerJoin,
		Table: j.tableRef(jAlias),
		On: []Predicate{{
			Col:   ColumnRef{Alias: jAlias, Field: j.field(a.otherKey)},
			Op:    scope.OpEq,
			Other: &ColumnRef{Alias: n.alias, Field: a.target.field(a.targetKey)},
		}},
	}
	n.groupLabel = groupKeyLabel
	n.groupAttr = j.byName[a.fk]
	return Predicate{Col: fkCol, Op: scope.OpIn, Value: []any{}},
		[]*Join{join},
		[]SelectColumn{{ColumnRef: fkCol, As: groupKeyLabel}}
}

// joinChildren plans the includes of parent. Joined includes are appended
// to dest; a required include below an optional one is grouped into the
// optional join so that it cannot drop the optional join's parent rows.
func (p *planner) joinChildren(parent *planNode, incs []*Include, dest *[]*Join, parentJoin *Join, queryRoot bool) error {
	seen := make(map[string]bool, len(incs))
	for _, inc := range incs {
		a, err := resolveInclude(parent.model, inc)
		if err != nil {
			return err
		}
		if seen[a.as] {
			return &AssociationConfigurationError{Model: parent.model.name, Alias: a.as, Reason: "included more than once"}
		}
		seen[a.as] = true

		child := &planNode{model: a.target, assoc: a, include: inc, requested: inc.Attributes}
		if inc.Separate || (a.IsMultiple() && (inc.Limit != nil || inc.Offset != nil)) {
			if err := p.planSeparate(child); err != nil {
				return err
			}
			parent.need(a.parentKey())
			parent.separate = append(parent.separate, child)
			continue
		}

		child.alias = a.as
		if !queryRoot {
			child.alias = parent.alias + "->" + a.as
		} else if slices.Contains(rootAliases(parent), child.alias) {
			return &AssociationConfigurationError{
				Model:  parent.model.name,
				Alias:  a.as,
				Reason: "alias is also used by the query root; declare the association with another As",
			}
		}
		child.prefix = child.alias + "."

		joinType := LeftOuterJoin
		if inc.Required || len(inc.Where) > 0 {
			joinType = InnerJoin
		}
		join, err := p.joinFor(parent, child, joinType)
		if err != nil {
			return err
		}

		target := dest
		if joinType == InnerJoin && parentJoin != nil && parentJoin.Type == LeftOuterJoin {
			target = &parentJoin.Nested
		}
		*target = append(*target, join)
		parent.joined = append(parent.joined, child)

		if err := p.joinChildren(child, inc.Include, target, join, false); err != nil {
			return err
		}
	}
	return nil
}

// rootAliases lists the table aliases a query rooted at root uses before
// any include is joined.
func rootAliases(root *planNode) []string {
	out := []string{root.alias}
	if root.assoc != nil && root.assoc.kind == KindBelongsToMany {
		out = append(out, root.assoc.through.name)
	}
	return out
}

// checkIdentifier rejects an alias or column label the database would
// truncate, since the truncated label no longer matches on assembly.
func (p *planner) checkIdentifier(id string) error {
	if p.caps.MaxIdentifier > 0 && len(id) > p.caps.MaxIdentifier {
		return &UnsupportedFeatureError{
			Feature: fmt.Sprintf("identifier %q of %d bytes (limit %d)", id, len(id), p.caps.MaxIdentifier),
			Dialect: p.dialect,
		}
	}
	return nil
}

// joinFor builds the join of child onto parent. A many-to-many join is the
// junction join with the target joined inside it.
func (p *planner) joinFor(parent, child *planNode, joinType JoinType) (*Join, error) {
	a := child.assoc
	on, err := p.targetConds(child)
	if err != nil {
		return nil, err
	}
	switch a.kind {
	case KindHasOne, KindHasMany:
		eq := Predicate{
			Col:   ColumnRef{Alias: child.alias, Field: a.target.field(a.fk)},
			Op:    scope.OpEq,
			Other: &ColumnRef{Alias: parent.alias, Field: a.source.field(a.sourceKey)},
		}
		return &Join{Type: joinType, Table: a.target.tableRef(child.alias), On: append([]Predicate{eq}, on...)}, nil
	case KindBelongsTo:
		eq := Predicate{
			Col:   ColumnRef{Alias: child.alias, Field: a.target.field(a.targetKey)},
			Op:    scope.OpEq,
			Other: &ColumnRef{Alias: parent.alias, Field: a.source.field(a.fk)},
		}
		return &Join{Type: joinType, Table: a.target.tableRef(child.alias), On: append([]Predicate{eq}, on...)}, nil
	default:
		j := a.through
		jAlias := child.alias + "->" + j.name
		if err := p.checkIdentifier(jAlias); err != nil {
			return nil, err
		}
		inner := &Join{
			Type:  InnerJoin,
			Table: a.target.tableRef(child.alias),
			On: append([]Predicate{{
				Col:   ColumnRef{Alias: child.alias, Field: a.target.field(a.targetKey)},
				Op:    scope.OpEq,
				Other: &ColumnRef{Alias: jAlias, Field: j.field(a.otherKey)},
			}}, on...),
		}
		return &Join{
			Type:  joinType,
			Table: j.tableRef(jAlias),
			On: []Predicate{{
				Col:   ColumnRef{Alias: jAlias, Field: j.field(a.fk)},
				Op:    scope.OpEq,
				Other: &ColumnRef{Alias: parent.alias, Field: a.source.field(a.sourceKey)},
			}},
			Nested: []*Join{inner},
		}, nil
	}
}

// targetConds returns the association scope and include where of a joined
// child, qualified with its alias.
func (p *planner) targetConds(child *planNode) ([]Predicate, error) {
	conds := append(child.assoc.scopeConds(), child.include.Where...)
	return condPredicates(child.model, child.alias, conds)
}

// requiredSubqueries restricts the root of a limited query to rows that
// have a match for every required to-many include, so that the limit
// counts only rows that survive the joins.
func (p *planner) requiredSubqueries(root *planNode) ([]Predicate, error) {
	var out []Predicate
	for _, c := range root.joined {
		inc := c.include
		if !c.assoc.IsMultiple() || !(inc.Required || len(inc.Where) > 0) {
			continue
		}
		a := c.assoc
		conds, err := p.targetConds(c)
		if err != nil {
			return nil, err
		}
		sub := &SelectQuery{From: a.target.tableRef(c.alias), Where: conds}
		if a.kind == KindBelongsToMany {
			j := a.through
			jAlias := c.alias + "->" + j.name
			sub = &SelectQuery{
				From: j.tableRef(jAlias),
				Joins: []*Join{{
					Type:  InnerJoin,
					Table: a.target.tableRef(c.alias),
					On: append([]Predicate{{
						Col:   ColumnRef{Alias: c.alias, Field: a.target.field(a.targetKey)},
						Op:    scope.OpEq,
						Other: &ColumnRef{Alias: jAlias, Field: j.field(a.otherKey)},
					}}, conds...),
				}},
				Columns: []SelectColumn{{ColumnRef: ColumnRef{Alias: jAlias, Field: j.field(a.fk)}}},
			}
		} else {
			sub.Columns = []SelectColumn{{ColumnRef: ColumnRef{Alias: c.alias, Field: a.target.field(a.fk)}}}
		}
		out = append(out, Predicate{
			Col: ColumnRef{Alias: root.alias, Field: a.source.field(a.sourceKey)},
			Op:  scope.OpIn,
			Sub: sub,
		})
	}
	return out, nil
}

// joinedOrder collects the ordering of joined includes below n, applied
// after the root ordering.
func (p *planner) joinedOrder(n *planNode) ([]OrderTerm, error) {
	var out []OrderTerm
	for _, c := range n.joined {
		terms, err := orderTerms(c.model, c.alias, c.include.Order)
		if err != nil {
			return nil, err
		}
		out = append(out, terms...)
		nested, err := p.joinedOrder(c)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// planSeparate plans a separate include as the root of its own query.
func (p *planner) planSeparate(n *planNode) error {
	inc := n.include
	if n.assoc.IsMultiple() && (inc.Limit != nil || inc.Offset != nil) && !p.caps.GroupedLimit {
		return &UnsupportedFeatureError{
			Feature: fmt.Sprintf("limit on separately loaded association %q", n.assoc.as),
			Dialect: p.dialect,
		}
	}
	n.alias = n.model.name
	limit, offset := inc.Limit, inc.Offset
	if n.assoc.IsSingle() {
		limit, offset = nil, nil
	}
	tmpl, err := p.build(n, querySpec{
		where:   inc.Where,
		order:   inc.Order,
		limit:   limit,
		offset:  offset,
		include: inc.Include,
	})
	if err != nil {
		return err
	}
	n.tmpl = tmpl
	return nil
}

// queryFor returns the separate query of n restricted to keys. The key
// predicate is always the first term of the filtering where clause.
func (n *planNode) queryFor(keys []any) *SelectQuery {
	q := *n.tmpl
	if q.Base != nil {
		b := *q.Base
		b.Where = withKeys(b.Where, keys)
		if b.Strategy == LimitUnion {
			b.PartitionKeys = keys
		}
		q.Base = &b
		return &q
	}
	q.Where = withKeys(q.Where, keys)
	return &q
}

func withKeys(preds []Predicate, keys []any) []Predicate {
	out := slices.Clone(preds)
	out[0].Value = keys
	return out
}

// selectColumns fills the select list from the node tree. Joined nodes
// always select their primary key so that rows can be deduplicated.
func (p *planner) selectColumns(q *SelectQuery, root *planNode, rootPK bool) error {
	var walk func(n *planNode, withPK bool) error
	walk = func(n *planNode, withPK bool) error {
		attrs, err := resolveAttributes(n.model, n.requested, n.needed, withPK)
		if err != nil {
			return err
		}
		n.attrs = attrs
		if err := p.checkIdentifier(n.alias); err != nil {
			return err
		}
		for _, name := range attrs {
			if err := p.checkIdentifier(n.prefix + name); err != nil {
				return err
			}
			q.Columns = append(q.Columns, SelectColumn{
				ColumnRef: ColumnRef{Alias: n.alias, Field: n.model.field(name)},
				As:        n.prefix + name,
			})
		}
		for _, c := range n.joined {
			if err := walk(c, true); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root, rootPK)
}

func resolveAttributes(m *Model, requested, needed []string, withPK bool) ([]string, error) {
	var out []string
	if len(requested) == 0 {
		for _, a := range m.attrs {
			out = append(out, a.Name)
		}
	} else {
		for _, name := range requested {
			if _, ok := m.byName[name]; !ok {
				return nil, unknownAttribute(m, name)
			}
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	if withPK && !slices.Contains(out, m.pk.Name) {
		out = append([]string{m.pk.Name}, out...)
	}
	for _, name := range needed {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func condPredicates(m *Model, alias string, conds []scope.Cond) ([]Predicate, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		pr, err := condPredicate(m, alias, c)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}

func condPredicate(m *Model, alias string, c scope.Cond) (Predicate, error) {
	if c.Raw != "" {
		return Predicate{Raw: c.Raw, Args: c.Args}, nil
	}
	if len(c.Any) > 0 {
		alts, err := condPredicates(m, alias, c.Any)
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{Any: alts}, nil
	}
	a, ok := m.byName[c.Attr]
	if !ok {
		return Predicate{}, unknownAttribute(m, c.Attr)
	}
	op := c.Op
	if op == "" {
		op = scope.OpEq
	}
	v := c.Value
	if list, ok := v.([]any); ok {
		norm := make([]any, len(list))
		for i, x := range list {
			norm[i] = normalizeValue(x)
		}
		v = norm
	} else {
		v = normalizeValue(v)
	}
	return Predicate{Col: ColumnRef{Alias: alias, Field: a.Field}, Op: op, Value: v}, nil
}

func orderTerms(m *Model, alias string, order []scope.Order) ([]OrderTerm, error) {
	out := make([]OrderTerm, 0, len(order))
	for _, o := range order {
		a, ok := m.byName[o.Attr]
		if !ok {
			return nil, unknownAttribute(m, o.Attr)
		}
		out = append(out, OrderTerm{Col: ColumnRef{Alias: alias, Field: a.Field}, Desc: o.Desc})
	}
	return out, nil
}

func unknownAttribute(m *Model, name string) error {
	return fmt.Errorf("orm: unknown attribute %q on %s", name, m.name)
}
