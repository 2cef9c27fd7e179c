package orm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/ormgraph/scope"
)

// FindAll returns the instances of m matching opts with their includes
// loaded.
func (m *Model) FindAll(ctx context.Context, db Querier, opts *FindOptions) ([]*Instance, error) {
	plan, err := BuildFindQuery(m, opts, db.dialect())
	if err != nil {
		return nil, err
	}
	return plan.Execute(ctx, db)
}

// FindOne returns the first instance matching opts.
// Returns ErrNotFound if no rows match.
func (m *Model) FindOne(ctx context.Context, db Querier, opts *FindOptions) (*Instance, error) {
	o := opts.clone()
	o.Limit = Ptr(1)
	items, err := m.FindAll(ctx, db, o)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// FindByPK returns the instance whose primary key is pk.
// Returns ErrNotFound if there is none.
func (m *Model) FindByPK(ctx context.Context, db Querier, pk any, opts *FindOptions) (*Instance, error) {
	o := opts.clone()
	o.Where = append([]scope.Cond{scope.Eq(m.pk.Name, pk)}, o.Where...)
	return m.FindOne(ctx, db, o)
}

// GroupCount is the number of rows sharing one combination of group values.
type GroupCount struct {
	Values Values
	Count  int64
}

// Page is the result of FindAndCountAll.
type Page struct {
	Rows []*Instance
	// Count is the number of root rows matching the filters, ignoring
	// Limit and Offset.
	Count int64
	// Groups holds per-group counts when FindOptions.Group is set; Count
	// is then their sum.
	Groups []GroupCount
}

// FindAndCountAll returns one page of instances together with the total
// number of matching rows.
func (m *Model) FindAndCountAll(ctx context.Context, db Querier, opts *FindOptions) (*Page, error) {
	rows, err := m.FindAll(ctx, db, opts)
	if err != nil {
		return nil, err
	}
	page := &Page{Rows: rows}
	if opts != nil && len(opts.Group) > 0 {
		groups, err := m.CountGroups(ctx, db, opts)
		if err != nil {
			return nil, err
		}
		page.Groups = groups
		for _, g := range groups {
			page.Count += g.Count
		}
		return page, nil
	}
	page.Count, err = m.Count(ctx, db, opts)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Count returns the number of root rows matching opts. Limit, Offset,
// Order, Group and separate includes are ignored; required includes still
// filter, and rows multiplied by joins are counted once.
func (m *Model) Count(ctx context.Context, db Querier, opts *FindOptions) (int64, error) {
	o := countOptions(opts)
	o.Group = nil
	plan, err := BuildFindQuery(m, o, db.dialect())
	if err != nil {
		return 0, err
	}
	var distinct *ColumnRef
	if len(plan.root.joined) > 0 {
		distinct = &ColumnRef{Alias: m.name, Field: m.pk.Field}
	}
	query, args := NewCompiler(db.dialect()).Count(plan.Query, distinct)
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	return toInt64(rows[0]["count"])
}

// CountGroups returns the number of matching rows per combination of
// opts.Group values.
func (m *Model) CountGroups(ctx context.Context, db Querier, opts *FindOptions) ([]GroupCount, error) {
	o := countOptions(opts)
	if len(o.Group) == 0 {
		return nil, errors.New("orm: CountGroups requires Group")
	}
	o.Attributes = slices.Clone(o.Group)
	plan, err := BuildFindQuery(m, o, db.dialect())
	if err != nil {
		return nil, err
	}
	query, args := NewCompiler(db.dialect()).Count(plan.Query, nil)
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	out := make([]GroupCount, 0, len(rows))
	for _, row := range rows {
		n, err := toInt64(row["count"])
		if err != nil {
			return nil, err
		}
		vals := make(Values, len(o.Group))
		for _, g := range o.Group {
			vals[g] = normalizeFor(m.byName[g], row[g])
		}
		out = append(out, GroupCount{Values: vals, Count: n})
	}
	return out, nil
}

// countOptions keeps what affects which root rows match: the filters and
// the required joined includes.
func countOptions(opts *FindOptions) *FindOptions {
	o := opts.clone()
	o.Limit, o.Offset, o.Order, o.Attributes = nil, nil, nil, nil
	o.Include = requiredIncludes(o.Include)
	return o
}

func requiredIncludes(incs []*Include) []*Include {
	var out []*Include
	for _, inc := range incs {
		if inc == nil || inc.Separate || inc.Limit != nil || inc.Offset != nil {
			continue
		}
		if !inc.Required && len(inc.Where) == 0 {
			continue
		}
		c := *inc
		c.Order, c.Attributes = nil, nil
		c.Include = requiredIncludes(inc.Include)
		out = append(out, &c)
	}
	return out
}

// Execute runs the plan: the main query, then every separate include in
// batches keyed by the parent keys collected so far.
func (p *Plan) Execute(ctx context.Context, db Querier) ([]*Instance, error) {
	c := NewCompiler(db.dialect())
	query, args := c.Select(p.Query)
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	res := assemble(rows, p.root, "", nil)
	if err := loadSeparate(ctx, db, c, res.collected, p.root); err != nil {
		return nil, err
	}
	if res.roots == nil {
		res.roots = []*Instance{}
	}
	return res.roots, nil
}

// loadSeparate loads the separate includes of node and of every joined
// node below it. Sibling loads run concurrently on a *DB; inside a
// transaction they run one after another on its connection.
func loadSeparate(ctx context.Context, db Querier, c *Compiler, collected map[*planNode][]*Instance, node *planNode) error {
	parents := collected[node]
	if n := len(node.separate); n > 0 {
		results := make([]*assembled, n)
		if _, pooled := db.(*DB); pooled && n > 1 {
			g, gctx := errgroup.WithContext(ctx)
			for i, s := range node.separate {
				g.Go(func() error {
					res, err := fetchSeparate(gctx, db, c, s, parents)
					results[i] = res
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err //nolint:wrapcheck // already translated
			}
		} else {
			for i, s := range node.separate {
				res, err := fetchSeparate(ctx, db, c, s, parents)
				if err != nil {
					return err
				}
				results[i] = res
			}
		}
		for i, s := range node.separate {
			attachSeparate(s, parents, results[i])
		}
	}
	for _, child := range node.joined {
		if err := loadSeparate(ctx, db, c, collected, child); err != nil {
			return err
		}
	}
	return nil
}

// fetchSeparate runs the separate query of s for parents, including the
// separate includes below it.
func fetchSeparate(ctx context.Context, db Querier, c *Compiler, s *planNode, parents []*Instance) (*assembled, error) {
	keys := parentKeys(parents, s.assoc.parentKey())
	if len(keys) == 0 {
		return &assembled{groups: map[any][]*Instance{}}, nil
	}
	query, args := c.Select(s.queryFor(keys))
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	res := assemble(rows, s, s.groupLabel, s.groupAttr)
	if err := loadSeparate(ctx, db, c, res.collected, s); err != nil {
		return nil, err
	}
	return res, nil
}

func attachSeparate(s *planNode, parents []*Instance, res *assembled) {
	a := s.assoc
	for _, p := range parents {
		list := res.group(p.Get(a.parentKey()))
		if a.IsMultiple() {
			p.setMany(a.as, slices.Clone(list))
			continue
		}
		if len(list) > 0 {
			p.setOne(a.as, list[0])
		} else {
			p.setOne(a.as, nil)
		}
	}
}

// parentKeys returns the distinct non-null values of attr in first-seen order.
func parentKeys(parents []*Instance, attr string) []any {
	seen := make(map[any]struct{}, len(parents))
	keys := make([]any, 0, len(parents))
	for _, p := range parents {
		k := p.Get(attr)
		if k == nil {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func toInt64(v any) (int64, error) {
	switch n := normalizeFor(&Attribute{Type: BigInt}, v).(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("orm: unexpected count value %T", v)
}
