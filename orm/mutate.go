package orm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mickamy/ormgraph/scope"
)

// Create inserts a new instance of m built from values. Associations
// listed in opts.Include are created from the nested values stored under
// their alias: belongs-to targets first so their keys can be copied onto
// the new row, then has-one, has-many and belongs-to-many targets with the
// new row's key. Nested creates share one transaction.
func (m *Model) Create(ctx context.Context, db Querier, values Values, opts *CreateOptions) (*Instance, error) {
	if opts == nil {
		opts = &CreateOptions{}
	}
	if len(opts.Include) == 0 {
		inst := m.Build(values)
		if err := m.insert(ctx, db, inst, opts.Fields); err != nil {
			return nil, err
		}
		return inst, nil
	}
	var inst *Instance
	err := db.transaction(ctx, func(tx Querier) error {
		var err error
		inst, err = m.createNested(ctx, tx, values, opts.Include, opts.Fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// BulkCreate inserts one row per element of rows inside one transaction.
func (m *Model) BulkCreate(ctx context.Context, db Querier, rows []Values) ([]*Instance, error) {
	if len(rows) == 0 {
		return []*Instance{}, nil
	}
	out := make([]*Instance, len(rows))
	err := db.transaction(ctx, func(tx Querier) error {
		for i, v := range rows {
			inst := m.Build(v)
			if err := m.insert(ctx, tx, inst, nil); err != nil {
				return err
			}
			out[i] = inst
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Model) createNested(ctx context.Context, db Querier, values Values, incs []*Include, fields []string) (*Instance, error) {
	inst := m.Build(values)

	type pending struct {
		assoc *Association
		inc   *Include
		items []Values
	}
	var after []pending
	for _, inc := range incs {
		a, err := resolveInclude(m, inc)
		if err != nil {
			return nil, err
		}
		raw, ok := values[a.as]
		if !ok || raw == nil {
			continue
		}
		items, err := nestedValues(raw)
		if err != nil {
			return nil, fmt.Errorf("orm: nested values for %q: %w", a.as, err)
		}
		if a.kind != KindBelongsTo {
			after = append(after, pending{a, inc, items})
			continue
		}
		if len(items) != 1 {
			return nil, fmt.Errorf("orm: nested values for %q: expected one %s", a.as, a.target.name)
		}
		target, err := a.target.createNested(ctx, db, items[0], inc.Include, nil)
		if err != nil {
			return nil, err
		}
		inst.Set(a.fk, target.Get(a.targetKey))
		inst.setOne(a.as, target)
		if len(fields) > 0 && !slices.Contains(fields, a.fk) {
			fields = append(slices.Clone(fields), a.fk)
		}
	}

	if err := m.insert(ctx, db, inst, fields); err != nil {
		return nil, err
	}

	for _, p := range after {
		a := p.assoc
		key := inst.Get(a.sourceKey)
		if key == nil {
			return nil, fmt.Errorf("orm: %s.%s is not set", m.name, a.sourceKey)
		}
		created := make([]*Instance, 0, len(p.items))
		for _, item := range p.items {
			child := a.stamp(item, key)
			target, err := a.target.createNested(ctx, db, child, p.inc.Include, nil)
			if err != nil {
				return nil, err
			}
			if a.kind == KindBelongsToMany {
				if err := a.link(ctx, db, key, []any{target.Get(a.targetKey)}); err != nil {
					return nil, err
				}
			}
			created = append(created, target)
		}
		if a.IsMultiple() {
			inst.setMany(a.as, created)
		} else if len(created) > 0 {
			inst.setOne(a.as, created[len(created)-1])
		}
	}
	return inst, nil
}

// stamp returns item with the association scope and, for has-one and
// has-many, the foreign key set to key.
func (a *Association) stamp(item Values, key any) Values {
	out := make(Values, len(item)+len(a.scope)+1)
	for k, v := range item {
		out[k] = v
	}
	for k, v := range a.scope {
		out[k] = v
	}
	if a.kind == KindHasMany || a.kind == KindHasOne {
		out[a.fk] = key
	}
	return out
}

// nestedValues accepts Values, map[string]any, *Instance or slices of them.
func nestedValues(raw any) ([]Values, error) {
	switch v := raw.(type) {
	case Values:
		return []Values{v}, nil
	case map[string]any:
		return []Values{v}, nil
	case *Instance:
		return []Values{v.Values()}, nil
	case []Values:
		return v, nil
	case []map[string]any:
		out := make([]Values, len(v))
		for i, x := range v {
			out[i] = x
		}
		return out, nil
	case []*Instance:
		out := make([]Values, len(v))
		for i, x := range v {
			out[i] = x.Values()
		}
		return out, nil
	case []any:
		var out []Values
		for _, x := range v {
			items, err := nestedValues(x)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", raw)
}

// insert writes inst. With fields set only those attributes (plus
// timestamps) are written. An auto-increment key is read back through
// RETURNING or LastInsertId.
func (m *Model) insert(ctx context.Context, db Querier, inst *Instance, fields []string) error {
	for _, a := range m.attrs {
		if gen, ok := a.DefaultValue.(DefaultFunc); ok && !inst.Has(a.Name) {
			inst.values[a.Name] = normalizeFor(a, gen(ctx))
		}
	}
	if m.opts.Timestamps {
		t := now(ctx)
		if !inst.Has("created_at") || inst.Get("created_at") == nil {
			inst.values["created_at"] = t
		}
		inst.values["updated_at"] = t
	}

	var (
		cols []string
		vals []any
	)
	for _, a := range m.attrs {
		v, ok := inst.values[a.Name]
		if !ok || (a.PrimaryKey && a.AutoIncrement && v == nil) {
			continue
		}
		if len(fields) > 0 && !a.PrimaryKey && !slices.Contains(fields, a.Name) && !isTimestamp(m, a.Name) {
			continue
		}
		cols = append(cols, a.Field)
		vals = append(vals, v)
	}

	pk := m.pk
	readBack := pk.AutoIncrement && inst.values[pk.Name] == nil
	returning := ""
	if readBack {
		returning = pk.Field
	}
	d := db.dialect()
	query, args := NewCompiler(d).Insert(m.tableRef(""), cols, [][]any{vals}, returning)

	if readBack && d.UseReturning() {
		rows, err := queryRows(ctx, db, query, args)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return errors.New("orm: INSERT RETURNING returned no rows")
		}
		inst.values[pk.Name] = normalizeFor(pk, rows[0][pk.Field])
		inst.persisted = true
		return nil
	}

	res, err := execStmt(ctx, db, query, args)
	if err != nil {
		return err
	}
	if readBack {
		id, err := res.LastInsertId()
		if err != nil {
			return translateError(query, err)
		}
		inst.values[pk.Name] = id
	}
	inst.persisted = true
	return nil
}

func isTimestamp(m *Model, name string) bool {
	return m.opts.Timestamps && (name == "created_at" || name == "updated_at")
}

// Update writes the attributes of inst, or only fields when given, to the
// row identified by its primary key.
func (m *Model) Update(ctx context.Context, db Querier, inst *Instance, fields ...string) error {
	pkv := inst.PK()
	if pkv == nil {
		return errors.New("orm: primary key value is required for Update")
	}
	if m.opts.Timestamps {
		inst.values["updated_at"] = now(ctx)
		if len(fields) > 0 && !slices.Contains(fields, "updated_at") {
			fields = append(slices.Clone(fields), "updated_at")
		}
	}
	values := make(Values)
	for _, a := range m.attrs {
		if a.PrimaryKey {
			continue
		}
		v, ok := inst.values[a.Name]
		if !ok {
			continue
		}
		if len(fields) > 0 && !slices.Contains(fields, a.Name) {
			continue
		}
		values[a.Name] = v
	}
	if len(values) == 0 {
		return nil
	}
	_, err := m.UpdateWhere(ctx, db, values, scope.Eq(m.pk.Name, pkv))
	return err
}

// UpdateWhere sets values on every row matching conds and returns the
// number of rows affected. At least one condition is required.
func (m *Model) UpdateWhere(ctx context.Context, db Querier, values Values, conds ...scope.Cond) (int64, error) {
	if len(conds) == 0 {
		return 0, errors.New("orm: UpdateWhere without conditions is not allowed")
	}
	where, err := condPredicates(m, "", conds)
	if err != nil {
		return 0, err
	}
	var (
		fields []string
		vals   []any
	)
	for _, a := range m.attrs {
		v, ok := values[a.Name]
		if !ok {
			continue
		}
		fields = append(fields, a.Field)
		vals = append(vals, normalizeFor(a, v))
	}
	if len(fields) != len(values) {
		for name := range values {
			if _, ok := m.byName[name]; !ok {
				return 0, unknownAttribute(m, name)
			}
		}
	}
	query, args := NewCompiler(db.dialect()).Update(m.tableRef(""), fields, vals, where)
	res, err := execStmt(ctx, db, query, args)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

// Destroy deletes the row of inst.
func (m *Model) Destroy(ctx context.Context, db Querier, inst *Instance) error {
	pkv := inst.PK()
	if pkv == nil {
		return errors.New("orm: primary key value is required for Destroy")
	}
	_, err := m.DestroyWhere(ctx, db, scope.Eq(m.pk.Name, pkv))
	return err
}

// DestroyWhere deletes every row matching conds and returns the number of
// rows deleted. At least one condition is required.
func (m *Model) DestroyWhere(ctx context.Context, db Querier, conds ...scope.Cond) (int64, error) {
	if len(conds) == 0 {
		return 0, errors.New("orm: Delete without WHERE clause is not allowed")
	}
	where, err := condPredicates(m, "", conds)
	if err != nil {
		return 0, err
	}
	query, args := NewCompiler(db.dialect()).Delete(m.tableRef(""), where)
	res, err := execStmt(ctx, db, query, args)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
