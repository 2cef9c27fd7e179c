package orm

import (
	"context"
	"fmt"
	"slices"

	"github.com/mickamy/ormgraph/scope"
)

// ManyAccessor operates on a has-many or belongs-to-many association of
// one source instance. Targets are *Instance values of the target model
// or raw key values: the target primary key for has-many, the target key
// for belongs-to-many.
type ManyAccessor interface {
	Association() *Association
	// Get returns the associated targets filtered and ordered by opts.
	Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) ([]*Instance, error)
	// GetBatch loads the targets of many instances at once. The result
	// holds one entry per instance, keyed by its primary key.
	GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any][]*Instance, error)
	// Set replaces the associated targets. A nil or empty targets clears
	// the association unless opts.OmitNull is set and targets is nil.
	Set(ctx context.Context, db Querier, inst *Instance, targets []any, opts *SetOptions) error
	Add(ctx context.Context, db Querier, inst *Instance, targets ...any) error
	Remove(ctx context.Context, db Querier, inst *Instance, targets ...any) error
	// Has reports whether every given target is associated.
	Has(ctx context.Context, db Querier, inst *Instance, targets ...any) (bool, error)
	Count(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (int64, error)
	// Create inserts a target already associated with inst.
	Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error)
}

// OneAccessor operates on a has-one or belongs-to association of one
// source instance.
type OneAccessor interface {
	Association() *Association
	// Get returns the associated target, or nil.
	Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (*Instance, error)
	// GetBatch loads the targets of many instances at once, keyed by the
	// instances' primary keys. Instances without a target map to nil.
	GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any]*Instance, error)
	// Set associates target, an *Instance or a raw key, or clears the
	// association when target is nil.
	Set(ctx context.Context, db Querier, inst *Instance, target any, opts *SetOptions) error
	Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error)
}

// Many returns the accessor of a to-many association, or nil for a
// to-one association.
func (a *Association) Many() ManyAccessor {
	switch a.kind {
	case KindHasMany:
		return hasMany{a}
	case KindBelongsToMany:
		return belongsToMany{a}
	}
	return nil
}

// One returns the accessor of a to-one association, or nil for a to-many
// association.
func (a *Association) One() OneAccessor {
	switch a.kind {
	case KindHasOne:
		return hasOne{a}
	case KindBelongsTo:
		return belongsTo{a}
	}
	return nil
}

// ManyAccessor looks up the to-many association alias of m.
func (m *Model) ManyAccessor(alias string) (ManyAccessor, error) {
	a, ok := m.Association(alias)
	if !ok {
		return nil, &EagerLoadingError{Model: m.name, Alias: alias}
	}
	acc := a.Many()
	if acc == nil {
		return nil, fmt.Errorf("orm: association %q of %s is not to-many", alias, m.name)
	}
	return acc, nil
}

// OneAccessor looks up the to-one association alias of m.
func (m *Model) OneAccessor(alias string) (OneAccessor, error) {
	a, ok := m.Association(alias)
	if !ok {
		return nil, &EagerLoadingError{Model: m.name, Alias: alias}
	}
	acc := a.One()
	if acc == nil {
		return nil, fmt.Errorf("orm: association %q of %s is not to-one", alias, m.name)
	}
	return acc, nil
}

// accessorNode plans loading a as if it were included separately, with
// opts applied to the targets.
func (a *Association) accessorNode(opts *FindOptions, d Dialect) (*planNode, error) {
	o := opts.clone()
	inc := &Include{
		Association: a,
		Where:       o.Where,
		Order:       o.Order,
		Limit:       o.Limit,
		Offset:      o.Offset,
		Separate:    true,
		Attributes:  o.Attributes,
		Include:     o.Include,
	}
	n := &planNode{model: a.target, assoc: a, include: inc, requested: inc.Attributes}
	p := &planner{caps: d.Capabilities(), dialect: d.Name()}
	if err := p.planSeparate(n); err != nil {
		return nil, err
	}
	return n, nil
}

// load fetches the targets of parents grouped by parent key.
func (a *Association) load(ctx context.Context, db Querier, parents []*Instance, opts *FindOptions) (*assembled, error) {
	for _, p := range parents {
		if p == nil || p.model != a.source {
			return nil, fmt.Errorf("orm: %s accessor called with an instance of another model", a.as)
		}
	}
	n, err := a.accessorNode(opts, db.dialect())
	if err != nil {
		return nil, err
	}
	return fetchSeparate(ctx, db, NewCompiler(db.dialect()), n, parents)
}

// count counts the targets of inst matching opts.
func (a *Association) count(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (int64, error) {
	if inst.model != a.source {
		return 0, fmt.Errorf("orm: %s accessor called with an instance of another model", a.as)
	}
	key := inst.Get(a.parentKey())
	if key == nil {
		return 0, nil
	}
	n, err := a.accessorNode(countOptions(opts), db.dialect())
	if err != nil {
		return 0, err
	}
	var distinct *ColumnRef
	if len(n.joined) > 0 {
		distinct = &ColumnRef{Alias: n.alias, Field: a.target.pk.Field}
	}
	query, args := NewCompiler(db.dialect()).Count(n.queryFor([]any{key}), distinct)
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"])
}

// identity is the target attribute that raw keys passed to an accessor
// refer to.
func (a *Association) identity() string {
	switch a.kind {
	case KindBelongsTo, KindBelongsToMany:
		return a.targetKey
	default:
		return a.target.pk.Name
	}
}

// targetKeys resolves targets to distinct identity values in input order.
func (a *Association) targetKeys(targets []any) ([]any, error) {
	attr := a.target.byName[a.identity()]
	keys := make([]any, 0, len(targets))
	for _, t := range targets {
		var k any
		switch v := t.(type) {
		case nil:
			continue
		case *Instance:
			if v == nil {
				continue
			}
			if v.model != a.target {
				return nil, fmt.Errorf("orm: %s expects %s instances, got %s", a.as, a.target.name, v.model.name)
			}
			k = v.Get(attr.Name)
			if k == nil {
				return nil, fmt.Errorf("orm: %s instance has no %s", a.target.name, attr.Name)
			}
		default:
			k = normalizeFor(attr, v)
		}
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ownKey returns the value of inst that targets are linked to.
func (a *Association) ownKey(inst *Instance) (any, error) {
	if inst == nil || inst.model != a.source {
		return nil, fmt.Errorf("orm: %s accessor called with an instance of another model", a.as)
	}
	key := inst.Get(a.sourceKey)
	if key == nil {
		return nil, fmt.Errorf("orm: %s.%s is not set", a.source.name, a.sourceKey)
	}
	return key, nil
}

// has reports whether all targets are among the associated targets of
// inst.
func (a *Association) has(ctx context.Context, db Querier, inst *Instance, targets []any) (bool, error) {
	keys, err := a.targetKeys(targets)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return true, nil
	}
	n, err := a.count(ctx, db, inst, &FindOptions{Where: []scope.Cond{scope.In(a.identity(), keys)}})
	if err != nil {
		return false, err
	}
	return n == int64(len(keys)), nil
}

// currentKeys returns the identity values of the targets associated with
// inst now.
func (a *Association) currentKeys(ctx context.Context, db Querier, inst *Instance) ([]any, error) {
	res, err := a.load(ctx, db, []*Instance{inst}, &FindOptions{Attributes: []string{a.identity()}})
	if err != nil {
		return nil, err
	}
	var keys []any
	for _, t := range res.roots {
		keys = append(keys, t.Get(a.identity()))
	}
	return keys, nil
}

// createTarget inserts values as a new target stamped with the scope and,
// for has associations, the foreign key.
func (a *Association) createTarget(ctx context.Context, db Querier, key any, values Values, opts *CreateOptions) (*Instance, error) {
	o := CreateOptions{}
	if opts != nil {
		o = *opts
	}
	if len(o.Fields) > 0 {
		o.Fields = slices.Clone(o.Fields)
		if a.kind == KindHasMany || a.kind == KindHasOne {
			o.Fields = append(o.Fields, a.fk)
		}
		for k := range a.scope {
			o.Fields = append(o.Fields, k)
		}
	}
	return a.target.Create(ctx, db, a.stamp(values, key), &o)
}

func groupsByPK(parents []*Instance, key string, res *assembled) map[any][]*Instance {
	out := make(map[any][]*Instance, len(parents))
	for _, p := range parents {
		out[p.PK()] = append([]*Instance{}, res.group(p.Get(key))...)
	}
	return out
}

func firstByPK(parents []*Instance, key string, res *assembled) map[any]*Instance {
	out := make(map[any]*Instance, len(parents))
	for _, p := range parents {
		var first *Instance
		if list := res.group(p.Get(key)); len(list) > 0 {
			first = list[0]
		}
		out[p.PK()] = first
	}
	return out
}

// difference returns the elements of a not in b.
func difference(a, b []any) []any {
	var out []any
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}
