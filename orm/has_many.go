package orm

import (
	"context"

	"github.com/mickamy/ormgraph/scope"
)

type hasMany struct{ a *Association }

var _ ManyAccessor = hasMany{}

func (h hasMany) Association() *Association { return h.a }

func (h hasMany) Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) ([]*Instance, error) {
	res, err := h.a.load(ctx, db, []*Instance{inst}, opts)
	if err != nil {
		return nil, err
	}
	return append([]*Instance{}, res.roots...), nil
}

func (h hasMany) GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any][]*Instance, error) {
	res, err := h.a.load(ctx, db, insts, opts)
	if err != nil {
		return nil, err
	}
	return groupsByPK(insts, h.a.parentKey(), res), nil
}

func (h hasMany) Set(ctx context.Context, db Querier, inst *Instance, targets []any, opts *SetOptions) error {
	if targets == nil && opts != nil && opts.OmitNull {
		return nil
	}
	key, err := h.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := h.a.targetKeys(targets)
	if err != nil {
		return err
	}
	return db.transaction(ctx, func(tx Querier) error {
		current, err := h.a.currentKeys(ctx, tx, inst)
		if err != nil {
			return err
		}
		if err := unlinkTargets(ctx, tx, h.a, key, difference(current, keys)); err != nil {
			return err
		}
		return linkTargets(ctx, tx, h.a, key, difference(keys, current))
	})
}

func (h hasMany) Add(ctx context.Context, db Querier, inst *Instance, targets ...any) error {
	key, err := h.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := h.a.targetKeys(targets)
	if err != nil {
		return err
	}
	return linkTargets(ctx, db, h.a, key, keys)
}

func (h hasMany) Remove(ctx context.Context, db Querier, inst *Instance, targets ...any) error {
	key, err := h.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := h.a.targetKeys(targets)
	if err != nil {
		return err
	}
	return unlinkTargets(ctx, db, h.a, key, keys)
}

func (h hasMany) Has(ctx context.Context, db Querier, inst *Instance, targets ...any) (bool, error) {
	return h.a.has(ctx, db, inst, targets)
}

func (h hasMany) Count(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (int64, error) {
	return h.a.count(ctx, db, inst, opts)
}

func (h hasMany) Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error) {
	key, err := h.a.ownKey(inst)
	if err != nil {
		return nil, err
	}
	return h.a.createTarget(ctx, db, key, values, opts)
}

// linkTargets points the foreign key of the targets at key and stamps
// the scope.
func linkTargets(ctx context.Context, db Querier, a *Association, key any, targets []any) error {
	if len(targets) == 0 {
		return nil
	}
	values := Values{a.fk: key}
	for k, v := range a.scope {
		values[k] = v
	}
	_, err := a.target.UpdateWhere(ctx, db, values, scope.In(a.target.pk.Name, targets))
	return err
}

// unlinkTargets clears the foreign key of the targets pointing at key.
func unlinkTargets(ctx context.Context, db Querier, a *Association, key any, targets []any) error {
	if len(targets) == 0 {
		return nil
	}
	_, err := a.target.UpdateWhere(ctx, db, Values{a.fk: nil},
		scope.Eq(a.fk, key),
		scope.In(a.target.pk.Name, targets),
	)
	return err
}
