package orm

import (
	"context"

	"github.com/mickamy/ormgraph/scope"
)

type hasOne struct{ a *Association }

var _ OneAccessor = hasOne{}

func (h hasOne) Association() *Association { return h.a }

func (h hasOne) Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (*Instance, error) {
	res, err := h.a.load(ctx, db, []*Instance{inst}, opts)
	if err != nil {
		return nil, err
	}
	if len(res.roots) == 0 {
		return nil, nil //nolint:nilnil // no associated row
	}
	return res.roots[0], nil
}

func (h hasOne) GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any]*Instance, error) {
	res, err := h.a.load(ctx, db, insts, opts)
	if err != nil {
		return nil, err
	}
	return firstByPK(insts, h.a.parentKey(), res), nil
}

// Set detaches the current in-scope target, if any, and attaches target.
func (h hasOne) Set(ctx context.Context, db Querier, inst *Instance, target any, opts *SetOptions) error {
	if target == nil && opts != nil && opts.OmitNull {
		return nil
	}
	key, err := h.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := h.a.targetKeys([]any{target})
	if err != nil {
		return err
	}
	return db.transaction(ctx, func(tx Querier) error {
		conds := append([]scope.Cond{scope.Eq(h.a.fk, key)}, h.a.scopeConds()...)
		if len(keys) > 0 {
			conds = append(conds, scope.NotIn(h.a.target.pk.Name, keys))
		}
		if _, err := h.a.target.UpdateWhere(ctx, tx, Values{h.a.fk: nil}, conds...); err != nil {
			return err
		}
		return linkTargets(ctx, tx, h.a, key, keys)
	})
}

func (h hasOne) Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error) {
	key, err := h.a.ownKey(inst)
	if err != nil {
		return nil, err
	}
	return h.a.createTarget(ctx, db, key, values, opts)
}
