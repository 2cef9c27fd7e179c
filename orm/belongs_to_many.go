package orm

import (
	"context"
	"errors"
)

type belongsToMany struct{ a *Association }

var _ ManyAccessor = belongsToMany{}

func (b belongsToMany) Association() *Association { return b.a }

func (b belongsToMany) Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) ([]*Instance, error) {
	res, err := b.a.load(ctx, db, []*Instance{inst}, opts)
	if err != nil {
		return nil, err
	}
	return append([]*Instance{}, res.roots...), nil
}

func (b belongsToMany) GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any][]*Instance, error) {
	res, err := b.a.load(ctx, db, insts, opts)
	if err != nil {
		return nil, err
	}
	return groupsByPK(insts, b.a.parentKey(), res), nil
}

// Set replaces the junction rows of inst. Only targets visible through
// the association scope are removed.
func (b belongsToMany) Set(ctx context.Context, db Querier, inst *Instance, targets []any, opts *SetOptions) error {
	if targets == nil && opts != nil && opts.OmitNull {
		return nil
	}
	key, err := b.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := b.a.targetKeys(targets)
	if err != nil {
		return err
	}
	return db.transaction(ctx, func(tx Querier) error {
		current, err := b.a.currentKeys(ctx, tx, inst)
		if err != nil {
			return err
		}
		if err := b.a.unlink(ctx, tx, key, difference(current, keys)); err != nil {
			return err
		}
		return b.a.link(ctx, tx, key, difference(keys, current))
	})
}

// Add inserts the missing junction rows.
func (b belongsToMany) Add(ctx context.Context, db Querier, inst *Instance, targets ...any) error {
	key, err := b.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := b.a.targetKeys(targets)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return db.transaction(ctx, func(tx Querier) error {
		pairs, err := b.a.JunctionPairs(ctx, tx, []any{key})
		if err != nil {
			return err
		}
		return b.a.link(ctx, tx, key, difference(keys, uniqueTargets(pairs)))
	})
}

func (b belongsToMany) Remove(ctx context.Context, db Querier, inst *Instance, targets ...any) error {
	key, err := b.a.ownKey(inst)
	if err != nil {
		return err
	}
	keys, err := b.a.targetKeys(targets)
	if err != nil {
		return err
	}
	return b.a.unlink(ctx, db, key, keys)
}

func (b belongsToMany) Has(ctx context.Context, db Querier, inst *Instance, targets ...any) (bool, error) {
	return b.a.has(ctx, db, inst, targets)
}

func (b belongsToMany) Count(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (int64, error) {
	return b.a.count(ctx, db, inst, opts)
}

// Create inserts the target and its junction row in one transaction.
func (b belongsToMany) Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error) {
	key, err := b.a.ownKey(inst)
	if err != nil {
		return nil, err
	}
	var target *Instance
	err = db.transaction(ctx, func(tx Querier) error {
		var err error
		target, err = b.a.createTarget(ctx, tx, key, values, opts)
		if err != nil {
			return err
		}
		tk := target.Get(b.a.targetKey)
		if tk == nil {
			return errors.New("orm: created " + b.a.target.name + " has no " + b.a.targetKey)
		}
		return b.a.link(ctx, tx, key, []any{tk})
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}
