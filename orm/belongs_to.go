package orm

import (
	"context"
	"errors"
)

type belongsTo struct{ a *Association }

var _ OneAccessor = belongsTo{}

func (b belongsTo) Association() *Association { return b.a }

func (b belongsTo) Get(ctx context.Context, db Querier, inst *Instance, opts *FindOptions) (*Instance, error) {
	res, err := b.a.load(ctx, db, []*Instance{inst}, opts)
	if err != nil {
		return nil, err
	}
	if len(res.roots) == 0 {
		return nil, nil //nolint:nilnil // no associated row
	}
	return res.roots[0], nil
}

func (b belongsTo) GetBatch(ctx context.Context, db Querier, insts []*Instance, opts *FindOptions) (map[any]*Instance, error) {
	res, err := b.a.load(ctx, db, insts, opts)
	if err != nil {
		return nil, err
	}
	return firstByPK(insts, b.a.parentKey(), res), nil
}

// Set copies the target key into the foreign key of inst and saves it
// when inst is persisted.
func (b belongsTo) Set(ctx context.Context, db Querier, inst *Instance, target any, opts *SetOptions) error {
	if target == nil && opts != nil && opts.OmitNull {
		return nil
	}
	if inst == nil || inst.model != b.a.source {
		return errors.New("orm: " + b.a.as + " accessor called with an instance of another model")
	}
	keys, err := b.a.targetKeys([]any{target})
	if err != nil {
		return err
	}
	var key any
	if len(keys) > 0 {
		key = keys[0]
	}
	inst.Set(b.a.fk, key)
	if t, ok := target.(*Instance); ok {
		inst.setOne(b.a.as, t)
	} else {
		delete(inst.related, b.a.as)
	}
	if inst.IsNewRecord() {
		return nil
	}
	return b.a.source.Update(ctx, db, inst, b.a.fk)
}

// Create inserts the target and points inst at it.
func (b belongsTo) Create(ctx context.Context, db Querier, inst *Instance, values Values, opts *CreateOptions) (*Instance, error) {
	if inst == nil || inst.model != b.a.source {
		return nil, errors.New("orm: " + b.a.as + " accessor called with an instance of another model")
	}
	var target *Instance
	err := db.transaction(ctx, func(tx Querier) error {
		var err error
		target, err = b.a.createTarget(ctx, tx, nil, values, opts)
		if err != nil {
			return err
		}
		return b.Set(ctx, tx, inst, target, nil)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}
