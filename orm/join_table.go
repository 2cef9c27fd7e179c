package orm

import (
	"context"
	"fmt"

	"github.com/mickamy/ormgraph/scope"
)

// JoinPair holds a source–target pair read from a junction table.
type JoinPair struct {
	Source any
	Target any
}

// JunctionPairs reads the (foreign key, other key) rows of the junction
// of a belongs-to-many association where the foreign key is one of
// sourceKeys.
func (a *Association) JunctionPairs(ctx context.Context, db Querier, sourceKeys []any) ([]JoinPair, error) {
	if a.kind != KindBelongsToMany {
		return nil, fmt.Errorf("orm: %s is not a belongs-to-many association", a.as)
	}
	if len(sourceKeys) == 0 {
		return nil, nil
	}
	j := a.through
	fk, other := j.byName[a.fk], j.byName[a.otherKey]
	where, err := condPredicates(j, j.name, []scope.Cond{scope.In(a.fk, sourceKeys)})
	if err != nil {
		return nil, err
	}
	q := &SelectQuery{
		From: j.tableRef(j.name),
		Columns: []SelectColumn{
			{ColumnRef: ColumnRef{Alias: j.name, Field: fk.Field}, As: fk.Name},
			{ColumnRef: ColumnRef{Alias: j.name, Field: other.Field}, As: other.Name},
		},
		Where: where,
	}
	query, args := NewCompiler(db.dialect()).Select(q)
	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	pairs := make([]JoinPair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, JoinPair{
			Source: normalizeFor(fk, r[fk.Name]),
			Target: normalizeFor(other, r[other.Name]),
		})
	}
	return pairs, nil
}

// uniqueTargets extracts deduplicated target values from pairs.
func uniqueTargets(pairs []JoinPair) []any {
	seen := make(map[any]struct{}, len(pairs))
	result := make([]any, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Target]; !ok {
			seen[p.Target] = struct{}{}
			result = append(result, p.Target)
		}
	}
	return result
}

// link inserts one junction row per target key. Junction defaults and
// timestamps are applied as for any other insert.
func (a *Association) link(ctx context.Context, db Querier, key any, targets []any) error {
	for _, t := range targets {
		row := a.through.Build(Values{a.fk: key, a.otherKey: t})
		if err := a.through.insert(ctx, db, row, nil); err != nil {
			return err
		}
	}
	return nil
}

// unlink deletes the junction rows between key and targets.
func (a *Association) unlink(ctx context.Context, db Querier, key any, targets []any) error {
	if len(targets) == 0 {
		return nil
	}
	_, err := a.through.DestroyWhere(ctx, db, scope.Eq(a.fk, key), scope.In(a.otherKey, targets))
	return err
}
