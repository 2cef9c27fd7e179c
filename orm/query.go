package orm

import (
	"context"
	"errors"

	"github.com/mickamy/ormgraph/scope"
)

// Query represents a pending find on one model.
// All builder methods return a new Query; the receiver is never modified.
type Query struct {
	db    Querier
	model *Model
	opts  *FindOptions
}

// Find starts a query on m executed against db.
func Find(db Querier, m *Model) *Query {
	return &Query{db: db, model: m, opts: &FindOptions{}}
}

// clone returns a copy with slices copied to avoid aliasing.
func (q *Query) clone() *Query {
	q2 := *q
	q2.opts = q.opts.clone()
	return &q2
}

// --- Builder methods ---

// Where adds conditions, ANDed with the existing ones.
func (q *Query) Where(conds ...scope.Cond) *Query {
	q2 := q.clone()
	q2.opts.Where = append(q2.opts.Where, conds...)
	return q2
}

func (q *Query) OrderBy(order ...scope.Order) *Query {
	q2 := q.clone()
	q2.opts.Order = append(q2.opts.Order, order...)
	return q2
}

func (q *Query) Limit(n int) *Query {
	q2 := q.clone()
	q2.opts.Limit = &n
	return q2
}

func (q *Query) Offset(n int) *Query {
	q2 := q.clone()
	q2.opts.Offset = &n
	return q2
}

// Select restricts the root attributes.
func (q *Query) Select(attrs ...string) *Query {
	q2 := q.clone()
	q2.opts.Attributes = append(q2.opts.Attributes, attrs...)
	return q2
}

func (q *Query) Group(attrs ...string) *Query {
	q2 := q.clone()
	q2.opts.Group = append(q2.opts.Group, attrs...)
	return q2
}

// Include adds associations to load with the root rows.
func (q *Query) Include(incs ...*Include) *Query {
	q2 := q.clone()
	q2.opts.Include = append(q2.opts.Include, incs...)
	return q2
}

// Preload includes the associations named by alias.
func (q *Query) Preload(aliases ...string) *Query {
	incs := make([]*Include, len(aliases))
	for i, as := range aliases {
		incs[i] = Preload(as)
	}
	return q.Include(incs...)
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query) Scopes(scopes ...scope.Scope) *Query {
	q2 := q.clone()
	q2.opts.Scopes(scopes...)
	return q2
}

// Options returns a copy of the accumulated FindOptions.
func (q *Query) Options() *FindOptions { return q.opts.clone() }

// --- Terminal methods ---

// Plan builds the query plan without executing it.
func (q *Query) Plan() (*Plan, error) {
	return BuildFindQuery(q.model, q.opts, q.db.dialect())
}

// All executes the query and returns all matching instances.
func (q *Query) All(ctx context.Context) ([]*Instance, error) {
	return q.model.FindAll(ctx, q.db, q.opts)
}

// First returns the first matching instance.
// Returns ErrNotFound if no rows match.
func (q *Query) First(ctx context.Context) (*Instance, error) {
	return q.model.FindOne(ctx, q.db, q.opts)
}

// Count returns the number of root rows matching the query conditions.
func (q *Query) Count(ctx context.Context) (int64, error) {
	return q.model.Count(ctx, q.db, q.opts)
}

// Exists returns true if at least one row matches the query conditions.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Page returns the matching instances together with their total count.
func (q *Query) Page(ctx context.Context) (*Page, error) {
	return q.model.FindAndCountAll(ctx, q.db, q.opts)
}

// Delete deletes rows matching the accumulated conditions and returns the
// number of rows deleted. Returns an error if no conditions are set
// (safety guard).
func (q *Query) Delete(ctx context.Context) (int64, error) {
	if len(q.opts.Where) == 0 {
		return 0, errors.New("orm: Delete without WHERE clause is not allowed")
	}
	return q.model.DestroyWhere(ctx, q.db, q.opts.Where...)
}

// Update sets values on rows matching the accumulated conditions.
func (q *Query) Update(ctx context.Context, values Values) (int64, error) {
	return q.model.UpdateWhere(ctx, q.db, values, q.opts.Where...)
}
