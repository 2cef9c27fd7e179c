package orm

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
)

var errMockNotImplemented = errors.New("mock: not implemented")

// TestQuerier is a mock Querier that records executed statements.
// Exported for use in orm_test package.
type TestQuerier struct {
	D       Dialect
	Queries []TestQuery
	Events  []Event

	mu sync.Mutex
}

// TestQuery holds a captured query string and its args.
type TestQuery struct {
	SQL  string
	Args []any
}

// NewTestQuerier creates a TestQuerier with the given Dialect.
func NewTestQuerier(d Dialect) *TestQuerier {
	return &TestQuerier{D: d}
}

func (tq *TestQuerier) QueryContext(_ context.Context, query string, args ...any) (*sql.Rows, error) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	tq.Queries = append(tq.Queries, TestQuery{query, args})
	return nil, errMockNotImplemented
}

func (tq *TestQuerier) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	tq.Queries = append(tq.Queries, TestQuery{query, args})
	return testResult{}, nil
}

var _ Querier = (*TestQuerier)(nil)

// LastQuery returns the most recently captured query, or panics if empty.
func (tq *TestQuerier) LastQuery() TestQuery {
	return tq.Queries[len(tq.Queries)-1]
}

func (tq *TestQuerier) dialect() Dialect { return tq.D }

func (tq *TestQuerier) notify(_ context.Context, e Event) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	tq.Events = append(tq.Events, e)
}

func (tq *TestQuerier) serialize() func() { return func() {} }

func (tq *TestQuerier) transaction(_ context.Context, fn func(q Querier) error) error {
	return fn(tq)
}

type testResult struct{}

func (testResult) LastInsertId() (int64, error) { return 1, nil }
func (testResult) RowsAffected() (int64, error) { return 1, nil }

// NormalizeValue exposes value normalisation to external tests.
var NormalizeValue = normalizeValue

// TranslateError exposes driver error translation to external tests.
var TranslateError = translateError

// SeparateQuery compiles the separate query planned for the include at
// path, given as aliases from the root, restricted to keys.
func (p *Plan) SeparateQuery(d Dialect, keys []any, path ...string) (string, []any) {
	n := p.root
	for _, as := range path {
		var next *planNode
		for _, c := range append(slices.Clone(n.joined), n.separate...) {
			if c.assoc.as == as {
				next = c
			}
		}
		if next == nil {
			panic("no include " + as)
		}
		n = next
	}
	return NewCompiler(d).Select(n.queryFor(keys))
}

// SeparatePaths lists the include paths loaded by separate queries.
func (p *Plan) SeparatePaths() []string {
	var out []string
	var walk func(n *planNode, prefix string)
	walk = func(n *planNode, prefix string) {
		for _, c := range n.separate {
			out = append(out, prefix+c.assoc.as)
			walk(c, prefix+c.assoc.as+".")
		}
		for _, c := range n.joined {
			walk(c, prefix+c.assoc.as+".")
		}
	}
	walk(p.root, "")
	return out
}
