package orm

import (
	"context"
	"slices"
)

// Sync creates the table of m and its secondary indexes if they do not
// exist. With opts.Force the table is dropped first.
func (m *Model) Sync(ctx context.Context, db Querier, opts *SyncOptions) error {
	if opts != nil && opts.Force {
		if err := m.Drop(ctx, db); err != nil {
			return err
		}
	}
	c := NewCompiler(db.dialect())
	for _, s := range c.createStatements(m) {
		if _, err := execStmt(ctx, db, s, nil); err != nil {
			return err
		}
	}
	for _, s := range c.CreateIndexes(m) {
		if _, err := execStmt(ctx, db, s, nil); err != nil && !isDuplicateIndex(err) {
			return err
		}
	}
	return nil
}

// Drop drops the table of m if it exists.
func (m *Model) Drop(ctx context.Context, db Querier) error {
	_, err := execStmt(ctx, db, NewCompiler(db.dialect()).DropTable(m), nil)
	return err
}

// Sync creates every table of r, referenced tables first. With opts.Force
// all tables are dropped first, in the reverse order.
func (r *Registry) Sync(ctx context.Context, db Querier, opts *SyncOptions) error {
	order := r.CreateOrder()
	if opts != nil && opts.Force {
		for _, m := range slices.Backward(order) {
			if err := m.Drop(ctx, db); err != nil {
				return err
			}
		}
	}
	for _, m := range order {
		if err := m.Sync(ctx, db, nil); err != nil {
			return err
		}
	}
	return nil
}

// DDL returns the statements Sync runs for r on dialect d, in execution
// order.
func (r *Registry) DDL(d Dialect) []string {
	c := NewCompiler(d)
	var out []string
	for _, m := range r.CreateOrder() {
		out = append(out, c.createStatements(m)...)
		out = append(out, c.CreateIndexes(m)...)
	}
	return out
}

func (c *Compiler) createStatements(m *Model) []string {
	var stmts []string
	if m.schema != "" && c.caps.Schemas {
		stmts = append(stmts, c.CreateSchema(m.schema))
	}
	return append(stmts, c.CreateTable(m))
}

// Drop drops every table of r, referencing tables first.
func (r *Registry) Drop(ctx context.Context, db Querier) error {
	for _, m := range slices.Backward(r.CreateOrder()) {
		if err := m.Drop(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// CreateOrder returns the models ordered so that every model comes after
// the models its foreign keys reference. Self references are ignored;
// models on a reference cycle keep their declaration order.
func (r *Registry) CreateOrder() []*Model {
	models := r.Models()
	placed := make(map[*Model]bool, len(models))
	out := make([]*Model, 0, len(models))

	ready := func(m *Model) bool {
		for _, a := range m.attrs {
			ref := a.References
			if ref == nil || ref.Model == m {
				continue
			}
			if !placed[ref.Model] {
				return false
			}
		}
		return true
	}

	for len(out) < len(models) {
		progress := false
		for _, m := range models {
			if placed[m] || !ready(m) {
				continue
			}
			placed[m] = true
			out = append(out, m)
			progress = true
		}
		if !progress {
			for _, m := range models {
				if !placed[m] {
					placed[m] = true
					out = append(out, m)
					break
				}
			}
		}
	}
	return out
}
