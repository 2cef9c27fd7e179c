package orm

import (
	"context"
	"database/sql"
	"time"
)

// Row is one result row keyed by column label: attribute names for the
// query root, "alias.attr" for joined includes.
type Row map[string]any

// queryRows runs a SELECT and drains it into Rows.
func queryRows(ctx context.Context, q Querier, query string, args []any) ([]Row, error) {
	unlock := q.serialize()
	defer unlock()

	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		q.notify(ctx, Event{Kind: EventQuery, SQL: query, Args: args, Duration: time.Since(start), Err: err})
		return nil, translateError(query, err)
	}
	out, err := scanRows(rows)
	q.notify(ctx, Event{Kind: EventQuery, SQL: query, Args: args, Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, translateError(query, err)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) (_ []Row, err error) {
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // translated by caller
	}
	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err //nolint:wrapcheck // translated by caller
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(dest[i])
		}
		out = append(out, row)
	}
	return out, rows.Err() //nolint:wrapcheck // translated by caller
}

// execStmt runs a statement that returns no rows.
func execStmt(ctx context.Context, q Querier, query string, args []any) (sql.Result, error) {
	unlock := q.serialize()
	defer unlock()

	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	q.notify(ctx, Event{Kind: EventExec, SQL: query, Args: args, Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, translateError(query, err)
	}
	return res, nil
}

// rowsAffected reads RowsAffected, treating drivers that cannot report it
// as zero.
func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
