package orm

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Querier is the common interface for DB and Tx.
// Every model operation accepts this so that it works with both.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
	notify(ctx context.Context, e Event)
	// serialize acquires the handle's statement lock and returns its release.
	serialize() func()
	// transaction runs fn inside a transaction: a new one on *DB, the
	// handle itself when already inside one.
	transaction(ctx context.Context, fn func(q Querier) error) error
}

// Logger is the interface for query logging.
type Logger interface {
	Log(ctx context.Context, query string, args ...any)
}

// EventKind classifies an Event.
type EventKind int

const (
	EventQuery EventKind = iota + 1
	EventExec
	EventBegin
	EventCommit
	EventRollback
)

func (k EventKind) String() string {
	switch k {
	case EventQuery:
		return "query"
	case EventExec:
		return "exec"
	case EventBegin:
		return "begin"
	case EventCommit:
		return "commit"
	case EventRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Event describes one completed database round trip. Query events are
// reported after the result set has been drained, so Duration covers
// the full read.
type Event struct {
	Kind     EventKind
	SQL      string
	Args     []any
	Duration time.Duration
	Err      error
}

// Observer receives an Event for every statement and transaction boundary.
type Observer func(ctx context.Context, e Event)

// DB wraps *sql.DB with a Dialect and satisfies Querier.
type DB struct {
	raw       *sql.DB
	d         Dialect
	logger    Logger
	observers []Observer
}

// New wraps a *sql.DB with the given Dialect.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{raw: db, d: d}
}

// Debug returns a new *DB that logs every query using the given Logger.
// The original DB is not modified.
func (db *DB) Debug(l Logger) *DB {
	return &DB{raw: db.raw, d: db.d, logger: l, observers: db.observers}
}

// Observe returns a new *DB that reports every statement to obs in
// addition to the observers already attached. The original DB is not
// modified.
func (db *DB) Observe(obs ...Observer) *DB {
	all := append(append([]Observer(nil), db.observers...), obs...)
	return &DB{raw: db.raw, d: db.d, logger: db.logger, observers: all}
}

// Dialect returns the dialect the DB compiles SQL for.
func (db *DB) Dialect() Dialect { return db.d }

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	start := time.Now()
	tx, err := db.raw.BeginTx(ctx, nil)
	db.notify(ctx, Event{Kind: EventBegin, Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, translateError("BEGIN", err)
	}
	return &Tx{raw: tx, d: db.d, logger: db.logger, observers: db.observers}, nil
}

// Transaction executes fn within a transaction.
// If fn returns nil the transaction is committed.
// If fn returns an error or panics the transaction is rolled back.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

func (db *DB) dialect() Dialect { return db.d }

func (db *DB) notify(ctx context.Context, e Event) {
	for _, o := range db.observers {
		o(ctx, e)
	}
}

func (db *DB) serialize() func() { return func() {} }

// Transaction runs fn in a new transaction when q is a *DB, or directly
// on q when it is already a *Tx.
func Transaction(ctx context.Context, q Querier, fn func(q Querier) error) error {
	return q.transaction(ctx, fn)
}

func (db *DB) transaction(ctx context.Context, fn func(q Querier) error) error {
	return db.Transaction(ctx, func(tx *Tx) error { return fn(tx) })
}

// Tx wraps *sql.Tx with a Dialect and satisfies Querier.
//
// Statements issued through model operations on the same Tx are
// serialized: a transaction is a single connection and the driver
// cannot interleave result sets on it.
type Tx struct {
	raw       *sql.Tx
	d         Dialect
	logger    Logger
	observers []Observer
	mu        sync.Mutex
}

// Dialect returns the dialect the transaction compiles SQL for.
func (tx *Tx) Dialect() Dialect { return tx.d }

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx.logger != nil {
		tx.logger.Log(ctx, query, args...)
	}
	return tx.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx.logger != nil {
		tx.logger.Log(ctx, query, args...)
	}
	return tx.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	start := time.Now()
	err := tx.raw.Commit()
	tx.notify(context.Background(), Event{Kind: EventCommit, Duration: time.Since(start), Err: err})
	return err //nolint:wrapcheck // thin wrapper
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	start := time.Now()
	err := tx.raw.Rollback()
	tx.notify(context.Background(), Event{Kind: EventRollback, Duration: time.Since(start), Err: err})
	return err //nolint:wrapcheck // thin wrapper
}

func (tx *Tx) dialect() Dialect { return tx.d }

func (tx *Tx) notify(ctx context.Context, e Event) {
	for _, o := range tx.observers {
		o(ctx, e)
	}
}

func (tx *Tx) serialize() func() {
	tx.mu.Lock()
	return tx.mu.Unlock
}

func (tx *Tx) transaction(_ context.Context, fn func(q Querier) error) error {
	return fn(tx)
}
