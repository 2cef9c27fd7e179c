package orm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a query expects exactly one row but finds none.
var ErrNotFound = errors.New("orm: not found")

// AssociationConfigurationError reports an invalid association or model
// declaration: alias or foreign key collisions, naming clashes, keys that
// do not exist or are not unique. It is returned at declaration time,
// never while querying.
type AssociationConfigurationError struct {
	Model  string
	Alias  string
	Reason string
}

func (e *AssociationConfigurationError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("orm: invalid declaration on model %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("orm: invalid association %q on model %s: %s", e.Alias, e.Model, e.Reason)
}

// EagerLoadingError reports an include that does not name an association
// declared on the including model.
type EagerLoadingError struct {
	Model string
	Alias string
}

func (e *EagerLoadingError) Error() string {
	return fmt.Sprintf("orm: %s is not associated to %s", e.Alias, e.Model)
}

// UnsupportedFeatureError reports an option combination the dialect
// cannot express correctly.
type UnsupportedFeatureError struct {
	Feature string
	Dialect string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("orm: %s is not supported by dialect %s", e.Feature, e.Dialect)
}

// DatabaseError wraps a failure returned by the driver that is not a
// recognised constraint violation.
type DatabaseError struct {
	SQL string
	Err error
}

func (e *DatabaseError) Error() string { return "orm: database error: " + e.Err.Error() }
func (e *DatabaseError) Unwrap() error { return e.Err }

// ForeignKeyConstraintError reports a foreign key violation, e.g. deleting
// a row still referenced under ON DELETE RESTRICT.
type ForeignKeyConstraintError struct {
	Table string
	Err   error
}

func (e *ForeignKeyConstraintError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("orm: foreign key constraint failed on %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("orm: foreign key constraint failed: %v", e.Err)
}

func (e *ForeignKeyConstraintError) Unwrap() error { return e.Err }

// UniqueConstraintError reports a duplicate value in a unique column or index.
type UniqueConstraintError struct {
	Constraint string
	Err        error
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("orm: unique constraint failed: %v", e.Err)
}

func (e *UniqueConstraintError) Unwrap() error { return e.Err }

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateKeyName = 1061
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // Cannot add or update a child row
)

// SQLite extended result codes.
const (
	sqliteConstraintForeignKey = 787
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// sqliteCoder is implemented by modernc.org/sqlite errors.
type sqliteCoder interface {
	Code() int
}

type violation int

const (
	noViolation violation = iota
	foreignKeyViolation
	uniqueViolation
)

// translateError maps a driver failure onto the error taxonomy, keeping
// the driver error as the wrapped cause.
func translateError(query string, err error) error {
	if err == nil {
		return nil
	}
	var (
		fk *ForeignKeyConstraintError
		uq *UniqueConstraintError
		de *DatabaseError
	)
	if errors.As(err, &fk) || errors.As(err, &uq) || errors.As(err, &de) {
		return err
	}
	kind, table, constraint := classify(err)
	switch kind {
	case foreignKeyViolation:
		return &ForeignKeyConstraintError{Table: table, Err: err}
	case uniqueViolation:
		return &UniqueConstraintError{Constraint: constraint, Err: err}
	}
	return &DatabaseError{SQL: query, Err: err}
}

func classify(err error) (violation, string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return foreignKeyViolation, pgErr.TableName, pgErr.ConstraintName
		case pgUniqueViolation:
			return uniqueViolation, pgErr.TableName, pgErr.ConstraintName
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgForeignKeyViolation:
			return foreignKeyViolation, pqErr.Table, pqErr.Constraint
		case pgUniqueViolation:
			return uniqueViolation, pqErr.Table, pqErr.Constraint
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return foreignKeyViolation, "", ""
		case mysqlDuplicateEntry:
			return uniqueViolation, "", ""
		}
	}

	var liteErr sqliteCoder
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqliteConstraintForeignKey:
			return foreignKeyViolation, "", ""
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return uniqueViolation, "", ""
		}
	}

	// Fallback to string matching for drivers that don't expose codes.
	msg := err.Error()
	switch {
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"):
		return foreignKeyViolation, "", ""
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return uniqueViolation, "", ""
	}
	return noViolation, "", ""
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isDuplicateIndex reports a MySQL CREATE INDEX on an index that already
// exists. MySQL has no CREATE INDEX IF NOT EXISTS.
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateKeyName
	}
	return strings.Contains(err.Error(), "Error 1061")
}
