package orm

import "fmt"

// Capabilities describes what a dialect can express. The planner consults
// them before emitting SQL and refuses option combinations that would
// otherwise produce silently wrong results.
type Capabilities struct {
	// GroupedLimit reports whether per-parent LIMIT/OFFSET on a separate
	// include can be expressed at all (window functions or UNION ALL
	// emulation).
	GroupedLimit bool
	// WindowFunctions selects ROW_NUMBER() OVER (PARTITION BY ...) for
	// grouped limits. Without it, grouped limits use one sub-select per
	// parent key joined with UNION ALL.
	WindowFunctions bool
	// Schemas reports whether tables can be qualified with a schema name.
	// Dialects without it fold the schema into the table name.
	Schemas bool
	// Restrict reports whether ON DELETE/ON UPDATE RESTRICT is accepted.
	// Without it RESTRICT is emitted as NO ACTION.
	Restrict bool
	// MaxIdentifier is the length in bytes beyond which the database
	// truncates identifiers. Zero means no limit the planner can reach.
	MaxIdentifier int
}

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Name identifies the dialect: "mysql", "postgres" or "sqlite".
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// UseReturning reports whether INSERT should use a RETURNING clause
	// to retrieve the auto-generated primary key (PostgreSQL) rather
	// than relying on LastInsertId (MySQL, SQLite).
	UseReturning() bool

	// ReturningClause returns the RETURNING clause appended to INSERT
	// statements. Returns an empty string for dialects that do not
	// use RETURNING.
	ReturningClause(pk string) string

	// Capabilities reports the features the planner may rely on.
	Capabilities() Capabilities

	// ColumnType returns the column type used by CREATE TABLE.
	ColumnType(t DataType) string

	// AutoIncrementColumn returns the full column definition tail for an
	// auto-incrementing primary key of type t, including PRIMARY KEY.
	AutoIncrementColumn(t DataType) string
}

// MySQL is the Dialect for MySQL 8 / MariaDB 10.2+.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite 3.25+.
var SQLite Dialect = sqliteDialect{}

// WithCapabilities returns d with its capabilities replaced, e.g. to
// target a server version without window functions.
func WithCapabilities(d Dialect, c Capabilities) Dialect {
	return capsDialect{Dialect: d, caps: c}
}

// DialectByName resolves "mysql", "postgres"/"postgresql"/"pgx" and
// "sqlite"/"sqlite3".
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("orm: unknown dialect %q", name)
	}
}

type capsDialect struct {
	Dialect
	caps Capabilities
}

func (c capsDialect) Capabilities() Capabilities { return c.caps }

type mysqlDialect struct{}

func (mysqlDialect) Name() string                    { return "mysql" }
func (mysqlDialect) Placeholder(_ int) string        { return "?" }
func (mysqlDialect) QuoteIdent(name string) string   { return "`" + name + "`" }
func (mysqlDialect) UseReturning() bool              { return false }
func (mysqlDialect) ReturningClause(_ string) string { return "" }

func (mysqlDialect) Capabilities() Capabilities {
	return Capabilities{GroupedLimit: true, WindowFunctions: true, Restrict: true}
}

func (mysqlDialect) ColumnType(t DataType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Text:
		return "TEXT"
	case Boolean:
		return "TINYINT(1)"
	case Float:
		return "DOUBLE"
	case Date:
		return "DATETIME"
	case UUID:
		return "CHAR(36) BINARY"
	default:
		return "VARCHAR(255)"
	}
}

func (d mysqlDialect) AutoIncrementColumn(t DataType) string {
	return d.ColumnType(t) + " NOT NULL auto_increment PRIMARY KEY"
}

type postgresDialect struct{}

func (postgresDialect) Name() string                     { return "postgres" }
func (postgresDialect) Placeholder(index int) string     { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string    { return `"` + name + `"` }
func (postgresDialect) UseReturning() bool               { return true }
func (postgresDialect) ReturningClause(pk string) string { return ` RETURNING "` + pk + `"` }

func (postgresDialect) Capabilities() Capabilities {
	return Capabilities{GroupedLimit: true, WindowFunctions: true, Schemas: true, Restrict: true, MaxIdentifier: 63}
}

func (postgresDialect) ColumnType(t DataType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Text:
		return "TEXT"
	case Boolean:
		return "BOOLEAN"
	case Float:
		return "DOUBLE PRECISION"
	case Date:
		return "TIMESTAMP WITH TIME ZONE"
	case UUID:
		return "UUID"
	default:
		return "VARCHAR(255)"
	}
}

func (postgresDialect) AutoIncrementColumn(t DataType) string {
	if t == BigInt {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "SERIAL PRIMARY KEY"
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                    { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string        { return "?" }
func (sqliteDialect) QuoteIdent(name string) string   { return `"` + name + `"` }
func (sqliteDialect) UseReturning() bool              { return false }
func (sqliteDialect) ReturningClause(_ string) string { return "" }

func (sqliteDialect) Capabilities() Capabilities {
	return Capabilities{GroupedLimit: true, WindowFunctions: true, Restrict: true}
}

func (sqliteDialect) ColumnType(t DataType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Text:
		return "TEXT"
	case Boolean:
		return "TINYINT(1)"
	case Float:
		return "REAL"
	case Date:
		return "DATETIME"
	case UUID:
		return "UUID"
	default:
		return "VARCHAR(255)"
	}
}

// SQLite only auto-increments INTEGER PRIMARY KEY columns.
func (sqliteDialect) AutoIncrementColumn(_ DataType) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
