package logging_test

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mickamy/ormgraph/logging"
	"github.com/mickamy/ormgraph/orm"
)

func TestObserver(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	obs := logging.Observer(zap.New(core))

	obs(t.Context(), orm.Event{Kind: orm.EventQuery, SQL: `SELECT * FROM "users"`, Duration: time.Millisecond})
	obs(t.Context(), orm.Event{Kind: orm.EventExec, SQL: `DELETE FROM "users" WHERE "id" = ?`, Args: []any{1}, Err: errors.New("locked")})
	obs(t.Context(), orm.Event{Kind: orm.EventCommit})

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, map[string]any{
		"kind":     "query",
		"duration": time.Millisecond,
		"sql":      `SELECT * FROM "users"`,
	}, entries[0].ContextMap())

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	fields := entries[1].ContextMap()
	assert.Equal(t, "locked", fields["error"])
	assert.Equal(t, "exec", fields["kind"])
	assert.Contains(t, fields, "args")

	assert.Equal(t, "commit", entries[2].ContextMap()["kind"])
	assert.NotContains(t, entries[2].ContextMap(), "sql")
}

func TestObserver_AttachedToDB(t *testing.T) {
	t.Parallel()

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	reg := orm.NewRegistry()
	tag := reg.MustDefine("Tag", []orm.Attribute{
		{Name: "id", Type: orm.Integer, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: orm.String},
	}, orm.ModelOptions{})

	core, logs := observer.New(zapcore.DebugLevel)
	db := orm.New(raw, orm.SQLite).Observe(logging.Observer(zap.New(core)))

	mock.ExpectExec(`INSERT INTO "tags" ("name") VALUES (?)`).WithArgs("go").WillReturnResult(sqlmock.NewResult(1, 1))
	_, err = tag.Create(t.Context(), db, orm.Values{"name": "go"}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	entries := logs.FilterField(zap.String("sql", `INSERT INTO "tags" ("name") VALUES (?)`)).AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "exec", entries[0].ContextMap()["kind"])
}

func TestLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := logging.NewLogger(zap.New(core))

	l.Log(t.Context(), "SELECT 1", 42)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "SELECT 1", entries[0].Message)
	assert.Equal(t, []any{42}, entries[0].ContextMap()["args"])

	logging.NewLogger(nil).Log(t.Context(), "SELECT 1")
}
