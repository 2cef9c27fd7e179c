package orm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormgraph/orm"
	"github.com/mickamy/ormgraph/scope"
)

func TestCompiler_CreateTable(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	junction, ok := b.reg.Model("TagTask")
	require.True(t, ok)

	tests := []struct {
		name  string
		d     orm.Dialect
		model *orm.Model
		want  string
	}{
		{
			name:  "mysql users",
			d:     orm.MySQL,
			model: b.User,
			want:  "CREATE TABLE IF NOT EXISTS `users` (`id` INTEGER NOT NULL auto_increment PRIMARY KEY, `name` VARCHAR(255) NOT NULL, `email` VARCHAR(255) UNIQUE)",
		},
		{
			name:  "postgres users",
			d:     orm.PostgreSQL,
			model: b.User,
			want:  `CREATE TABLE IF NOT EXISTS "users" ("id" SERIAL PRIMARY KEY, "name" VARCHAR(255) NOT NULL, "email" VARCHAR(255) UNIQUE)`,
		},
		{
			name:  "sqlite nullable foreign key",
			d:     orm.SQLite,
			model: b.Task,
			want: `CREATE TABLE IF NOT EXISTS "tasks" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "title" VARCHAR(255) NOT NULL, "status" VARCHAR(255) DEFAULT 'open', "user_id" INTEGER,` +
				` FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE SET NULL ON UPDATE SET NULL)`,
		},
		{
			name:  "sqlite junction",
			d:     orm.SQLite,
			model: junction,
			want: `CREATE TABLE IF NOT EXISTS "tag_tasks" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "task_id" INTEGER NOT NULL, "tag_id" INTEGER NOT NULL,` +
				` UNIQUE ("task_id", "tag_id"),` +
				` FOREIGN KEY ("task_id") REFERENCES "tasks" ("id") ON DELETE CASCADE ON UPDATE CASCADE,` +
				` FOREIGN KEY ("tag_id") REFERENCES "tags" ("id") ON DELETE CASCADE ON UPDATE CASCADE)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, orm.NewCompiler(tt.d).CreateTable(tt.model))
		})
	}
}

func TestCompiler_CreateTable_RestrictWithoutSupport(t *testing.T) {
	t.Parallel()

	reg := orm.NewRegistry()
	user := reg.MustDefine("User", nil, orm.ModelOptions{})
	post := reg.MustDefine("Post", nil, orm.ModelOptions{})
	_, err := user.HasMany(post, orm.AssociationOptions{As: "posts", OnDelete: orm.Restrict})
	require.NoError(t, err)

	plain := orm.NewCompiler(orm.SQLite).CreateTable(post)
	assert.Contains(t, plain, "ON DELETE RESTRICT ON UPDATE SET NULL")

	limited := orm.NewCompiler(orm.WithCapabilities(orm.SQLite, orm.Capabilities{})).CreateTable(post)
	assert.Contains(t, limited, "ON DELETE NO ACTION ON UPDATE SET NULL")
}

func TestCompiler_CreateTable_Defaults(t *testing.T) {
	t.Parallel()

	reg := orm.NewRegistry()
	flag := reg.MustDefine("Flag", []orm.Attribute{
		{Name: "enabled", Type: orm.Boolean, DefaultValue: true},
		{Name: "weight", Type: orm.Float, DefaultValue: 1.5},
		{Name: "note", Type: orm.Text, DefaultValue: "it's"},
	}, orm.ModelOptions{})

	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "flags" ("id" SERIAL PRIMARY KEY, "enabled" BOOLEAN DEFAULT true, "weight" DOUBLE PRECISION DEFAULT 1.5, "note" TEXT DEFAULT 'it''s')`,
		orm.NewCompiler(orm.PostgreSQL).CreateTable(flag))
	assert.Contains(t, orm.NewCompiler(orm.SQLite).CreateTable(flag), `"enabled" TINYINT(1) DEFAULT 1`)
}

func TestCompiler_SchemaAndIndexes(t *testing.T) {
	t.Parallel()

	reg := orm.NewRegistry()
	note := reg.MustDefine("Note", []orm.Attribute{{Name: "title"}}, orm.ModelOptions{
		Schema:  "crm",
		Indexes: []orm.Index{{Fields: []string{"title"}}},
	})

	pg := orm.NewCompiler(orm.PostgreSQL)
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "crm"`, pg.CreateSchema("crm"))
	assert.Contains(t, pg.CreateTable(note), `CREATE TABLE IF NOT EXISTS "crm"."notes" (`)
	assert.Equal(t, []string{`CREATE INDEX IF NOT EXISTS "notes_title" ON "crm"."notes" ("title")`}, pg.CreateIndexes(note))
	assert.Equal(t, `DROP TABLE IF EXISTS "crm"."notes" CASCADE`, pg.DropTable(note))

	lite := orm.NewCompiler(orm.SQLite)
	assert.Equal(t, []string{`CREATE INDEX IF NOT EXISTS "notes_title" ON "crm.notes" ("title")`}, lite.CreateIndexes(note))
	assert.Equal(t, `DROP TABLE IF EXISTS "crm.notes"`, lite.DropTable(note))

	my := orm.NewCompiler(orm.MySQL)
	assert.Equal(t, []string{"CREATE INDEX `notes_title` ON `crm.notes` (`title`)"}, my.CreateIndexes(note))

	ddl := reg.DDL(orm.PostgreSQL)
	require.Len(t, ddl, 3)
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "crm"`, ddl[0])
	assert.Equal(t, pg.CreateTable(note), ddl[1])
	assert.Len(t, reg.DDL(orm.SQLite), 2)
}

func TestRegistry_DDLOrder(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	ddl := b.reg.DDL(orm.SQLite)

	pos := func(table string) int {
		for i, s := range ddl {
			if strings.HasPrefix(s, `CREATE TABLE IF NOT EXISTS "`+table+`"`) {
				return i
			}
		}
		t.Fatalf("no CREATE TABLE for %s in %v", table, ddl)
		return -1
	}
	assert.Less(t, pos("users"), pos("tasks"))
	assert.Less(t, pos("tasks"), pos("comments"))
	assert.Less(t, pos("tags"), pos("tag_tasks"))
}

func TestCompiler_Insert(t *testing.T) {
	t.Parallel()

	table := orm.TableRef{Name: "tags"}

	query, args := orm.NewCompiler(orm.PostgreSQL).Insert(table, []string{"name"}, [][]any{{"a"}, {"b"}}, "id")
	assert.Equal(t, `INSERT INTO "tags" ("name") VALUES ($1), ($2) RETURNING "id"`, query)
	assert.Equal(t, []any{"a", "b"}, args)

	query, _ = orm.NewCompiler(orm.SQLite).Insert(table, nil, nil, "id")
	assert.Equal(t, `INSERT INTO "tags" DEFAULT VALUES`, query)

	query, _ = orm.NewCompiler(orm.MySQL).Insert(table, nil, nil, "id")
	assert.Equal(t, "INSERT INTO `tags` () VALUES ()", query)
}

func TestCompiler_UpdateDelete(t *testing.T) {
	t.Parallel()

	table := orm.TableRef{Name: "tasks"}
	byUser := []orm.Predicate{{Col: orm.ColumnRef{Field: "user_id"}, Op: scope.OpEq, Value: int64(1)}}

	query, args := orm.NewCompiler(orm.PostgreSQL).Update(table, []string{"status", "user_id"}, []any{"done", nil}, byUser)
	assert.Equal(t, `UPDATE "tasks" SET "status" = $1, "user_id" = $2 WHERE "user_id" = $3`, query)
	assert.Equal(t, []any{"done", nil, int64(1)}, args)

	query, args = orm.NewCompiler(orm.SQLite).Delete(table, []orm.Predicate{
		{Col: orm.ColumnRef{Field: "id"}, Op: scope.OpIn, Value: []any{int64(1), int64(2)}},
		{Raw: "title LIKE ?", Args: []any{"x%"}},
	})
	assert.Equal(t, `DELETE FROM "tasks" WHERE "id" IN (?, ?) AND (title LIKE ?)`, query)
	assert.Equal(t, []any{int64(1), int64(2), "x%"}, args)
}

func TestCompiler_CountGroups(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	plan, err := orm.BuildFindQuery(b.Task, &orm.FindOptions{
		Attributes: []string{"status"},
		Group:      []string{"status"},
		Order:      []scope.Order{scope.Asc("status")},
		Limit:      orm.Ptr(5),
	}, orm.SQLite)
	require.NoError(t, err)

	query, _ := orm.NewCompiler(orm.SQLite).Count(plan.Query, nil)
	assert.Equal(t, `SELECT "Task"."status" AS "status", COUNT(*) AS "count" FROM "tasks" AS "Task" GROUP BY "Task"."status"`, query)
}
