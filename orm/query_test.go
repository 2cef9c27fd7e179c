package orm_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/mickamy/ormgraph/orm"
	"github.com/mickamy/ormgraph/scope"
)

const selectUsersMySQL = "SELECT `User`.`id` AS `id`, `User`.`name` AS `name`, `User`.`email` AS `email` FROM `users` AS `User`"

// --- SELECT (MySQL) ---

func TestBuildSelectAll(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).All(t.Context())

	got := tq.LastQuery()
	if got.SQL != selectUsersMySQL {
		t.Errorf("SQL = %q, want %q", got.SQL, selectUsersMySQL)
	}
}

func TestBuildSelectWhere(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).Where(scope.Eq("name", "alice")).All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " WHERE `User`.`name` = ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 1 || got.Args[0] != "alice" {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildSelectMultipleWhere(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).
		Where(scope.Eq("name", "alice")).
		Where(scope.Gt("id", 10)).
		All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " WHERE `User`.`name` = ? AND `User`.`id` > ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if !slices.Equal(got.Args, []any{"alice", int64(10)}) {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildSelectOrConditions(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).
		Where(scope.Or(scope.Eq("name", "alice"), scope.IsNull("email"))).
		All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " WHERE (`User`.`name` = ? OR `User`.`email` IS NULL)"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectIn(t *testing.T) {
	t.Parallel()

	b := newBlog(t)

	tests := []struct {
		name string
		cond scope.Cond
		want string
	}{
		{"in", scope.In("id", []int{1, 2}), " WHERE `User`.`id` IN (?, ?)"},
		{"empty in", scope.In("id", []int{}), " WHERE 1 = 0"},
		{"empty not in", scope.NotIn("id", []int{}), " WHERE 1 = 1"},
		{"eq nil", scope.Eq("email", nil), " WHERE `User`.`email` IS NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tq := orm.NewTestQuerier(orm.MySQL)
			_, _ = orm.Find(tq, b.User).Where(tt.cond).All(t.Context())
			if got := tq.LastQuery().SQL; got != selectUsersMySQL+tt.want {
				t.Errorf("SQL = %q, want %q", got, selectUsersMySQL+tt.want)
			}
		})
	}
}

func TestBuildSelectOrderBy(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).OrderBy(scope.OrderBy("name DESC"), scope.Asc("id")).All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " ORDER BY `User`.`name` DESC, `User`.`id` ASC"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectLimitOffset(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).Limit(10).Offset(20).All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " LIMIT 10 OFFSET 20"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectOffsetWithoutLimit(t *testing.T) {
	t.Parallel()

	b := newBlog(t)

	tests := []struct {
		d    orm.Dialect
		want string
	}{
		{orm.MySQL, " LIMIT 18446744073709551615 OFFSET 5"},
		{orm.SQLite, " LIMIT -1 OFFSET 5"},
		{orm.PostgreSQL, " OFFSET 5"},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name(), func(t *testing.T) {
			t.Parallel()

			tq := orm.NewTestQuerier(tt.d)
			_, _ = orm.Find(tq, b.User).Offset(5).All(t.Context())
			if got := tq.LastQuery().SQL; len(got) < len(tt.want) || got[len(got)-len(tt.want):] != tt.want {
				t.Errorf("SQL = %q, want suffix %q", got, tt.want)
			}
		})
	}
}

func TestBuildSelectAttributes(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).Select("id", "name").All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `User`.`id` AS `id`, `User`.`name` AS `name` FROM `users` AS `User`"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectUnknownAttribute(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, err := orm.Find(tq, b.User).Where(scope.Eq("nope", 1)).All(t.Context())
	if err == nil {
		t.Fatal("expected error for unknown attribute")
	}
	if len(tq.Queries) != 0 {
		t.Errorf("expected no query, got %v", tq.Queries)
	}
}

func TestBuildSelectWithScopes(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	active := scope.Combine(scope.NotNull("email"), scope.Desc("id"))
	_, _ = orm.Find(tq, b.User).Scopes(active.Append(scope.Limit(5))...).All(t.Context())

	got := tq.LastQuery()
	want := selectUsersMySQL + " WHERE `User`.`email` IS NOT NULL ORDER BY `User`.`id` DESC LIMIT 5"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestQueryImmutability(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	base := orm.Find(tq, b.User)
	_ = base.Where(scope.Eq("name", "alice")).Limit(3)

	_, _ = base.All(t.Context())

	if got := tq.LastQuery().SQL; got != selectUsersMySQL {
		t.Errorf("base query modified: %q", got)
	}
}

func TestFirstAddsLimit(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, _ = orm.Find(tq, b.User).First(t.Context())

	want := selectUsersMySQL + " LIMIT 1"
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestBuildCount(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.SQLite)

	_, _ = orm.Find(tq, b.User).Where(scope.Eq("name", "alice")).Limit(3).OrderBy(scope.Asc("id")).Count(t.Context())

	want := `SELECT COUNT(*) AS "count" FROM "users" AS "User" WHERE "User"."name" = ?`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestBuildCountDistinctWithRequiredInclude(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.SQLite)

	_, _ = orm.Find(tq, b.User).
		Include(&orm.Include{As: "tasks", Where: []scope.Cond{scope.Eq("status", "done")}}).
		Include(orm.Preload("profile")).
		Count(t.Context())

	want := `SELECT COUNT(DISTINCT "User"."id") AS "count" FROM "users" AS "User"` +
		` INNER JOIN "tasks" AS "tasks" ON "tasks"."user_id" = "User"."id" AND "tasks"."status" = ?`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

// --- PostgreSQL placeholders ---

func TestRewritePostgreSQLSelect(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.PostgreSQL)

	_, _ = orm.Find(tq, b.User).Where(scope.Eq("name", "alice"), scope.Eq("email", "a@example.com")).All(t.Context())

	want := `SELECT "User"."id" AS "id", "User"."name" AS "name", "User"."email" AS "email" FROM "users" AS "User"` +
		` WHERE "User"."name" = $1 AND "User"."email" = $2`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

// --- INSERT / UPDATE / DELETE ---

func TestBuildInsertMySQL(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	task, err := b.Task.Create(t.Context(), tq, orm.Values{"title": "write"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := tq.LastQuery()
	want := "INSERT INTO `tasks` (`title`, `status`) VALUES (?, ?)"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if !slices.Equal(got.Args, []any{"write", "open"}) {
		t.Errorf("Args = %v", got.Args)
	}
	if task.PK() != int64(1) {
		t.Errorf("PK = %v, want 1 from LastInsertId", task.PK())
	}
	if task.IsNewRecord() {
		t.Error("IsNewRecord() = true after Create")
	}
}

func TestBuildInsertPostgreSQL(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.PostgreSQL)

	// The mock cannot return rows, so only the statement is checked.
	_, _ = b.User.Create(t.Context(), tq, orm.Values{"name": "alice"}, nil)

	want := `INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestBuildInsertFields(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.SQLite)

	_, err := b.User.Create(t.Context(), tq, orm.Values{"name": "alice", "email": "a@example.com"},
		&orm.CreateOptions{Fields: []string{"name"}})
	if err != nil {
		t.Fatal(err)
	}

	want := `INSERT INTO "users" ("name") VALUES (?)`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestBuildUpdate(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	u := b.User.Build(orm.Values{"id": 7, "name": "bob", "email": "b@example.com"})
	if err := b.User.Update(t.Context(), tq, u, "name"); err != nil {
		t.Fatal(err)
	}

	got := tq.LastQuery()
	want := "UPDATE `users` SET `name` = ? WHERE `id` = ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if !slices.Equal(got.Args, []any{"bob", int64(7)}) {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildUpdatePostgreSQL(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.PostgreSQL)

	_, err := orm.Find(tq, b.User).Where(scope.Eq("id", 1)).Update(t.Context(), orm.Values{"name": "bob"})
	if err != nil {
		t.Fatal(err)
	}

	want := `UPDATE "users" SET "name" = $1 WHERE "id" = $2`
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestUpdateWithoutPKReturnsError(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	if err := b.User.Update(t.Context(), tq, b.User.Build(orm.Values{"name": "x"})); err == nil {
		t.Fatal("expected error")
	}
	if len(tq.Queries) != 0 {
		t.Errorf("expected no query, got %d", len(tq.Queries))
	}
}

func TestBuildDelete(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	n, err := orm.Find(tq, b.User).Where(scope.Eq("id", 1)).Delete(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}

	want := "DELETE FROM `users` WHERE `id` = ?"
	if got := tq.LastQuery().SQL; got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
}

func TestDeleteWithoutWhereReturnsError(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	if _, err := orm.Find(tq, b.User).Delete(t.Context()); err == nil {
		t.Fatal("expected error for Delete without WHERE")
	}
	if _, err := b.User.DestroyWhere(t.Context(), tq); err == nil {
		t.Fatal("expected error for DestroyWhere without conditions")
	}
	if len(tq.Queries) != 0 {
		t.Errorf("expected no query, got %d", len(tq.Queries))
	}
}

func TestQueryErrorsAreDatabaseErrors(t *testing.T) {
	t.Parallel()

	b := newBlog(t)
	tq := orm.NewTestQuerier(orm.MySQL)

	_, err := orm.Find(tq, b.User).All(t.Context())

	var dbErr *orm.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("err = %v, want *orm.DatabaseError", err)
	}
	if dbErr.SQL != selectUsersMySQL {
		t.Errorf("DatabaseError.SQL = %q", dbErr.SQL)
	}
	if len(tq.Events) != 1 || tq.Events[0].Kind != orm.EventQuery || tq.Events[0].Err == nil {
		t.Errorf("Events = %+v", tq.Events)
	}
}
