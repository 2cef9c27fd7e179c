package orm_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mickamy/ormgraph/orm"
)

// blog is the model graph shared by the tests:
//
//	User 1-n Task (tasks / user), User 1-1 Profile (profile),
//	Task 1-n Comment (comments), Task n-m Tag (tags, through TagTask).
type blog struct {
	reg     *orm.Registry
	User    *orm.Model
	Profile *orm.Model
	Task    *orm.Model
	Comment *orm.Model
	Tag     *orm.Model
}

func newBlog(t *testing.T) *blog {
	t.Helper()

	reg := orm.NewRegistry()
	b := &blog{reg: reg}
	b.User = reg.MustDefine("User", []orm.Attribute{
		{Name: "name", Type: orm.String, NotNull: true},
		{Name: "email", Type: orm.String, Unique: true},
	}, orm.ModelOptions{})
	b.Profile = reg.MustDefine("Profile", []orm.Attribute{
		{Name: "bio", Type: orm.Text},
	}, orm.ModelOptions{})
	b.Task = reg.MustDefine("Task", []orm.Attribute{
		{Name: "title", Type: orm.String, NotNull: true},
		{Name: "status", Type: orm.String, DefaultValue: "open"},
	}, orm.ModelOptions{})
	b.Comment = reg.MustDefine("Comment", []orm.Attribute{
		{Name: "body", Type: orm.String},
	}, orm.ModelOptions{})
	b.Tag = reg.MustDefine("Tag", []orm.Attribute{
		{Name: "name", Type: orm.String, Unique: true},
	}, orm.ModelOptions{})

	must := func(_ *orm.Association, err error) {
		t.Helper()
		require.NoError(t, err)
	}
	must(b.User.HasMany(b.Task, orm.AssociationOptions{As: "tasks"}))
	must(b.Task.BelongsTo(b.User, orm.AssociationOptions{As: "user"}))
	must(b.User.HasOne(b.Profile, orm.AssociationOptions{As: "profile"}))
	must(b.Task.HasMany(b.Comment, orm.AssociationOptions{As: "comments"}))
	must(b.Task.BelongsToMany(b.Tag, orm.AssociationOptions{As: "tags"}))
	return b
}

// openSQLite opens a fresh SQLite database file with foreign keys
// enforced.
func openSQLite(t *testing.T) *orm.DB {
	t.Helper()

	return openSQLiteAs(t, orm.SQLite)
}

func openSQLiteAs(t *testing.T, d orm.Dialect) *orm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	raw, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })
	return orm.New(raw, d)
}

// newSQLiteBlog returns the blog models synced into a fresh database.
func newSQLiteBlog(t *testing.T) (*blog, *orm.DB) {
	t.Helper()

	return newSQLiteBlogAs(t, orm.SQLite)
}

func newSQLiteBlogAs(t *testing.T, d orm.Dialect) (*blog, *orm.DB) {
	t.Helper()

	b := newBlog(t)
	db := openSQLiteAs(t, d)
	require.NoError(t, b.reg.Sync(t.Context(), db, nil))
	return b, db
}

func create(t *testing.T, db orm.Querier, m *orm.Model, values orm.Values) *orm.Instance {
	t.Helper()

	inst, err := m.Create(t.Context(), db, values, nil)
	require.NoError(t, err)
	return inst
}

func attrs(insts []*orm.Instance, attr string) []any {
	out := make([]any, len(insts))
	for i, inst := range insts {
		out[i] = inst.Get(attr)
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recorder struct {
	events []orm.Event
}

func (r *recorder) observe(_ context.Context, e orm.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []orm.EventKind {
	out := make([]orm.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
