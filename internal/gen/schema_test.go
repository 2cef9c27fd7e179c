package gen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormgraph/internal/gen"
	"github.com/mickamy/ormgraph/orm"
)

func TestSchema_Register(t *testing.T) {
	t.Parallel()

	s, err := gen.LoadFile(testdataPath("blog.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "blog", s.Package)

	reg := orm.NewRegistry()
	require.NoError(t, s.Register(reg))

	task, ok := reg.Model("Task")
	require.True(t, ok)
	assert.Equal(t, "todo_items", task.TableName())

	uid, _ := task.Attribute("uid")
	assert.Equal(t, orm.UUID, uid.Type)
	_, generated := uid.DefaultValue.(orm.DefaultFunc)
	assert.True(t, generated)

	fk, ok := task.Attribute("user_id")
	require.True(t, ok)
	assert.True(t, fk.NotNull)
	assert.Equal(t, orm.Cascade, fk.References.OnDelete)

	user, _ := reg.Model("User")
	done, ok := user.Association("doneTasks")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": "done"}, done.Scope())

	tags, _ := task.Association("tags")
	assert.Equal(t, "task_tags", tags.Through().TableName())

	c := orm.NewCompiler(orm.PostgreSQL)
	ddl := c.CreateTable(task)
	assert.Contains(t, ddl, `"status" VARCHAR(255) DEFAULT 'open'`)
	assert.Contains(t, ddl, `"weight" DOUBLE PRECISION DEFAULT 1.5`)
	assert.Equal(t, []string{`CREATE INDEX IF NOT EXISTS "todo_items_status_title" ON "todo_items" ("status", "title")`}, c.CreateIndexes(task))
}

func TestSchema_RegisterErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown target",
			yaml: "models:\n  - name: A\n    attributes: []\n    associations:\n      - kind: has_many\n        target: B\n",
			want: `unknown association target "B"`,
		},
		{
			name: "unknown kind",
			yaml: "models:\n  - name: A\n    attributes: []\n    associations:\n      - kind: owns\n        target: A\n",
			want: `unknown association kind "owns"`,
		},
		{
			name: "unknown type",
			yaml: "models:\n  - name: A\n    attributes:\n      - name: x\n        type: MONEY\n",
			want: `unknown data type "MONEY"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := gen.Decode(strings.NewReader(tt.yaml))
			require.NoError(t, err)
			err = s.Register(orm.NewRegistry())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	_, err := gen.Decode(strings.NewReader("models:\n  - name: A\n    colour: red\n"))
	require.Error(t, err, "unknown keys are rejected")

	_, err = gen.Decode(strings.NewReader(""))
	require.Error(t, err)

	s := &gen.Schema{Models: []gen.Model{{Name: "A", Attributes: []gen.Attribute{{Name: "x", NotNull: true}}}}}
	out, err := s.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "package")
	back, err := gen.Decode(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
