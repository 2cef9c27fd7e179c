package orm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mickamy/ormgraph/orm"
)

type plain struct{}

type valueNamer struct{}

func (valueNamer) TableName() string { return "custom_values" }

type ptrNamer struct{}

func (*ptrNamer) TableName() string { return "custom_ptrs" }

type auditEntry struct{}

func (auditEntry) TableName() string   { return "entries" }
func (auditEntry) TableSchema() string { return "audit" }

func TestResolveTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resolve  func() string
		expected string
	}{
		{
			name:     "fallback when TableNamer not implemented",
			resolve:  func() string { return orm.ResolveTableName[plain]("fallback") },
			expected: "fallback",
		},
		{
			name:     "value receiver",
			resolve:  func() string { return orm.ResolveTableName[valueNamer]("fallback") },
			expected: "custom_values",
		},
		{
			name:     "pointer receiver",
			resolve:  func() string { return orm.ResolveTableName[ptrNamer]("fallback") },
			expected: "custom_ptrs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.resolve(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOptionsFor(t *testing.T) {
	t.Parallel()

	base := orm.ModelOptions{TableName: "things", Timestamps: true}

	assert.Equal(t, base, orm.OptionsFor[plain](base))
	assert.Equal(t, orm.ModelOptions{TableName: "custom_ptrs", Timestamps: true}, orm.OptionsFor[ptrNamer](base))

	opts := orm.OptionsFor[auditEntry](base)
	assert.Equal(t, "entries", opts.TableName)
	assert.Equal(t, "audit", opts.Schema)
	assert.True(t, opts.Timestamps)

	reg := orm.NewRegistry()
	m := reg.MustDefine("AuditEntry", nil, opts)
	assert.Equal(t, "entries", m.TableName())
	assert.Equal(t, "audit", m.Schema())
}
