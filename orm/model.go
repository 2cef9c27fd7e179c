package orm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mickamy/ormgraph/internal/naming"
)

// DataType is the abstract column type of an attribute.
type DataType string

const (
	Integer DataType = "INTEGER"
	BigInt  DataType = "BIGINT"
	String  DataType = "STRING"
	Text    DataType = "TEXT"
	Boolean DataType = "BOOLEAN"
	Float   DataType = "FLOAT"
	Date    DataType = "DATE"
	UUID    DataType = "UUID"
)

// defaultPrimaryKey is added to models that declare no primary key.
const defaultPrimaryKey = "id"

// ParseDataType resolves a type name as written in schema files.
func ParseDataType(s string) (DataType, error) {
	switch t := DataType(s); t {
	case Integer, BigInt, String, Text, Boolean, Float, Date, UUID:
		return t, nil
	}
	return "", fmt.Errorf("orm: unknown data type %q", s)
}

// Referential actions for foreign keys.
const (
	Cascade  = "CASCADE"
	SetNull  = "SET NULL"
	Restrict = "RESTRICT"
	NoAction = "NO ACTION"
)

// Reference is the database-level foreign key carried by an attribute.
type Reference struct {
	Model    *Model
	Key      string
	OnDelete string
	OnUpdate string
}

// Attribute describes one column of a model.
type Attribute struct {
	Name          string
	Field         string
	Type          DataType
	NotNull       bool
	DefaultValue  any
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	References    *Reference

	// owner is the first association that declared this attribute as its
	// foreign key, if any; refModel and refKey are what it points at.
	owner    *Association
	refModel *Model
	refKey   string
}

// Index is a secondary index declared on a model.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// ModelOptions configures Define.
type ModelOptions struct {
	// TableName overrides the snake_case plural of the model name.
	TableName string
	// Schema qualifies the table.
	Schema string
	// Underscored maps attribute names to snake_case column names when
	// no Field is given.
	Underscored bool
	// Timestamps adds created_at and updated_at, maintained on create
	// and update.
	Timestamps bool
	Indexes    []Index
}

// Registry holds the models and associations of one application.
// Declarations are expected at start-up; once declared, models are
// read-only and safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models []*Model
	byName map[string]*Model
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Model)}
}

// Model returns the model registered under name.
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// Models returns all models in declaration order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.models)
}

// Define declares a model. When no attribute is marked PrimaryKey an
// auto-incrementing integer "id" is prepended.
func (r *Registry) Define(name string, attrs []Attribute, opts ModelOptions) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.define(name, attrs, opts)
}

// MustDefine is like Define but panics on error. Intended for package-level
// model declarations.
func (r *Registry) MustDefine(name string, attrs []Attribute, opts ModelOptions) *Model {
	m, err := r.Define(name, attrs, opts)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Registry) define(name string, attrs []Attribute, opts ModelOptions) (*Model, error) {
	if name == "" {
		return nil, &AssociationConfigurationError{Reason: "model name is empty"}
	}
	if _, ok := r.byName[name]; ok {
		return nil, &AssociationConfigurationError{Model: name, Reason: "model already defined"}
	}

	m := &Model{
		registry: r,
		name:     name,
		table:    opts.TableName,
		schema:   opts.Schema,
		opts:     opts,
		byName:   make(map[string]*Attribute),
		assocs:   make(map[string]*Association),
	}
	if m.table == "" {
		m.table = naming.TableName(name)
	}

	if !slices.ContainsFunc(attrs, func(a Attribute) bool { return a.PrimaryKey }) {
		attrs = append([]Attribute{{Name: defaultPrimaryKey, Type: Integer, PrimaryKey: true, AutoIncrement: true, NotNull: true}}, attrs...)
	}
	if opts.Timestamps {
		attrs = slices.Clone(attrs)
		for _, ts := range []string{"created_at", "updated_at"} {
			if !slices.ContainsFunc(attrs, func(a Attribute) bool { return a.Name == ts }) {
				attrs = append(attrs, Attribute{Name: ts, Type: Date, NotNull: true})
			}
		}
	}

	for _, a := range attrs {
		if a.Name == "" {
			return nil, &AssociationConfigurationError{Model: name, Reason: "attribute name is empty"}
		}
		if _, ok := m.byName[a.Name]; ok {
			return nil, &AssociationConfigurationError{Model: name, Reason: fmt.Sprintf("attribute %q declared twice", a.Name)}
		}
		if a.Type == "" {
			a.Type = String
		}
		if a.PrimaryKey {
			if m.pk != nil {
				return nil, &AssociationConfigurationError{Model: name, Reason: "composite primary keys are not supported"}
			}
			a.NotNull = true
		}
		m.addAttribute(&a)
		if a.PrimaryKey {
			m.pk = m.byName[a.Name]
		}
	}

	for _, idx := range opts.Indexes {
		for _, f := range idx.Fields {
			if _, ok := m.byName[f]; !ok {
				return nil, &AssociationConfigurationError{Model: name, Reason: fmt.Sprintf("index references unknown attribute %q", f)}
			}
		}
	}

	r.models = append(r.models, m)
	r.byName[name] = m
	return m, nil
}

// Model is a named entity mapped to a table.
type Model struct {
	registry *Registry
	name     string
	table    string
	schema   string
	opts     ModelOptions

	attrs  []*Attribute
	byName map[string]*Attribute
	pk     *Attribute

	assocOrder []*Association
	assocs     map[string]*Association
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// TableName returns the unqualified table name.
func (m *Model) TableName() string { return m.table }

// Schema returns the table schema, or "".
func (m *Model) Schema() string { return m.schema }

// PrimaryKey returns the primary key attribute.
func (m *Model) PrimaryKey() *Attribute { return m.pk }

// Attribute looks up an attribute by name.
func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.byName[name]
	return a, ok
}

// Attributes returns the attributes in declaration order.
func (m *Model) Attributes() []*Attribute { return slices.Clone(m.attrs) }

// Association looks up an association declared on m by alias.
func (m *Model) Association(alias string) (*Association, bool) {
	a, ok := m.assocs[alias]
	return a, ok
}

// Associations returns the associations declared on m in declaration order.
func (m *Model) Associations() []*Association { return slices.Clone(m.assocOrder) }

// Indexes returns the declared secondary indexes.
func (m *Model) Indexes() []Index { return slices.Clone(m.opts.Indexes) }

func (m *Model) addAttribute(a *Attribute) {
	if a.Field == "" {
		a.Field = a.Name
		if m.opts.Underscored {
			a.Field = naming.CamelToSnake(a.Name)
		}
	}
	m.attrs = append(m.attrs, a)
	m.byName[a.Name] = a
}

// isUnique reports whether attr identifies at most one row.
func (m *Model) isUnique(attr string) bool {
	a, ok := m.byName[attr]
	if !ok {
		return false
	}
	if a.PrimaryKey || a.Unique {
		return true
	}
	for _, idx := range m.opts.Indexes {
		if idx.Unique && len(idx.Fields) == 1 && idx.Fields[0] == attr {
			return true
		}
	}
	return false
}

// field maps an attribute name to its column, passing unknown names through.
func (m *Model) field(attr string) string {
	if a, ok := m.byName[attr]; ok {
		return a.Field
	}
	return attr
}

func (m *Model) tableRef(alias string) TableRef {
	return TableRef{Schema: m.schema, Name: m.table, Alias: alias}
}
