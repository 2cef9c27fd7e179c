package gen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mickamy/ormgraph/orm"
)

// Schema is a set of model declarations, read from a YAML file or parsed
// from Go structs.
type Schema struct {
	Package string  `yaml:"package,omitempty"`
	Models  []Model `yaml:"models"`
}

// Model declares one model.
type Model struct {
	Name        string        `yaml:"name"`
	GoType      string        `yaml:"-"`
	Table       string        `yaml:"table,omitempty"`
	Schema      string        `yaml:"schema,omitempty"`
	Underscored bool          `yaml:"underscored,omitempty"`
	Timestamps  bool          `yaml:"timestamps,omitempty"`
	Attributes  []Attribute   `yaml:"attributes"`
	Indexes     []Index       `yaml:"indexes,omitempty"`
	Relations   []Association `yaml:"associations,omitempty"`
}

// Attribute declares one column.
type Attribute struct {
	Name          string `yaml:"name"`
	Field         string `yaml:"field,omitempty"`
	Type          string `yaml:"type,omitempty"`
	NotNull       bool   `yaml:"notNull,omitempty"`
	Unique        bool   `yaml:"unique,omitempty"`
	PrimaryKey    bool   `yaml:"primaryKey,omitempty"`
	AutoIncrement bool   `yaml:"autoIncrement,omitempty"`
	// Default is a literal, or one of the generator names "uuidv4" and
	// "now".
	Default any `yaml:"default,omitempty"`
}

// Index declares a secondary index.
type Index struct {
	Name   string   `yaml:"name,omitempty"`
	Fields []string `yaml:"fields"`
	Unique bool     `yaml:"unique,omitempty"`
}

// Association declares a relationship from the enclosing model.
type Association struct {
	Kind          string         `yaml:"kind"`
	Target        string         `yaml:"target"`
	As            string         `yaml:"as,omitempty"`
	ForeignKey    string         `yaml:"foreignKey,omitempty"`
	NotNull       bool           `yaml:"notNull,omitempty"`
	SourceKey     string         `yaml:"sourceKey,omitempty"`
	TargetKey     string         `yaml:"targetKey,omitempty"`
	OtherKey      string         `yaml:"otherKey,omitempty"`
	Through       string         `yaml:"through,omitempty"`
	OnDelete      string         `yaml:"onDelete,omitempty"`
	OnUpdate      string         `yaml:"onUpdate,omitempty"`
	NoConstraints bool           `yaml:"noConstraints,omitempty"`
	Scope         map[string]any `yaml:"scope,omitempty"`
}

// Association kinds as written in schema files and rel tags.
const (
	HasOne        = "has_one"
	HasMany       = "has_many"
	BelongsTo     = "belongs_to"
	BelongsToMany = "belongs_to_many"
)

// LoadFile reads a YAML schema from path.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML schema. Unknown keys are rejected.
func Decode(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode schema: empty document")
		}
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &s, nil
}

// Encode writes s as YAML.
func (s *Schema) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return buf.Bytes(), nil
}

// Register declares every model of s on reg, then every association, so
// associations may refer to models declared later in the file.
func (s *Schema) Register(reg *orm.Registry) error {
	for _, m := range s.Models {
		attrs, err := m.attributes()
		if err != nil {
			return err
		}
		opts := orm.ModelOptions{
			TableName:   m.Table,
			Schema:      m.Schema,
			Underscored: m.Underscored,
			Timestamps:  m.Timestamps,
		}
		for _, ix := range m.Indexes {
			opts.Indexes = append(opts.Indexes, orm.Index{Name: ix.Name, Fields: ix.Fields, Unique: ix.Unique})
		}
		if _, err := reg.Define(m.Name, attrs, opts); err != nil {
			return err
		}
	}
	for _, m := range s.Models {
		source, _ := reg.Model(m.Name)
		for _, rel := range m.Relations {
			if err := declare(reg, source, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m Model) attributes() ([]orm.Attribute, error) {
	out := make([]orm.Attribute, 0, len(m.Attributes))
	for _, a := range m.Attributes {
		attr := orm.Attribute{
			Name:          a.Name,
			Field:         a.Field,
			NotNull:       a.NotNull,
			Unique:        a.Unique,
			PrimaryKey:    a.PrimaryKey,
			AutoIncrement: a.AutoIncrement,
			DefaultValue:  defaultValue(a.Default),
		}
		if a.Type != "" {
			t, err := orm.ParseDataType(a.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.Name, a.Name, err)
			}
			attr.Type = t
		}
		out = append(out, attr)
	}
	return out, nil
}

func defaultValue(v any) any {
	switch v {
	case "uuidv4":
		return orm.UUIDV4
	case "now":
		return orm.Now
	}
	return v
}

func declare(reg *orm.Registry, source *orm.Model, rel Association) error {
	target, ok := reg.Model(rel.Target)
	if !ok {
		return fmt.Errorf("%s: unknown association target %q", source.Name(), rel.Target)
	}
	opts := rel.options()
	if rel.Through != "" {
		if through, ok := reg.Model(rel.Through); ok {
			opts.Through = through
		} else {
			opts.ThroughName = rel.Through
		}
	}
	var err error
	switch rel.Kind {
	case HasOne:
		_, err = source.HasOne(target, opts)
	case HasMany:
		_, err = source.HasMany(target, opts)
	case BelongsTo:
		_, err = source.BelongsTo(target, opts)
	case BelongsToMany:
		_, err = source.BelongsToMany(target, opts)
	default:
		return fmt.Errorf("%s: unknown association kind %q", source.Name(), rel.Kind)
	}
	return err
}

func (rel Association) options() orm.AssociationOptions {
	return orm.AssociationOptions{
		As:            rel.As,
		ForeignKey:    orm.ForeignKeyOptions{Name: rel.ForeignKey, NotNull: rel.NotNull},
		SourceKey:     rel.SourceKey,
		TargetKey:     rel.TargetKey,
		OtherKey:      rel.OtherKey,
		Scope:         rel.Scope,
		OnDelete:      rel.OnDelete,
		OnUpdate:      rel.OnUpdate,
		NoConstraints: rel.NoConstraints,
	}
}
