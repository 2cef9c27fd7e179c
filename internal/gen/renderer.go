package gen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/mickamy/ormgraph/internal/naming"
)

// RenderOption controls the output of Render.
type RenderOption struct {
	DestPkg      string // output package name (empty = same as source)
	SourceImport string // import path for source package (required when DestPkg is set)
}

// Render generates a Go source file declaring a Models struct and a
// RegisterModels function that defines every model of s, then every
// association. Options of models parsed from Go structs go through
// orm.OptionsFor, so TableName and TableSchema methods on the struct win
// over the derived names. The returned bytes are formatted by gofmt.
func Render(s *Schema, opt RenderOption) ([]byte, error) {
	if s == nil || len(s.Models) == 0 {
		return nil, errors.New("no models to render")
	}
	pkg := opt.DestPkg
	if pkg == "" {
		pkg = s.Package
	}
	if pkg == "" {
		return nil, errors.New("package name is required")
	}
	if opt.DestPkg != "" && opt.SourceImport == "" {
		return nil, errors.New("SourceImport is required when DestPkg is set")
	}

	typePrefix := ""
	if opt.SourceImport != "" {
		// e.g. "github.com/example/model" → "model."
		parts := strings.Split(opt.SourceImport, "/")
		typePrefix = parts[len(parts)-1] + "."
	}

	declared := make(map[string]bool, len(s.Models))
	for _, m := range s.Models {
		declared[m.Name] = true
	}

	data := fileTemplateData{Package: pkg}
	// Only struct-backed models refer to the source package.
	if slices.ContainsFunc(s.Models, func(m Model) bool { return m.GoType != "" }) {
		data.SourceImport = opt.SourceImport
	}
	for _, m := range s.Models {
		md := modelTemplateData{Name: m.Name}
		attrs := make([]string, len(m.Attributes))
		for i, a := range m.Attributes {
			lit, err := attributeLiteral(a)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.Name, a.Name, err)
			}
			attrs[i] = lit
		}
		md.Attributes = attrs
		md.Options = modelOptionsLiteral(m, typePrefix)
		data.Models = append(data.Models, md)

		for _, rel := range m.Relations {
			if !declared[rel.Target] {
				return nil, fmt.Errorf("%s: unknown association target %q", m.Name, rel.Target)
			}
			method, ok := declareMethods[rel.Kind]
			if !ok {
				return nil, fmt.Errorf("%s: unknown association kind %q", m.Name, rel.Kind)
			}
			data.Associations = append(data.Associations, associationTemplateData{
				Source:  m.Name,
				Method:  method,
				Target:  rel.Target,
				Options: associationOptionsLiteral(rel, declared),
			})
		}
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gofmt: %w", err)
	}
	return src, nil
}

var declareMethods = map[string]string{
	HasOne:        "HasOne",
	HasMany:       "HasMany",
	BelongsTo:     "BelongsTo",
	BelongsToMany: "BelongsToMany",
}

var dataTypeConsts = map[string]string{
	"INTEGER": "orm.Integer",
	"BIGINT":  "orm.BigInt",
	"STRING":  "orm.String",
	"TEXT":    "orm.Text",
	"BOOLEAN": "orm.Boolean",
	"FLOAT":   "orm.Float",
	"DATE":    "orm.Date",
	"UUID":    "orm.UUID",
}

type fileTemplateData struct {
	Package      string
	SourceImport string
	Models       []modelTemplateData
	Associations []associationTemplateData
}

type modelTemplateData struct {
	Name       string
	Attributes []string
	Options    string
}

type associationTemplateData struct {
	Source  string
	Method  string
	Target  string
	Options string
}

// literal builds a composite literal body from key/value pairs, skipping
// empty values.
type literal []string

func (l *literal) add(key, value string) {
	if value != "" {
		*l = append(*l, key+": "+value)
	}
}

func (l *literal) str(key, value string) {
	if value != "" {
		l.add(key, strconv.Quote(value))
	}
}

func (l *literal) flag(key string, on bool) {
	if on {
		l.add(key, "true")
	}
}

func (l literal) String() string { return "{" + strings.Join(l, ", ") + "}" }

func attributeLiteral(a Attribute) (string, error) {
	var l literal
	l.str("Name", a.Name)
	l.str("Field", a.Field)
	if a.Type != "" {
		t, ok := dataTypeConsts[a.Type]
		if !ok {
			return "", fmt.Errorf("unknown data type %q", a.Type)
		}
		l.add("Type", t)
	}
	l.flag("NotNull", a.NotNull)
	if a.Default != nil {
		v, err := goValue(a.Default)
		if err != nil {
			return "", err
		}
		switch a.Default {
		case "uuidv4":
			v = "orm.UUIDV4"
		case "now":
			v = "orm.Now"
		}
		l.add("DefaultValue", v)
	}
	l.flag("PrimaryKey", a.PrimaryKey)
	l.flag("AutoIncrement", a.AutoIncrement)
	l.flag("Unique", a.Unique)
	return l.String(), nil
}

func modelOptionsLiteral(m Model, typePrefix string) string {
	var l literal
	switch {
	case m.Table != "":
		l.str("TableName", m.Table)
	case m.GoType != "":
		l.str("TableName", naming.TableName(m.Name))
	}
	l.str("Schema", m.Schema)
	l.flag("Underscored", m.Underscored)
	l.flag("Timestamps", m.Timestamps)
	if len(m.Indexes) > 0 {
		items := make([]string, len(m.Indexes))
		for i, ix := range m.Indexes {
			var il literal
			il.str("Name", ix.Name)
			quoted := make([]string, len(ix.Fields))
			for j, f := range ix.Fields {
				quoted[j] = strconv.Quote(f)
			}
			il.add("Fields", "[]string{"+strings.Join(quoted, ", ")+"}")
			il.flag("Unique", ix.Unique)
			items[i] = il.String()
		}
		l.add("Indexes", "[]orm.Index{"+strings.Join(items, ", ")+"}")
	}
	lit := "orm.ModelOptions" + l.String()
	if m.GoType != "" {
		return fmt.Sprintf("orm.OptionsFor[%s%s](%s)", typePrefix, m.GoType, lit)
	}
	return lit
}

func associationOptionsLiteral(rel Association, declared map[string]bool) string {
	var l literal
	l.str("As", rel.As)
	if rel.ForeignKey != "" || rel.NotNull {
		var fk literal
		fk.str("Name", rel.ForeignKey)
		fk.flag("NotNull", rel.NotNull)
		l.add("ForeignKey", "orm.ForeignKeyOptions"+fk.String())
	}
	l.str("SourceKey", rel.SourceKey)
	l.str("TargetKey", rel.TargetKey)
	l.str("OtherKey", rel.OtherKey)
	if rel.Through != "" {
		if declared[rel.Through] {
			l.add("Through", "m."+rel.Through)
		} else {
			l.str("ThroughName", rel.Through)
		}
	}
	if len(rel.Scope) > 0 {
		keys := slices.Sorted(maps.Keys(rel.Scope))
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			v, err := goValue(rel.Scope[k])
			if err != nil {
				v = strconv.Quote(fmt.Sprint(rel.Scope[k]))
			}
			pairs = append(pairs, strconv.Quote(k)+": "+v)
		}
		l.add("Scope", "map[string]any{"+strings.Join(pairs, ", ")+"}")
	}
	l.str("OnDelete", rel.OnDelete)
	l.str("OnUpdate", rel.OnUpdate)
	l.flag("NoConstraints", rel.NoConstraints)
	return "orm.AssociationOptions" + l.String()
}

// goValue renders a scalar decoded from YAML or a tag as a Go expression.
func goValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s, nil
	}
	return "", fmt.Errorf("unsupported value %v (%T)", v, v)
}

var fileTmpl = template.Must(template.New("gen").Parse(fileTemplate))

const fileTemplate = `// Code generated by ormgraph; DO NOT EDIT.
package {{.Package}}

import (
	"github.com/mickamy/ormgraph/orm"
	{{- if .SourceImport}}
	"{{.SourceImport}}"
	{{- end}}
)

// Models holds the models declared by RegisterModels.
type Models struct {
	{{- range .Models}}
	{{.Name}} *orm.Model
	{{- end}}
}

// RegisterModels declares every model and association of this package on reg.
func RegisterModels(reg *orm.Registry) (*Models, error) {
	var (
		m   Models
		err error
	)
	{{- range .Models}}
	m.{{.Name}}, err = reg.Define("{{.Name}}", []orm.Attribute{
		{{- range .Attributes}}
		{{.}},
		{{- end}}
	}, {{.Options}})
	if err != nil {
		return nil, err
	}
	{{- end}}
	{{- range .Associations}}
	if _, err = m.{{.Source}}.{{.Method}}(m.{{.Target}}, {{.Options}}); err != nil {
		return nil, err
	}
	{{- end}}
	return &m, nil
}
`
