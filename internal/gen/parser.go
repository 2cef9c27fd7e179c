package gen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	"github.com/mickamy/ormgraph/internal/naming"
)

// Parse reads the Go file at filePath and returns a Schema holding one
// model per struct with at least one column field. Struct fields become
// attributes unless tagged db:"-"; fields with a rel tag become
// associations:
//
//	ID     int    `db:"id,primaryKey"`
//	Title  string `db:"title,type:TEXT"`
//	UserID *int   // column user_id, nullable
//	User   *User  `rel:"belongs_to,foreign_key:user_id"`
//	Tags   []Tag  `rel:"belongs_to_many,through:TaskTag"`
//
// CreatedAt and UpdatedAt time.Time fields switch on timestamps instead of
// declaring attributes.
func Parse(filePath string) (*Schema, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	s := &Schema{Package: file.Name.Name}
	var perr error
	ast.Inspect(file, func(n ast.Node) bool {
		if perr != nil {
			return false
		}
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return true
		}
		m, err := parseStruct(ts.Name.Name, st)
		if err != nil {
			perr = fmt.Errorf("%s: %w", ts.Name.Name, err)
			return false
		}
		if len(m.Attributes) > 0 {
			s.Models = append(s.Models, m)
		}
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return s, nil
}

func parseStruct(name string, st *ast.StructType) (Model, error) {
	m := Model{Name: name, GoType: name}
	var created, updated bool
	for _, field := range st.Fields.List {
		// Embedded and unexported fields are not columns.
		if len(field.Names) == 0 || !field.Names[0].IsExported() {
			continue
		}
		fieldName := field.Names[0].Name
		tag := reflect.StructTag("")
		if field.Tag != nil {
			tag = reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		}

		if rel, ok := tag.Lookup("rel"); ok {
			a, err := parseRel(fieldName, field.Type, rel)
			if err != nil {
				return Model{}, err
			}
			m.Relations = append(m.Relations, a)
			continue
		}

		attr, skip, err := parseColumn(fieldName, field.Type, tag.Get("db"))
		if err != nil {
			return Model{}, err
		}
		if skip {
			continue
		}
		switch {
		case attr.Name == "created_at" && attr.Type == "DATE":
			created = true
			continue
		case attr.Name == "updated_at" && attr.Type == "DATE":
			updated = true
			continue
		}
		m.Attributes = append(m.Attributes, attr)
	}
	if created != updated {
		return Model{}, errors.New("created_at and updated_at must be declared together")
	}
	m.Timestamps = created
	return m, nil
}

func parseColumn(fieldName string, expr ast.Expr, dbTag string) (Attribute, bool, error) {
	if dbTag == "-" {
		return Attribute{}, true, nil
	}
	goType := typeToString(expr)
	nullable := strings.HasPrefix(goType, "*")
	attr := Attribute{
		Name:       naming.CamelToSnake(fieldName),
		Type:       dataType(strings.TrimPrefix(goType, "*")),
		PrimaryKey: fieldName == "ID",
	}

	parts := strings.Split(dbTag, ",")
	if parts[0] != "" {
		attr.Name = parts[0]
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(opt, ":")
		switch key {
		case "primaryKey":
			attr.PrimaryKey = true
		case "unique":
			attr.Unique = true
		case "null":
			nullable = true
		case "autoIncrement":
			attr.AutoIncrement = true
		case "type":
			attr.Type = value
		case "default":
			attr.Default = value
		default:
			return Attribute{}, false, fmt.Errorf("field %s: unknown db option %q", fieldName, key)
		}
	}
	if attr.PrimaryKey {
		if attr.Type == "INTEGER" || attr.Type == "BIGINT" {
			attr.AutoIncrement = true
		}
	} else {
		attr.NotNull = !nullable
	}
	return attr, false, nil
}

func parseRel(fieldName string, expr ast.Expr, tag string) (Association, error) {
	parts := strings.Split(tag, ",")
	a := Association{
		Kind:   parts[0],
		Target: targetName(expr),
		As:     naming.LowerFirst(fieldName),
	}
	if a.Kind == "many_to_many" {
		a.Kind = BelongsToMany
	}
	switch a.Kind {
	case HasOne, HasMany, BelongsTo, BelongsToMany:
	default:
		return Association{}, fmt.Errorf("field %s: unknown relation %q", fieldName, parts[0])
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(opt, ":")
		switch key {
		case "foreign_key":
			a.ForeignKey = value
		case "as":
			a.As = value
		case "source_key":
			a.SourceKey = value
		case "target_key":
			a.TargetKey = value
		case "other_key", "references":
			a.OtherKey = value
		case "through", "join_table":
			a.Through = value
		case "on_delete":
			a.OnDelete = strings.ToUpper(strings.ReplaceAll(value, "_", " "))
		case "on_update":
			a.OnUpdate = strings.ToUpper(strings.ReplaceAll(value, "_", " "))
		case "not_null":
			a.NotNull = true
		case "no_constraints":
			a.NoConstraints = true
		default:
			return Association{}, fmt.Errorf("field %s: unknown rel option %q", fieldName, key)
		}
	}
	return a, nil
}

// targetName strips slices, pointers and package qualifiers from the
// field type: []*model.Task → Task.
func targetName(expr ast.Expr) string {
	t := typeToString(expr)
	t = strings.TrimLeft(t, "[]*")
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func dataType(goType string) string {
	switch goType {
	case "int", "int8", "int16", "int32", "uint", "uint8", "uint16", "uint32":
		return "INTEGER"
	case "int64", "uint64":
		return "BIGINT"
	case "bool":
		return "BOOLEAN"
	case "float32", "float64":
		return "FLOAT"
	case "time.Time":
		return "DATE"
	case "uuid.UUID":
		return "UUID"
	}
	return "STRING"
}

func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", typeToString(t.Len), typeToString(t.Elt))
	default:
		return fmt.Sprintf("%T", expr)
	}
}
