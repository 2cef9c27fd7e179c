package orm

// TableNamer can be implemented by model structs to override the
// derived table name.
type TableNamer interface {
	TableName() string
}

// SchemaNamer can be implemented by model structs to place the table in
// a schema.
type SchemaNamer interface {
	TableSchema() string
}

// ResolveTableName returns the table name declared by T through
// TableNamer (value or pointer receiver), or fallback.
func ResolveTableName[T any](fallback string) string {
	var zero T
	if tn, ok := any(&zero).(TableNamer); ok {
		return tn.TableName()
	}
	return fallback
}

// OptionsFor returns opts with the table name and schema replaced by the
// ones T declares, if any. Generated RegisterModels functions wrap the
// options of every struct-backed model with it.
func OptionsFor[T any](opts ModelOptions) ModelOptions {
	opts.TableName = ResolveTableName[T](opts.TableName)
	var zero T
	if sn, ok := any(&zero).(SchemaNamer); ok {
		opts.Schema = sn.TableSchema()
	}
	return opts
}
