package orm

import (
	"context"
	"database/sql/driver"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Values maps attribute names to values.
type Values map[string]any

// DefaultFunc computes a default value when a row is inserted without one.
type DefaultFunc func(ctx context.Context) any

// UUIDV4 is a DefaultValue generating a random UUID string.
var UUIDV4 DefaultFunc = func(context.Context) any { return uuid.NewString() }

// Now is a DefaultValue yielding the current time from the context Clock.
var Now DefaultFunc = func(ctx context.Context) any { return now(ctx) }

// Instance is one row of a model together with the related rows loaded
// for it.
type Instance struct {
	model     *Model
	values    Values
	related   map[string]any
	persisted bool
}

// Build returns an unsaved instance of m. Unknown keys are ignored;
// literal defaults are applied for attributes not present in values.
func (m *Model) Build(values Values) *Instance {
	inst := &Instance{model: m, values: make(Values, len(m.attrs))}
	for _, a := range m.attrs {
		if v, ok := values[a.Name]; ok {
			inst.values[a.Name] = normalizeFor(a, v)
			continue
		}
		if a.DefaultValue == nil {
			continue
		}
		if _, gen := a.DefaultValue.(DefaultFunc); gen {
			continue
		}
		inst.values[a.Name] = normalizeFor(a, a.DefaultValue)
	}
	return inst
}

func (m *Model) hydrate(row Row, prefix string, attrs []string) *Instance {
	inst := &Instance{model: m, values: make(Values, len(attrs)), persisted: true}
	for _, name := range attrs {
		v, ok := row[prefix+name]
		if !ok {
			continue
		}
		if a, ok := m.byName[name]; ok {
			v = normalizeFor(a, v)
		}
		inst.values[name] = v
	}
	return inst
}

// Model returns the model the instance belongs to.
func (i *Instance) Model() *Model { return i.model }

// Get returns the value of attr, or nil.
func (i *Instance) Get(attr string) any { return i.values[attr] }

// Set assigns attr. The change is persisted by Model.Update.
func (i *Instance) Set(attr string, v any) {
	if a, ok := i.model.byName[attr]; ok {
		v = normalizeFor(a, v)
	}
	i.values[attr] = v
}

// Has reports whether attr was loaded or assigned.
func (i *Instance) Has(attr string) bool {
	_, ok := i.values[attr]
	return ok
}

// Values returns a copy of the attribute values.
func (i *Instance) Values() Values { return maps.Clone(i.values) }

// PK returns the primary key value, or nil for an unsaved instance
// without an explicit key.
func (i *Instance) PK() any { return i.values[i.model.pk.Name] }

// IsNewRecord reports whether the instance has not been inserted or loaded.
func (i *Instance) IsNewRecord() bool { return !i.persisted }

// Related returns what was loaded for alias: *Instance (possibly nil)
// for to-one associations, []*Instance for to-many.
func (i *Instance) Related(alias string) (any, bool) {
	v, ok := i.related[alias]
	return v, ok
}

// One returns the loaded to-one relation for alias, or nil.
func (i *Instance) One(alias string) *Instance {
	v, _ := i.related[alias].(*Instance)
	return v
}

// Many returns the loaded to-many relation for alias. A loaded relation
// with no matches is an empty, non-nil slice.
func (i *Instance) Many(alias string) []*Instance {
	v, _ := i.related[alias].([]*Instance)
	return v
}

// Loaded reports whether alias was eager loaded or assigned.
func (i *Instance) Loaded(alias string) bool {
	_, ok := i.related[alias]
	return ok
}

// Map returns the values with loaded relations nested under their alias.
func (i *Instance) Map() map[string]any {
	out := make(map[string]any, len(i.values)+len(i.related))
	maps.Copy(out, i.values)
	for alias, rel := range i.related {
		switch r := rel.(type) {
		case *Instance:
			if r == nil {
				out[alias] = nil
			} else {
				out[alias] = r.Map()
			}
		case []*Instance:
			list := make([]map[string]any, len(r))
			for k, c := range r {
				list[k] = c.Map()
			}
			out[alias] = list
		}
	}
	return out
}

func (i *Instance) setOne(alias string, v *Instance) {
	if i.related == nil {
		i.related = make(map[string]any)
	}
	i.related[alias] = v
}

func (i *Instance) setMany(alias string, v []*Instance) {
	if i.related == nil {
		i.related = make(map[string]any)
	}
	if v == nil {
		v = []*Instance{}
	}
	i.related[alias] = v
}

func (i *Instance) appendMany(alias string, v *Instance) {
	i.setMany(alias, append(i.Many(alias), v))
}

// normalizeValue converts driver and caller values into the canonical
// forms used for comparison and map keys: signed integers become int64,
// byte slices become strings and driver.Valuer values are unwrapped.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, int64, string, bool, float64, time.Time:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x) //nolint:gosec // keys never exceed int64
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // keys never exceed int64
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case *Instance:
		return x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return v
		}
		return normalizeValue(dv)
	}
	return v
}

func normalizeFor(a *Attribute, v any) any {
	v = normalizeValue(v)
	// MySQL's text protocol returns every column as text.
	switch a.Type {
	case Integer, BigInt:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case Boolean:
		switch x := v.(type) {
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case Float:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	}
	return v
}
