package orm

import (
	"fmt"
	"slices"

	"github.com/mickamy/ormgraph/internal/naming"
	"github.com/mickamy/ormgraph/scope"
)

// AssociationKind is the cardinality of an association.
type AssociationKind int

const (
	KindHasOne AssociationKind = iota + 1
	KindHasMany
	KindBelongsTo
	KindBelongsToMany
)

func (k AssociationKind) String() string {
	switch k {
	case KindHasOne:
		return "HasOne"
	case KindHasMany:
		return "HasMany"
	case KindBelongsTo:
		return "BelongsTo"
	case KindBelongsToMany:
		return "BelongsToMany"
	default:
		return "Unknown"
	}
}

// ForeignKeyOptions configures the foreign key attribute of an association.
type ForeignKeyOptions struct {
	// Name is the attribute name. Defaults to the singular of the owning
	// name followed by the referenced key, e.g. "user_id".
	Name         string
	Field        string
	NotNull      bool
	DefaultValue any
}

// AssociationOptions configures HasOne, HasMany, BelongsTo and BelongsToMany.
type AssociationOptions struct {
	// As is the alias. Defaults to the plural target model name for to-many
	// associations and the target model name for to-one associations.
	As         string
	ForeignKey ForeignKeyOptions
	// SourceKey is the attribute on the source model referenced by a
	// HasOne/HasMany foreign key. Defaults to the source primary key.
	SourceKey string
	// TargetKey is the attribute on the target model referenced by a
	// BelongsTo/BelongsToMany foreign key. Defaults to the target primary key.
	TargetKey string
	// OtherKey is the junction attribute pointing at the target of a
	// BelongsToMany.
	OtherKey string
	// Through is the junction model of a BelongsToMany. When nil a junction
	// named ThroughName is defined on demand.
	Through     *Model
	ThroughName string
	// Scope restricts and stamps the target rows: every read filters on
	// these values and every write through the association sets them.
	Scope map[string]any
	// OnDelete and OnUpdate default to SET NULL for nullable foreign keys
	// and CASCADE for NOT NULL ones.
	OnDelete string
	OnUpdate string
	// NoConstraints keeps the foreign key attribute but emits no database
	// constraint for it.
	NoConstraints bool
	// KeyType overrides the foreign key type, which otherwise follows the
	// referenced key.
	KeyType DataType
}

// Association is a declared relationship from a source model to a target.
type Association struct {
	kind      AssociationKind
	source    *Model
	target    *Model
	as        string
	fk        string
	sourceKey string
	targetKey string
	otherKey  string
	through   *Model
	scope     map[string]any
}

func (a *Association) Kind() AssociationKind { return a.kind }
func (a *Association) Source() *Model        { return a.source }
func (a *Association) Target() *Model        { return a.target }
func (a *Association) As() string            { return a.as }

// ForeignKey returns the foreign key attribute name. It lives on the
// target for HasOne/HasMany, on the source for BelongsTo and on the
// junction for BelongsToMany.
func (a *Association) ForeignKey() string { return a.fk }

// SourceKey returns the source attribute referenced by the foreign key
// (HasOne, HasMany, BelongsToMany).
func (a *Association) SourceKey() string { return a.sourceKey }

// TargetKey returns the target attribute referenced by the foreign key
// (BelongsTo) or by the junction's other key (BelongsToMany).
func (a *Association) TargetKey() string { return a.targetKey }

// OtherKey returns the junction attribute pointing at the target.
func (a *Association) OtherKey() string { return a.otherKey }

// Through returns the junction model of a BelongsToMany, or nil.
func (a *Association) Through() *Model { return a.through }

// Scope returns a copy of the association scope.
func (a *Association) Scope() map[string]any {
	if a.scope == nil {
		return nil
	}
	out := make(map[string]any, len(a.scope))
	for k, v := range a.scope {
		out[k] = v
	}
	return out
}

// IsMultiple reports whether the association yields a list.
func (a *Association) IsMultiple() bool {
	return a.kind == KindHasMany || a.kind == KindBelongsToMany
}

// IsSingle reports whether the association yields at most one instance.
func (a *Association) IsSingle() bool { return !a.IsMultiple() }

// parentKey is the attribute on the source whose values key a batch load.
func (a *Association) parentKey() string {
	if a.kind == KindBelongsTo {
		return a.fk
	}
	return a.sourceKey
}

// childKey is the attribute on the target matched against parent keys.
// For BelongsToMany the match happens on the junction instead.
func (a *Association) childKey() string {
	switch a.kind {
	case KindBelongsTo, KindBelongsToMany:
		return a.targetKey
	default:
		return a.fk
	}
}

func (a *Association) scopeConds() []scope.Cond {
	if len(a.scope) == 0 {
		return nil
	}
	return scope.Conds(a.scope)
}

// HasOne declares that each m owns at most one target, with the foreign
// key on the target.
func (m *Model) HasOne(target *Model, opts AssociationOptions) (*Association, error) {
	return m.associate(KindHasOne, target, opts)
}

// HasMany declares that each m owns any number of targets, with the
// foreign key on the target.
func (m *Model) HasMany(target *Model, opts AssociationOptions) (*Association, error) {
	return m.associate(KindHasMany, target, opts)
}

// BelongsTo declares that each m references at most one target, with the
// foreign key on m.
func (m *Model) BelongsTo(target *Model, opts AssociationOptions) (*Association, error) {
	return m.associate(KindBelongsTo, target, opts)
}

// BelongsToMany declares a many-to-many relationship through a junction
// model holding one foreign key to each side.
func (m *Model) BelongsToMany(target *Model, opts AssociationOptions) (*Association, error) {
	return m.associate(KindBelongsToMany, target, opts)
}

func (m *Model) associate(kind AssociationKind, target *Model, opts AssociationOptions) (*Association, error) {
	if target == nil {
		return nil, &AssociationConfigurationError{Model: m.name, Alias: opts.As, Reason: "target model is nil"}
	}
	if m.registry != target.registry {
		return nil, &AssociationConfigurationError{Model: m.name, Alias: opts.As, Reason: "target model belongs to another registry"}
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	a := &Association{kind: kind, source: m, target: target, as: opts.As}
	if a.as == "" {
		a.as = target.name
		if a.IsMultiple() {
			a.as = naming.Plural(target.name)
		}
	}
	fail := func(format string, args ...any) error {
		return &AssociationConfigurationError{Model: m.name, Alias: a.as, Reason: fmt.Sprintf(format, args...)}
	}

	if _, dup := m.assocs[a.as]; dup {
		return nil, fail("alias already used by another association of %s", m.name)
	}
	if _, clash := m.byName[a.as]; clash {
		return nil, fail("alias collides with attribute %q of %s", a.as, m.name)
	}

	for attr := range opts.Scope {
		if _, ok := target.byName[attr]; !ok {
			return nil, fail("scope attribute %q is not defined on %s", attr, target.name)
		}
	}
	if len(opts.Scope) > 0 {
		a.scope = make(map[string]any, len(opts.Scope))
		for k, v := range opts.Scope {
			a.scope[k] = normalizeValue(v)
		}
	}

	var err error
	switch kind {
	case KindHasOne, KindHasMany:
		err = a.declareHas(opts, fail)
	case KindBelongsTo:
		err = a.declareBelongsTo(opts, fail)
	case KindBelongsToMany:
		err = a.declareBelongsToMany(opts, fail)
	}
	if err != nil {
		return nil, err
	}

	m.assocs[a.as] = a
	m.assocOrder = append(m.assocOrder, a)
	return a, nil
}

func (a *Association) declareHas(opts AssociationOptions, fail func(string, ...any) error) error {
	a.sourceKey = opts.SourceKey
	if a.sourceKey == "" {
		a.sourceKey = a.source.pk.Name
	}
	if !a.source.isUnique(a.sourceKey) {
		if _, ok := a.source.byName[a.sourceKey]; !ok {
			return fail("source key %q is not defined on %s", a.sourceKey, a.source.name)
		}
		return fail("source key %q of %s is not unique", a.sourceKey, a.source.name)
	}
	a.fk = opts.ForeignKey.Name
	if a.fk == "" {
		a.fk = naming.ForeignKey(a.source.name, a.sourceKey)
	}
	return ensureForeignKey(a, a.target, a.fk, a.source, a.sourceKey, opts, fail)
}

func (a *Association) declareBelongsTo(opts AssociationOptions, fail func(string, ...any) error) error {
	a.targetKey = opts.TargetKey
	if a.targetKey == "" {
		a.targetKey = a.target.pk.Name
	}
	if !a.target.isUnique(a.targetKey) {
		if _, ok := a.target.byName[a.targetKey]; !ok {
			return fail("target key %q is not defined on %s", a.targetKey, a.target.name)
		}
		return fail("target key %q of %s is not unique", a.targetKey, a.target.name)
	}
	a.fk = opts.ForeignKey.Name
	if a.fk == "" {
		a.fk = naming.ForeignKey(a.as, a.targetKey)
	}
	if a.fk == a.as {
		return fail("foreign key %q collides with the alias", a.fk)
	}
	return ensureForeignKey(a, a.source, a.fk, a.target, a.targetKey, opts, fail)
}

func (a *Association) declareBelongsToMany(opts AssociationOptions, fail func(string, ...any) error) error {
	a.sourceKey = opts.SourceKey
	if a.sourceKey == "" {
		a.sourceKey = a.source.pk.Name
	}
	a.targetKey = opts.TargetKey
	if a.targetKey == "" {
		a.targetKey = a.target.pk.Name
	}
	if !a.source.isUnique(a.sourceKey) {
		return fail("source key %q of %s is not unique", a.sourceKey, a.source.name)
	}
	if !a.target.isUnique(a.targetKey) {
		return fail("target key %q of %s is not unique", a.targetKey, a.target.name)
	}

	a.fk = opts.ForeignKey.Name
	if a.fk == "" {
		a.fk = naming.ForeignKey(a.source.name, a.sourceKey)
	}
	a.otherKey = opts.OtherKey
	if a.otherKey == "" {
		a.otherKey = naming.ForeignKey(a.target.name, a.targetKey)
	}
	if a.fk == a.otherKey {
		return fail("foreign key and other key are both %q; set OtherKey", a.fk)
	}

	// Both keys are checked before the junction or either key is added,
	// so a refused declaration leaves the registry as it was.
	a.through = opts.Through
	name := ""
	if a.through == nil {
		name = opts.ThroughName
		if name == "" {
			pair := []string{a.source.name, a.target.name}
			slices.Sort(pair)
			name = pair[0] + pair[1]
		}
		a.through = a.source.registry.byName[name]
	} else if a.through.registry != a.source.registry {
		return fail("junction model belongs to another registry")
	}
	if a.through != nil {
		if err := checkForeignKey(a.through, a.fk, a.source, a.sourceKey, fail); err != nil {
			return err
		}
		if err := checkForeignKey(a.through, a.otherKey, a.target, a.targetKey, fail); err != nil {
			return err
		}
	} else {
		for _, k := range []string{a.fk, a.otherKey} {
			if k == defaultPrimaryKey {
				return fail("foreign key %q is the primary key of %s", k, name)
			}
		}
		j, err := a.source.registry.define(name, nil, ModelOptions{})
		if err != nil {
			return err
		}
		a.through = j
	}

	junctionOpts := opts
	junctionOpts.ForeignKey = ForeignKeyOptions{Name: a.fk, Field: opts.ForeignKey.Field, NotNull: true}
	junctionOpts.KeyType = ""
	if junctionOpts.OnDelete == "" {
		junctionOpts.OnDelete = Cascade
	}
	if junctionOpts.OnUpdate == "" {
		junctionOpts.OnUpdate = Cascade
	}
	if err := ensureForeignKey(a, a.through, a.fk, a.source, a.sourceKey, junctionOpts, fail); err != nil {
		return err
	}
	junctionOpts.ForeignKey = ForeignKeyOptions{Name: a.otherKey, NotNull: true}
	if err := ensureForeignKey(a, a.through, a.otherKey, a.target, a.targetKey, junctionOpts, fail); err != nil {
		return err
	}

	pairFields := []string{a.fk, a.otherKey}
	for _, idx := range a.through.opts.Indexes {
		if idx.Unique && len(idx.Fields) == 2 &&
			slices.Contains(idx.Fields, a.fk) && slices.Contains(idx.Fields, a.otherKey) {
			return nil
		}
	}
	a.through.opts.Indexes = append(a.through.opts.Indexes, Index{
		Name:   a.through.table + "_" + a.fk + "_" + a.otherKey + "_unique",
		Fields: pairFields,
		Unique: true,
	})
	return nil
}

// ensureForeignKey adds the foreign key attribute to owner, or merges the
// options into an attribute that is already there. An attribute created
// by another association may be shared only when both reference the same
// key, e.g. a HasMany and its inverse BelongsTo.
func ensureForeignKey(a *Association, owner *Model, name string, ref *Model, refKey string, opts AssociationOptions, fail func(string, ...any) error) error {
	if err := checkForeignKey(owner, name, ref, refKey, fail); err != nil {
		return err
	}
	refAttr := ref.byName[refKey]
	fkOpts := opts.ForeignKey

	attr, exists := owner.byName[name]
	if exists {
		if fkOpts.NotNull {
			attr.NotNull = true
		}
		if attr.DefaultValue == nil && fkOpts.DefaultValue != nil {
			attr.DefaultValue = fkOpts.DefaultValue
		}
		if opts.KeyType != "" {
			attr.Type = opts.KeyType
		}
	} else {
		typ := opts.KeyType
		if typ == "" {
			typ = refAttr.Type
		}
		attr = &Attribute{
			Name:         name,
			Field:        fkOpts.Field,
			Type:         typ,
			NotNull:      fkOpts.NotNull,
			DefaultValue: fkOpts.DefaultValue,
		}
		owner.addAttribute(attr)
	}
	if attr.owner == nil {
		attr.owner, attr.refModel, attr.refKey = a, ref, refKey
	}

	if opts.NoConstraints {
		if attr.owner == a {
			attr.References = nil
		}
		return nil
	}
	if attr.References != nil && opts.OnDelete == "" && opts.OnUpdate == "" {
		return nil
	}
	action := SetNull
	if attr.NotNull {
		action = Cascade
	}
	onDelete, onUpdate := opts.OnDelete, opts.OnUpdate
	if onDelete == "" {
		onDelete = action
	}
	if onUpdate == "" {
		onUpdate = action
	}
	attr.References = &Reference{Model: ref, Key: refKey, OnDelete: onDelete, OnUpdate: onUpdate}
	return nil
}

// checkForeignKey reports why name cannot serve on owner as a foreign key
// to ref.refKey.
func checkForeignKey(owner *Model, name string, ref *Model, refKey string, fail func(string, ...any) error) error {
	if _, ok := ref.byName[refKey]; !ok {
		return fail("referenced key %q is not defined on %s", refKey, ref.name)
	}
	attr, exists := owner.byName[name]
	if !exists {
		return nil
	}
	if attr.PrimaryKey {
		return fail("foreign key %q is the primary key of %s", name, owner.name)
	}
	if attr.owner != nil && (attr.refModel != ref || attr.refKey != refKey) {
		return fail("foreign key %q on %s already references %s.%s for association %q",
			name, owner.name, attr.refModel.name, attr.refKey, attr.owner.as)
	}
	return nil
}

// Accessors lists the accessor method names derived from an alias, e.g.
// getTasks/addTask/addTasks for "tasks". Empty fields do not apply to
// the association kind.
type Accessors struct {
	Get        string
	Set        string
	Add        string
	AddMany    string
	Remove     string
	RemoveMany string
	Has        string
	HasAll     string
	Count      string
	Create     string
}

// Accessors returns the accessor names of a.
func (a *Association) Accessors() Accessors {
	plural := naming.UpperFirst(a.as)
	if a.IsSingle() {
		return Accessors{Get: "get" + plural, Set: "set" + plural, Create: "create" + plural}
	}
	singular := naming.UpperFirst(naming.Singular(a.as))
	return Accessors{
		Get:        "get" + plural,
		Set:        "set" + plural,
		Add:        "add" + singular,
		AddMany:    "add" + plural,
		Remove:     "remove" + singular,
		RemoveMany: "remove" + plural,
		Has:        "has" + singular,
		HasAll:     "has" + plural,
		Count:      "count" + plural,
		Create:     "create" + singular,
	}
}
