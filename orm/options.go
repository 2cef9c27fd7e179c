package orm

import (
	"slices"

	"github.com/mickamy/ormgraph/scope"
)

// FindOptions describes a read on a model: filtering, ordering, paging,
// attribute selection, grouping and the tree of associations to load.
type FindOptions struct {
	Where      []scope.Cond
	Order      []scope.Order
	Limit      *int
	Offset     *int
	Attributes []string
	Group      []string
	Include    []*Include
}

// Include requests an association to be loaded alongside its parent.
//
// Where filters the included rows and implies Required unless the include
// is Separate. Limit and Offset apply per parent and force Separate on
// to-many associations.
type Include struct {
	// Association names the association directly; As looks it up by alias
	// on the including model. One of them must be set.
	Association *Association
	As          string

	Where      []scope.Cond
	Required   bool
	Order      []scope.Order
	Limit      *int
	Offset     *int
	Separate   bool
	Attributes []string
	Include    []*Include
}

// Ptr returns a pointer to v, for Limit and Offset.
func Ptr[T any](v T) *T { return &v }

// Preload is shorthand for an Include by alias with nested includes.
func Preload(as string, nested ...*Include) *Include {
	return &Include{As: as, Include: nested}
}

var _ scope.Applier = (*FindOptions)(nil)

func (o *FindOptions) ApplyWhere(c scope.Cond)    { o.Where = append(o.Where, c) }
func (o *FindOptions) ApplyOrder(ord scope.Order) { o.Order = append(o.Order, ord) }
func (o *FindOptions) ApplyLimit(n int)           { o.Limit = &n }
func (o *FindOptions) ApplyOffset(n int)          { o.Offset = &n }
func (o *FindOptions) ApplySelect(attrs []string) { o.Attributes = append(o.Attributes, attrs...) }
func (o *FindOptions) ApplyGroup(attrs []string)  { o.Group = append(o.Group, attrs...) }

// Scopes applies scopes to o and returns o.
func (o *FindOptions) Scopes(scopes ...scope.Scope) *FindOptions {
	for _, s := range scopes {
		s.Apply(o)
	}
	return o
}

func (o *FindOptions) clone() *FindOptions {
	if o == nil {
		return &FindOptions{}
	}
	c := *o
	c.Where = slices.Clone(o.Where)
	c.Order = slices.Clone(o.Order)
	c.Attributes = slices.Clone(o.Attributes)
	c.Group = slices.Clone(o.Group)
	c.Include = slices.Clone(o.Include)
	return &c
}

// CreateOptions configures Create.
type CreateOptions struct {
	// Fields restricts the inserted attributes. Attributes maintained by
	// the association (foreign key, scope) are always written.
	Fields []string
	// Include lists associations whose nested values are created in the
	// same transaction.
	Include []*Include
}

// SetOptions configures association setters.
type SetOptions struct {
	// OmitNull turns Set with nil targets into a no-op instead of clearing.
	OmitNull bool
}

// SyncOptions configures Sync.
type SyncOptions struct {
	// Force drops the table before creating it.
	Force bool
}

// resolveInclude finds the association an include refers to.
func resolveInclude(parent *Model, inc *Include) (*Association, error) {
	if inc == nil {
		return nil, &EagerLoadingError{Model: parent.name, Alias: "<nil>"}
	}
	if inc.Association != nil {
		if inc.Association.source != parent {
			return nil, &EagerLoadingError{Model: parent.name, Alias: inc.Association.as}
		}
		return inc.Association, nil
	}
	a, ok := parent.assocs[inc.As]
	if !ok {
		return nil, &EagerLoadingError{Model: parent.name, Alias: inc.As}
	}
	return a, nil
}
