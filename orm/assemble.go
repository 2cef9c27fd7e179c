package orm

import (
	"slices"
	"strconv"
)

// assembled is the instance graph built from the rows of one query.
type assembled struct {
	roots []*Instance
	// groups holds the roots by parent key for separate queries. Read it
	// through group.
	groups map[any][]*Instance
	// collected lists, per joined node, the instances created for it, so
	// separate includes below it can batch over them.
	collected map[*planNode][]*Instance
}

type seenKey struct {
	parent *Instance
	node   *planNode
	group  any
	pk     any
}

// Assemble builds root instances from rows returned by p.Query. Rows
// repeated by to-many joins are merged: roots are deduplicated by primary
// key in first-seen order and every to-many include is present, empty
// when nothing matched. Separate includes are not loaded.
func (p *Plan) Assemble(rows []Row) []*Instance {
	return assemble(rows, p.root, "", nil).roots
}

func assemble(rows []Row, root *planNode, groupLabel string, groupAttr *Attribute) *assembled {
	res := &assembled{
		groups:    make(map[any][]*Instance),
		collected: make(map[*planNode][]*Instance),
	}
	seen := make(map[seenKey]*Instance)
	pkName := root.model.pk.Name
	hasPK := slices.Contains(root.attrs, pkName)

	for _, row := range rows {
		var group any
		if groupLabel != "" {
			group = row[groupLabel]
			if groupAttr != nil {
				group = normalizeFor(groupAttr, group)
			}
		}

		var inst *Instance
		if hasPK {
			key := seenKey{node: root, group: group, pk: normalizeFor(root.model.pk, row[pkName])}
			inst = seen[key]
			if inst == nil {
				inst = root.model.hydrate(row, "", root.attrs)
				seen[key] = inst
				res.add(root, inst, group, groupLabel != "")
			}
		} else {
			inst = root.model.hydrate(row, "", root.attrs)
			res.add(root, inst, group, groupLabel != "")
		}
		assembleJoined(res, seen, inst, root, row)
	}
	return res
}

func (res *assembled) add(root *planNode, inst *Instance, group any, grouped bool) {
	res.roots = append(res.roots, inst)
	res.collected[root] = append(res.collected[root], inst)
	if grouped {
		k := groupKey(group)
		res.groups[k] = append(res.groups[k], inst)
	}
}

// group returns the roots grouped under the parent key k.
func (res *assembled) group(k any) []*Instance {
	if k == nil {
		return nil
	}
	return res.groups[groupKey(k)]
}

// groupKey is the form both sides of a separate load are matched in. A
// foreign key declared with another type than the key it references
// comes back as text while the parent holds an integer.
func groupKey(v any) any {
	if n, ok := normalizeValue(v).(int64); ok {
		return strconv.FormatInt(n, 10)
	}
	return normalizeValue(v)
}

func assembleJoined(res *assembled, seen map[seenKey]*Instance, parent *Instance, node *planNode, row Row) {
	for _, child := range node.joined {
		alias := child.assoc.as
		multiple := child.assoc.IsMultiple()
		if !parent.Loaded(alias) {
			if multiple {
				parent.setMany(alias, nil)
			} else {
				parent.setOne(alias, nil)
			}
		}

		pkv := row[child.prefix+child.model.pk.Name]
		if pkv == nil {
			continue
		}
		key := seenKey{parent: parent, node: child, pk: normalizeFor(child.model.pk, pkv)}
		inst := seen[key]
		if inst == nil {
			inst = child.model.hydrate(row, child.prefix, child.attrs)
			seen[key] = inst
			res.collected[child] = append(res.collected[child], inst)
			if multiple {
				parent.appendMany(alias, inst)
			} else {
				parent.setOne(alias, inst)
			}
		}
		assembleJoined(res, seen, inst, child, row)
	}
}
