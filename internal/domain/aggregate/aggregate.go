// Package aggregate models the Omni Record: the singleton denormalized view
// of items, tags, reference entities and restriction types.
package aggregate

import "slices"

// List names one list attribute of the aggregate.
type List string

// Aggregate list attributes, in their stored names.
const (
	ListItems            List = "items"
	ListTags             List = "tags"
	ListEntities         List = "entities"
	ListRestrictionTypes List = "restrictionTypes"
)

// VersionField is the stored name of the optimistic-concurrency token.
const VersionField = "version"

// AllLists lists every list attribute in stored order.
func AllLists() []List {
	return []List{ListItems, ListTags, ListEntities, ListRestrictionTypes}
}

// IsValid reports whether l names a known list.
func (l List) IsValid() bool {
	return slices.Contains(AllLists(), l)
}

// Item is the aggregate's summary of one catalog item.
type Item struct {
	ID     string
	Title  string
	Author string
	Count  int64
}

// Entity is the aggregate's summary of one reference entity.
type Entity struct {
	ID    string
	Name  string
	Score int64
}

// RestrictionType is the aggregate's summary of one restriction type.
type RestrictionType struct {
	ID     string
	Name   string
	Weight int64
}

// Aggregate is the Omni Record snapshot (immutable value object).
// Mutating methods return a new value and never touch the receiver's slices.
type Aggregate struct {
	items            []Item
	tags             []string
	entities         []Entity
	restrictionTypes []RestrictionType
	version          int64
}

// Empty returns the aggregate assumed when none is stored.
func Empty() Aggregate { return Aggregate{} }

// Reconstruct creates an Aggregate from stored state.
func Reconstruct(
	items []Item, tags []string, entities []Entity,
	restrictionTypes []RestrictionType, version int64,
) Aggregate {
	return Aggregate{
		items:            items,
		tags:             tags,
		entities:         entities,
		restrictionTypes: restrictionTypes,
		version:          version,
	}
}

// Items returns the item summaries. Callers must not modify the slice.
func (a Aggregate) Items() []Item { return a.items }

// Tags returns the tag values. Callers must not modify the slice.
func (a Aggregate) Tags() []string { return a.tags }

// Entities returns the reference entity summaries. Callers must not modify the slice.
func (a Aggregate) Entities() []Entity { return a.entities }

// RestrictionTypes returns the restriction type summaries. Callers must not modify the slice.
func (a Aggregate) RestrictionTypes() []RestrictionType { return a.restrictionTypes }

// Version returns the optimistic-concurrency token; 0 means never written.
func (a Aggregate) Version() int64 { return a.version }

// ItemIDs returns the set of item identifiers present.
func (a Aggregate) ItemIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(a.items))
	for _, it := range a.items {
		ids[it.ID] = struct{}{}
	}
	return ids
}

// TagSet returns the set of tag values present.
func (a Aggregate) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(a.tags))
	for _, t := range a.tags {
		set[t] = struct{}{}
	}
	return set
}

// EntityIndex returns the position of the entity with id, or -1.
func (a Aggregate) EntityIndex(id string) int {
	return slices.IndexFunc(a.entities, func(e Entity) bool { return e.ID == id })
}

// Weight returns the weight of the restriction type with id.
func (a Aggregate) Weight(typeID string) (int64, bool) {
	i := slices.IndexFunc(a.restrictionTypes, func(rt RestrictionType) bool { return rt.ID == typeID })
	if i < 0 {
		return 0, false
	}
	return a.restrictionTypes[i].Weight, true
}

// WithVersion returns a copy carrying version v.
func (a Aggregate) WithVersion(v int64) Aggregate {
	a.version = v
	return a
}

// Apply returns the aggregate after m, with the version bumped by one.
// Increments whose position no longer holds the expected entity are ignored.
func (a Aggregate) Apply(m Mutation) Aggregate {
	switch m.Kind {
	case MutationAppend:
		switch m.List {
		case ListItems:
			a.items = append(slices.Clip(a.items), m.Items...)
		case ListTags:
			a.tags = append(slices.Clip(a.tags), m.Tags...)
		}
	case MutationReplace:
		switch m.List {
		case ListItems:
			a.items = slices.Clone(m.Items)
		case ListTags:
			a.tags = slices.Clone(m.Tags)
		}
	case MutationIncrement:
		entities := slices.Clone(a.entities)
		for _, d := range m.Scores {
			if d.Index < 0 || d.Index >= len(entities) || entities[d.Index].ID != d.EntityID {
				continue
			}
			entities[d.Index].Score += d.Delta
		}
		a.entities = entities
	}
	a.version++
	return a
}
