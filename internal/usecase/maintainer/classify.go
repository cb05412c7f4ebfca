package maintainer

import (
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
	"github.com/kailas-cloud/omniview/internal/domain/change"
	"github.com/kailas-cloud/omniview/internal/domain/layout"
)

// Kind names a classified change category.
type Kind string

// Classified kinds.
const (
	KindNewItem            Kind = "new_item"
	KindNewTag             Kind = "new_tag"
	KindRemovedItem        Kind = "removed_item"
	KindRemovedTag         Kind = "removed_tag"
	KindNewRestriction     Kind = "new_restriction"
	KindRemovedRestriction Kind = "removed_restriction"
)

// ItemEvent carries the item attributes the aggregate keeps.
type ItemEvent struct {
	ID     string
	Title  string
	Author string
}

// RestrictionEvent links a reference entity to a restriction type.
type RestrictionEvent struct {
	EntityID string
	TypeID   string
}

// Classified is a batch split into the six change categories.
// Each slice preserves batch order.
type Classified struct {
	NewItems            []ItemEvent
	NewTags             []string
	RemovedItems        []string
	RemovedTags         []string
	NewRestrictions     []RestrictionEvent
	RemovedRestrictions []RestrictionEvent

	Malformed int // recognised kind with a missing id or attribute
	Ignored   int // updates, empty records and unknown key shapes
}

// Counts returns the number of records per kind.
func (c Classified) Counts() map[Kind]int {
	return map[Kind]int{
		KindNewItem:            len(c.NewItems),
		KindNewTag:             len(c.NewTags),
		KindRemovedItem:        len(c.RemovedItems),
		KindRemovedTag:         len(c.RemovedTags),
		KindNewRestriction:     len(c.NewRestrictions),
		KindRemovedRestriction: len(c.RemovedRestrictions),
	}
}

// Empty reports whether no record drives an aggregate change.
func (c Classified) Empty() bool {
	for _, n := range c.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// Lists returns the aggregate lists the classified batch reads.
func (c Classified) Lists() []aggregate.List {
	var lists []aggregate.List
	if len(c.NewItems)+len(c.RemovedItems) > 0 {
		lists = append(lists, aggregate.ListItems)
	}
	if len(c.NewTags)+len(c.RemovedTags) > 0 {
		lists = append(lists, aggregate.ListTags)
	}
	if len(c.NewRestrictions)+len(c.RemovedRestrictions) > 0 {
		lists = append(lists, aggregate.ListEntities, aggregate.ListRestrictionTypes)
	}
	return lists
}

// Classifier recognises record kinds by key shape.
type Classifier struct {
	layout layout.Layout
}

// NewClassifier creates a classifier for the given key layout.
func NewClassifier(l layout.Layout) *Classifier {
	return &Classifier{layout: l}
}

// Classify partitions records by kind. Only pure creations and pure
// deletions are classified; it has no side effects.
func (c *Classifier) Classify(records []change.Record) Classified {
	var out Classified
	for _, r := range records {
		if !r.IsCreation() && !r.IsDeletion() {
			out.Ignored++
			continue
		}
		if !c.classify(r, &out) {
			out.Ignored++
		}
	}
	return out
}

// classify files r into out. It returns false when the key matches no kind.
func (c *Classifier) classify(r change.Record, out *Classified) bool {
	pk, ok := r.Key(layout.PartitionKey)
	if !ok {
		return false
	}
	sk, _ := r.Key(layout.SortKey)
	created := r.IsCreation()

	if pk == c.layout.RestrictionPartition {
		ev, ok := c.restriction(r.Image())
		switch {
		case !ok:
			out.Malformed++
		case created:
			out.NewRestrictions = append(out.NewRestrictions, ev)
		default:
			out.RemovedRestrictions = append(out.RemovedRestrictions, ev)
		}
		return true
	}

	if id, ok := layout.Suffix(pk, c.layout.ItemPrefix); ok {
		if sk == c.layout.ItemSortKey {
			switch {
			case id == "":
				out.Malformed++
			case created:
				out.NewItems = append(out.NewItems, itemEvent(id, r.New))
			default:
				out.RemovedItems = append(out.RemovedItems, id)
			}
			return true
		}
		if tag, ok := layout.Suffix(sk, c.layout.TagPrefix); ok {
			addTag(out, tag, created)
			return true
		}
		return false
	}

	// Stand-alone tag definitions.
	if tag, ok := layout.Suffix(pk, c.layout.TagPrefix); ok {
		addTag(out, tag, created)
		return true
	}
	return false
}

func addTag(out *Classified, tag string, created bool) {
	switch {
	case tag == "":
		out.Malformed++
	case created:
		out.NewTags = append(out.NewTags, tag)
	default:
		out.RemovedTags = append(out.RemovedTags, tag)
	}
}

func (c *Classifier) restriction(img change.Image) (RestrictionEvent, bool) {
	ref, ok := img.String(c.layout.EntityAttribute)
	if !ok {
		return RestrictionEvent{}, false
	}
	typeID, ok := img.String(c.layout.TypeAttribute)
	if !ok || typeID == "" {
		return RestrictionEvent{}, false
	}
	entityID := layout.RefID(ref)
	if entityID == "" {
		return RestrictionEvent{}, false
	}
	return RestrictionEvent{EntityID: entityID, TypeID: typeID}, true
}

// itemEvent reads title and author from the top level of the image or from
// its nested "data" map. Missing attributes stay empty.
func itemEvent(id string, img change.Image) ItemEvent {
	ev := ItemEvent{ID: id}
	data, _ := img.Map("data")
	ev.Title = firstString("title", img, data)
	ev.Author = firstString("author", img, data)
	return ev
}

func firstString(name string, imgs ...change.Image) string {
	for _, img := range imgs {
		if v, ok := img.String(name); ok {
			return v
		}
	}
	return ""
}
