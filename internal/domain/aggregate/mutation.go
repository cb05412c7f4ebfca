package aggregate

import "fmt"

// MutationKind is one of the update shapes the store supports.
type MutationKind string

// Update shapes.
const (
	// MutationAppend appends elements to a list, creating it if missing.
	MutationAppend MutationKind = "append"
	// MutationReplace rewrites a whole list.
	MutationReplace MutationKind = "replace"
	// MutationIncrement adds deltas to entity scores by position.
	MutationIncrement MutationKind = "increment"
)

// ScoreDelta is a signed score change for the entity at Index.
// EntityID guards against the position holding a different entity.
type ScoreDelta struct {
	Index    int
	EntityID string
	Delta    int64
}

// Mutation is one write against the aggregate.
type Mutation struct {
	Kind   MutationKind
	List   List
	Items  []Item
	Tags   []string
	Scores []ScoreDelta
}

// AppendItems appends item summaries.
func AppendItems(items []Item) Mutation {
	return Mutation{Kind: MutationAppend, List: ListItems, Items: items}
}

// AppendTags appends tag values.
func AppendTags(tags []string) Mutation {
	return Mutation{Kind: MutationAppend, List: ListTags, Tags: tags}
}

// ReplaceItems rewrites the item list.
func ReplaceItems(items []Item) Mutation {
	return Mutation{Kind: MutationReplace, List: ListItems, Items: items}
}

// ReplaceTags rewrites the tag list.
func ReplaceTags(tags []string) Mutation {
	return Mutation{Kind: MutationReplace, List: ListTags, Tags: tags}
}

// IncrementScores applies score deltas to entities.
func IncrementScores(deltas []ScoreDelta) Mutation {
	return Mutation{Kind: MutationIncrement, List: ListEntities, Scores: deltas}
}

// Len returns the number of elements or deltas the mutation carries.
func (m Mutation) Len() int {
	switch {
	case m.Kind == MutationIncrement:
		return len(m.Scores)
	case m.List == ListTags:
		return len(m.Tags)
	default:
		return len(m.Items)
	}
}

// Validate checks that the mutation is well-formed for its kind.
func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationAppend, MutationReplace:
		if m.List != ListItems && m.List != ListTags {
			return fmt.Errorf("%s is not supported on list %q", m.Kind, m.List)
		}
	case MutationIncrement:
		if m.List != ListEntities {
			return fmt.Errorf("increment is not supported on list %q", m.List)
		}
		for _, d := range m.Scores {
			if d.Index < 0 {
				return fmt.Errorf("negative entity index %d", d.Index)
			}
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}
