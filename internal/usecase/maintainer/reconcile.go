package maintainer

import (
	"slices"

	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// planItemRemoval returns a replace of the item list with the first entry
// matching each id removed. Ids not present are no-ops.
func planItemRemoval(agg aggregate.Aggregate, ids []string) (m aggregate.Mutation, missing int) {
	items := slices.Clone(agg.Items())
	if items == nil {
		items = []aggregate.Item{}
	}
	for _, id := range ids {
		i := slices.IndexFunc(items, func(it aggregate.Item) bool { return it.ID == id })
		if i < 0 {
			missing++
			continue
		}
		items = slices.Delete(items, i, i+1)
	}
	return aggregate.ReplaceItems(items), missing
}

// planTagRemoval returns a replace of the tag list with the first
// occurrence of each value removed.
func planTagRemoval(agg aggregate.Aggregate, tags []string) (m aggregate.Mutation, missing int) {
	out := slices.Clone(agg.Tags())
	if out == nil {
		out = []string{}
	}
	for _, t := range tags {
		i := slices.Index(out, t)
		if i < 0 {
			missing++
			continue
		}
		out = slices.Delete(out, i, i+1)
	}
	return aggregate.ReplaceTags(out), missing
}
