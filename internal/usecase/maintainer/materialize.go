package maintainer

import (
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// planItemAppend returns an append of the new items absent from agg.
// Repeated ids within events keep their first occurrence. skipped counts
// events that produced no element.
func planItemAppend(agg aggregate.Aggregate, events []ItemEvent) (m aggregate.Mutation, skipped int) {
	present := agg.ItemIDs()
	items := make([]aggregate.Item, 0, len(events))
	for _, ev := range events {
		if _, ok := present[ev.ID]; ok {
			skipped++
			continue
		}
		present[ev.ID] = struct{}{}
		items = append(items, aggregate.Item{ID: ev.ID, Title: ev.Title, Author: ev.Author})
	}
	return aggregate.AppendItems(items), skipped
}

// planTagAppend returns an append of the new tag values absent from agg.
func planTagAppend(agg aggregate.Aggregate, tags []string) (m aggregate.Mutation, skipped int) {
	present := agg.TagSet()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := present[t]; ok {
			skipped++
			continue
		}
		present[t] = struct{}{}
		out = append(out, t)
	}
	return aggregate.AppendTags(out), skipped
}
