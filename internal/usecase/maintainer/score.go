package maintainer

import (
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// Score signs.
const (
	signAdd    int64 = 1
	signRemove int64 = -1
)

// scoreMisses counts events whose entity or restriction type is absent.
type scoreMisses struct {
	entity int
	typ    int
}

// planScores folds restriction events into one increment per affected
// entity, in order of first appearance. Each delta is sign times the
// restriction type's weight. Entities whose deltas cancel out get no
// increment.
func planScores(agg aggregate.Aggregate, events []RestrictionEvent, sign int64) (aggregate.Mutation, scoreMisses) {
	var misses scoreMisses
	var order []string
	deltas := make(map[string]*aggregate.ScoreDelta)

	for _, ev := range events {
		idx := agg.EntityIndex(ev.EntityID)
		if idx < 0 {
			misses.entity++
			continue
		}
		weight, ok := agg.Weight(ev.TypeID)
		if !ok {
			misses.typ++
			continue
		}
		d, ok := deltas[ev.EntityID]
		if !ok {
			d = &aggregate.ScoreDelta{Index: idx, EntityID: ev.EntityID}
			deltas[ev.EntityID] = d
			order = append(order, ev.EntityID)
		}
		d.Delta += sign * weight
	}

	scores := make([]aggregate.ScoreDelta, 0, len(order))
	for _, id := range order {
		if d := deltas[id]; d.Delta != 0 {
			scores = append(scores, *d)
		}
	}
	return aggregate.IncrementScores(scores), misses
}
