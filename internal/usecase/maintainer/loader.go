package maintainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// Loader reads the aggregate at most once per batch and keeps the snapshot
// in step with the batch's own writes.
type Loader struct {
	store  Store
	lists  []aggregate.List
	snap   aggregate.Aggregate
	loaded bool
	reads  int
}

// NewLoader creates a loader that projects reads to lists.
// No lists means the whole aggregate.
func NewLoader(store Store, lists ...aggregate.List) *Loader {
	return &Loader{store: store, lists: lists}
}

// Load returns the cached snapshot, reading it on first call.
// A missing aggregate loads as empty at version 0.
func (l *Loader) Load(ctx context.Context) (aggregate.Aggregate, error) {
	if l.loaded {
		return l.snap, nil
	}
	return l.Refresh(ctx)
}

// Refresh discards the snapshot and reads the aggregate again.
func (l *Loader) Refresh(ctx context.Context) (aggregate.Aggregate, error) {
	l.reads++
	agg, err := l.store.GetAggregate(ctx, l.lists...)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		agg = aggregate.Empty()
	case err != nil:
		l.loaded = false
		return aggregate.Aggregate{}, fmt.Errorf("load aggregate: %w", err)
	}
	l.snap, l.loaded = agg, true
	return agg, nil
}

// Commit applies a mutation the store accepted to the snapshot.
func (l *Loader) Commit(m aggregate.Mutation) {
	l.snap = l.snap.Apply(m)
}

// Reads returns the number of store reads issued.
func (l *Loader) Reads() int {
	return l.reads
}
