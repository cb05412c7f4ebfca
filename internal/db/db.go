package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// Store is the database facade used by the composition root.
type Store interface {
	Pinger
	AggregateStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AggregateStore reads and conditionally writes the singleton aggregate.
type AggregateStore interface {
	// GetAggregate reads the aggregate, projected to lists when given.
	// The version is always read. Returns ErrKeyNotFound when absent.
	GetAggregate(ctx context.Context, lists ...aggregate.List) (aggregate.Aggregate, error)
	// ApplyMutation writes m if the stored version equals expectedVersion
	// (0 also matches an absent record or one without a version) and bumps
	// the version. Returns ErrVersionConflict otherwise.
	ApplyMutation(ctx context.Context, expectedVersion int64, m aggregate.Mutation) error
}
