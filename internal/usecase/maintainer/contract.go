package maintainer

import (
	"context"

	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// Store reads and conditionally writes the singleton aggregate.
type Store interface {
	GetAggregate(ctx context.Context, lists ...aggregate.List) (aggregate.Aggregate, error)
	ApplyMutation(ctx context.Context, expectedVersion int64, m aggregate.Mutation) error
}
