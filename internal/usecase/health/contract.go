package health

import "context"

// StorePinger checks aggregate store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// FeedChecker checks change-feed availability.
type FeedChecker interface {
	HealthCheck(ctx context.Context) error
}
