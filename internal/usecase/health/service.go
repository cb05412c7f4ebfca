package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store works but a feed does not.
	Degraded Status = "degraded"
	// Unhealthy indicates the aggregate store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store StorePinger
	feeds map[string]FeedChecker
}

// New creates a Service over the aggregate store.
func New(store StorePinger) *Service {
	return &Service{store: store, feeds: make(map[string]FeedChecker)}
}

// WithFeed adds a named change-feed check. nil checkers are ignored.
func (s *Service) WithFeed(name string, feed FeedChecker) *Service {
	if feed != nil {
		s.feeds[name] = feed
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 1+len(s.feeds))
	status := Healthy

	for name, feed := range s.feeds {
		if err := feed.HealthCheck(ctx); err != nil {
			checks[name] = CheckError
			status = Degraded
		} else {
			checks[name] = CheckOK
		}
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
